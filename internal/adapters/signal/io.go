package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/app/orch"
)

func (ctl *ViewerWSController) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			c.Close(websocket.CloseGoingAway, "server shutting down")
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close(websocket.CloseInternalServerErr, "")
				return
			}
			if err := c.conn.WriteMessage(c.messageType(), data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				c.Close(websocket.CloseInternalServerErr, "")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("ping failed")
				c.Close(websocket.CloseGoingAway, "")
				return
			}
		}
	}
}

func (ctl *ViewerWSController) readPump(ctx context.Context, d *orch.Dispatcher, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		if ctl.opts.Control != nil {
			ctl.opts.Control.Forget(c.id)
		}
		c.Close(websocket.CloseNormalClosure, "")
	}()

	pongWait := c.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			if !c.proto.Binary() && ctl.opts.Control != nil && !ctl.opts.Control.Allow(c.id) {
				log.Warn().Err(errRateLimited).Str("module", "signal").Str("conn", string(c.id)).Msg("dropped message")
				continue
			}
			d.OnMessage(ctx, data)
		}
	}
}
