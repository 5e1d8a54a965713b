package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/app/orch"
	"github.com/dkeye/gprimview/internal/core"
)

// Options tune every viewer connection.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendQueue    int
	// Control caps text-channel messages per connection.
	Control *RateLimiter
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 32
	}
	return o
}

type ViewerWSController struct {
	Orch *orch.Orchestrator
	opts Options
}

func NewViewerWSController(o *orch.Orchestrator, opts Options) *ViewerWSController {
	return &ViewerWSController{Orch: o, opts: opts.withDefaults()}
}

// The subprotocol is chosen by Negotiate and passed as a response header,
// so the upgrader keeps no list of its own.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleViewer negotiates, prechecks and upgrades one viewer connection, then
// hands it to a dispatcher. ctx bounds the connection's lifetime.
func (ctl *ViewerWSController) HandleViewer(ctx context.Context, c *gin.Context) {
	logger := log.With().Str("module", "signal").Str("path", c.Request.URL.Path).
		Str("client", c.GetString("client_token")).Logger()

	d := ctl.Orch.NewDispatcher()
	proto, err := d.Negotiate(websocket.Subprotocols(c.Request))
	if err != nil {
		ctl.Orch.Refused(err)
		logger.Warn().Err(err).Msg("subprotocol refused")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, file, err := ctl.Orch.Precheck(c.Request.Context(), c.Request.URL.Path)
	if err != nil {
		ctl.Orch.Refused(err)
		logger.Warn().Err(err).Str("class", core.Class(err)).Msg("viewer refused")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	hdr := http.Header{"Sec-Websocket-Protocol": {string(proto)}}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, hdr)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws, proto, ctl.opts)
	ctx, cancel := context.WithCancel(ctx)
	logger.Info().Str("proto", string(proto)).Str("conn", string(conn.ID())).Str("key", string(key)).
		Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		defer d.OnClose()
		if err := d.OnOpen(ctx, conn, key, file); err != nil {
			logger.Debug().Err(err).Msg("open refused")
			return
		}
		ctl.readPump(ctx, d, conn)
	}()
}

var errRateLimited = errors.New("control message rate exceeded")
