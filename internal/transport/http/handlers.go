package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/gprimview/internal/app"
	"github.com/dkeye/gprimview/internal/app/orch"
)

type SessionsResponse struct {
	Sessions []app.Info `json:"sessions"`
	Count    int        `json:"count"`
}

// Register mounts the read-only REST API on g.
func Register(g *gin.RouterGroup, o *orch.Orchestrator) {
	g.GET("/sessions", handlerSessions(o))
	g.GET("/plugins", handlerPlugins(o))
}

func handlerSessions(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := o.Registry.List()
		c.JSON(http.StatusOK, SessionsResponse{Sessions: list, Count: len(list)})
	}
}

func handlerPlugins(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"extensions": o.Plugins.Table()})
	}
}

func HandlerHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
