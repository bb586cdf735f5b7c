package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/middlewares"
	"github.com/yeremiapane/tenant-realtime/stream"
	"github.com/yeremiapane/tenant-realtime/utils"
)

type StreamController struct {
	Manager  *stream.Manager
	upgrader websocket.Upgrader
}

// NewStreamController accepts WebSocket upgrades from allowedOrigins; an
// empty list or "*" accepts any origin.
func NewStreamController(manager *stream.Manager, allowedOrigins []string) *StreamController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &StreamController{
		Manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

// callerScope resolves the subscription scope from the verified identity
// only; request parameters never influence it.
func callerScope(c *gin.Context) (events.Scope, bool) {
	id, ok := middlewares.CurrentIdentity(c)
	if !ok {
		utils.AbortWithAuthError(c, utils.Unauthorized("unauthorized"))
		return events.Scope{}, false
	}
	scope, err := id.Scope()
	if err != nil {
		utils.AbortWithAuthError(c, err)
		return events.Scope{}, false
	}
	return scope, true
}

// Stream opens a text/event-stream for the caller.
func (sc *StreamController) Stream(c *gin.Context) {
	scope, ok := callerScope(c)
	if !ok {
		return
	}
	sc.serveSSE(c, scope)
}

// AdminStream opens a Global stream. The route is guarded by
// RequireSuperadmin.
func (sc *StreamController) AdminStream(c *gin.Context) {
	sc.serveSSE(c, events.Global())
}

func (sc *StreamController) serveSSE(c *gin.Context, scope events.Scope) {
	if !sc.Manager.Accepting() {
		utils.RespondError(c, http.StatusServiceUnavailable, stream.ErrShuttingDown)
		return
	}
	sc.serve(c, scope, stream.NewSSE(c))
}

// WebSocket carries the same frames as Stream over a WebSocket.
func (sc *StreamController) WebSocket(c *gin.Context) {
	scope, ok := callerScope(c)
	if !ok {
		return
	}
	if !sc.Manager.Accepting() {
		utils.RespondError(c, http.StatusServiceUnavailable, stream.ErrShuttingDown)
		return
	}
	conn, err := sc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.InfoLogger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	tr := stream.NewWebSocket(conn)
	defer tr.Close()
	sc.serve(c, scope, tr)
}

func (sc *StreamController) serve(c *gin.Context, scope events.Scope, tr stream.Transport) {
	err := sc.Manager.Serve(c.Request.Context(), scope, tr)
	var terr *stream.TransportError
	switch {
	case err == nil:
	case errors.As(err, &terr):
		utils.InfoLogger.WithFields(logrus.Fields{"connection_id": terr.ConnID, "scope": scope.Key()}).
			WithError(terr.Err).Info("stream ended by transport error")
	default:
		utils.ErrorLogger.WithError(err).WithField("scope", scope.Key()).Error("stream session failed")
	}
}
