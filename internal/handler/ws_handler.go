package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/realtime"
	"github.com/clatprep/clat-prep-api/internal/service"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
	"github.com/clatprep/clat-prep-api/pkg/response"
)

// WSHandler upgrades authenticated requests to realtime connections.
type WSHandler struct {
	hub     *realtime.Hub
	metrics *service.MetricsService
	logger  *zap.Logger

	upgrader websocket.Upgrader
}

// NewWSHandler constructs WSHandler. checkOrigin receives the request origin
// header value; a nil func allows all origins.
func NewWSHandler(hub *realtime.Hub, metrics *service.MetricsService, logger *zap.Logger, checkOrigin func(r *http.Request) bool) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Connect godoc
// @Summary Open the realtime notification stream
// @Tags Realtime
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}

	client := realtime.NewClient(h.hub, conn, claims.UserID, claims.Role, h.logger)
	h.metrics.WSConnectionOpened()
	client.OnClose(h.metrics.WSConnectionClosed)
	client.Start()
}
