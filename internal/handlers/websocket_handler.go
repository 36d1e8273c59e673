package handlers

import (
	"net/http"

	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades subscribers onto the push service.
type WebSocketHandler struct {
	push *services.WebSocketPushService
}

// NewWebSocketHandler creates the websocket handler
func NewWebSocketHandler(push *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{push: push}
}

// SubscribeHandler opens the event stream; an optional vault query
// parameter narrows it to one agent
// GET /api/ws?vault=
func (h *WebSocketHandler) SubscribeHandler(c *gin.Context) {
	h.push.HandleWebSocket(c.Writer, c.Request, c.Query("vault"))
}

// StatusHandler reports the live subscriber counts
// GET /api/ws/status
func (h *WebSocketHandler) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"active_connections": h.push.GetActiveConnections(),
	})
}
