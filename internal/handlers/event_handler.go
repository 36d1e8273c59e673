package handlers

import (
	"net/http"

	"fasset-backend/internal/models"
	"fasset-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

// EventHandler serves the persisted protocol event log.
type EventHandler struct {
	events repository.EventRepository
}

// NewEventHandler creates the event handler
func NewEventHandler(events repository.EventRepository) *EventHandler {
	return &EventHandler{events: events}
}

// ListEventsHandler lists persisted protocol events by vault or type
// GET /api/events?vault=&type=
func (h *EventHandler) ListEventsHandler(c *gin.Context) {
	page, limit := pagination(c)
	ctx := c.Request.Context()

	if vault := c.Query("vault"); vault != "" {
		rows, total, err := h.events.FindEventsByVault(ctx, vault, page, limit)
		if err != nil {
			respondWithError(c, "list_events", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "events": rows, "total": total})
		return
	}
	if eventType := c.Query("type"); eventType != "" {
		rows, total, err := h.events.FindEventsByType(ctx, models.ProtocolEventType(eventType), page, limit)
		if err != nil {
			respondWithError(c, "list_events", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "events": rows, "total": total})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "vault or type query parameter required",
	})
}
