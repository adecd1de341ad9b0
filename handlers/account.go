package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"event-escrow/models"
	"event-escrow/ticketing"
)

// AccountHandler serves the caller's own views.
type AccountHandler struct {
	engine *ticketing.Engine
	events *EventHandler
}

func NewAccountHandler(engine *ticketing.Engine, events *EventHandler) *AccountHandler {
	return &AccountHandler{engine: engine, events: events}
}

// GetMyTickets lists the events the caller currently holds a ticket for.
func (h *AccountHandler) GetMyTickets(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	events := h.events.views(h.engine.PurchasedEvents(who))
	c.JSON(http.StatusOK, models.AccountEvents{
		Address: who.Hex(),
		Events:  events,
		Total:   len(events),
	})
}

// GetMyEvents lists the caller's events that are still active.
func (h *AccountHandler) GetMyEvents(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	events := h.events.views(h.engine.ActiveCreatedEvents(who))
	c.JSON(http.StatusOK, models.AccountEvents{
		Address: who.Hex(),
		Events:  events,
		Total:   len(events),
	})
}
