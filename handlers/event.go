package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"event-escrow/models"
	"event-escrow/ticketing"
)

type EventHandler struct {
	engine *ticketing.Engine
	units  *Units
	logger *zap.Logger
}

func NewEventHandler(engine *ticketing.Engine, units *Units, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		engine: engine,
		units:  units,
		logger: logger,
	}
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	creator, ok := caller(c)
	if !ok {
		return
	}

	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	token := models.NativeToken
	if req.PaymentToken != "" {
		if !common.IsHexAddress(req.PaymentToken) {
			badRequest(c, "Invalid payment token address")
			return
		}
		token = common.HexToAddress(req.PaymentToken)
	}

	price, err := h.units.ToBase(token, req.TicketPrice)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	spec := models.EventSpec{
		Name:         req.Name,
		ImageURL:     req.ImageURL,
		Details:      req.Details,
		Location:     req.Location,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		TicketPrice:  *price,
		PaymentToken: token,
		MinimumAge:   req.MinimumAge,
	}

	id, err := h.engine.CreateEvent(c.Request.Context(), creator, spec)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("event created",
		zap.Uint64("event_id", id),
		zap.String("creator", creator.Hex()),
		zap.String("payment_token", token.Hex()))

	details, err := h.engine.Event(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"event":   h.view(details.Event),
	})
}

// GetEvents lists every active event.
func (h *EventHandler) GetEvents(c *gin.Context) {
	events := h.views(h.engine.ActiveEvents())
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(events),
	})
}

func (h *EventHandler) GetEventCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.engine.EventCount()})
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	details, err := h.engine.Event(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.EventDetailView{
		Event:         h.view(details.Event),
		Attendees:     hexAll(details.Attendees),
		CreatorEvents: h.views(details.CreatorEvents),
	})
}

func (h *EventHandler) GetAttendees(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	attendees, err := h.engine.Attendees(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"event_id":  id,
		"attendees": hexAll(attendees),
		"total":     len(attendees),
	})
}

func (h *EventHandler) GetEscrow(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	details, err := h.engine.Event(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	tokenFunds, nativeFunds, err := h.engine.EscrowBalance(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ev := details.Event
	held := tokenFunds
	if ev.Rail == models.RailNative {
		held = nativeFunds
	}
	c.JSON(http.StatusOK, models.EscrowView{
		EventID:      id,
		Rail:         ev.Rail.String(),
		PaymentToken: ev.PaymentToken.Hex(),
		TokenFunds:   tokenFunds.ToBig().String(),
		NativeFunds:  nativeFunds.ToBig().String(),
		Display:      h.units.Display(ev.PaymentToken, held),
	})
}

func (h *EventHandler) CancelEvent(c *gin.Context) {
	h.creatorAction(c, "event canceled", h.engine.CancelEvent)
}

func (h *EventHandler) ReleaseFunds(c *gin.Context) {
	h.creatorAction(c, "funds released", h.engine.ReleaseFunds)
}

func (h *EventHandler) creatorAction(c *gin.Context, done string, action func(ctx context.Context, caller common.Address, eventID uint64) error) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}

	if err := action(c.Request.Context(), who, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info(done, zap.Uint64("event_id", id), zap.String("creator", who.Hex()))

	details, err := h.engine.Event(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"event":   h.view(details.Event),
	})
}

// GetCreatorEvents returns the creator's events as they were published.
func (h *EventHandler) GetCreatorEvents(c *gin.Context) {
	creator, ok := addressParam(c, "address")
	if !ok {
		return
	}
	events := h.views(h.engine.EventsByCreator(creator))
	c.JSON(http.StatusOK, models.AccountEvents{
		Address: creator.Hex(),
		Events:  events,
		Total:   len(events),
	})
}

func (h *EventHandler) view(ev models.Event) models.EventView {
	return models.EventView{
		ID:                 ev.ID,
		Creator:            ev.Creator.Hex(),
		Name:               ev.Name,
		ImageURL:           ev.ImageURL,
		Details:            ev.Details,
		Location:           ev.Location,
		StartDate:          ev.StartDate,
		EndDate:            ev.EndDate,
		StartTime:          ev.StartTime,
		EndTime:            ev.EndTime,
		TicketPrice:        ev.TicketPrice.ToBig().String(),
		TicketPriceDisplay: h.units.Display(ev.PaymentToken, &ev.TicketPrice),
		PaymentToken:       ev.PaymentToken.Hex(),
		MinimumAge:         ev.MinimumAge,
		Rail:               ev.Rail.String(),
		Status:             ev.Status.String(),
		IsActive:           ev.IsActive(),
		IsCanceled:         ev.IsCanceled(),
		FundsReleased:      ev.FundsReleased,
		FundsHeld:          ev.FundsHeld.ToBig().String(),
	}
}

func (h *EventHandler) views(events []models.Event) []models.EventView {
	out := make([]models.EventView, 0, len(events))
	for _, ev := range events {
		out = append(out, h.view(ev))
	}
	return out
}

func eventID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid event ID")
		return 0, false
	}
	return id, true
}

func hexAll(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}
