package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"event-escrow/models"
	"event-escrow/ticketing"
)

type TicketHandler struct {
	engine *ticketing.Engine
	units  *Units
	logger *zap.Logger
}

func NewTicketHandler(engine *ticketing.Engine, units *Units, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{engine: engine, units: units, logger: logger}
}

// BuyTicket purchases one ticket for the caller. Native-rail purchases attach
// {"value": "<display amount>", "tx_hash": "<payment to custody>"}; token
// purchases need a prior allowance to the custody address and no body.
func (h *TicketHandler) BuyTicket(c *gin.Context) {
	buyer, ok := caller(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}

	var req models.BuyTicketRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	value, err := h.units.ToBase(models.NativeToken, req.Value)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	if req.TxHash != "" {
		raw, err := hexutil.Decode(req.TxHash)
		if err != nil || len(raw) != common.HashLength {
			badRequest(c, "Invalid tx_hash")
			return
		}
		ctx = ticketing.WithPaymentReference(ctx, common.BytesToHash(raw))
	}

	if err := h.engine.BuyTicket(ctx, buyer, id, value); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("ticket purchased", zap.Uint64("event_id", id), zap.String("buyer", buyer.Hex()))

	details, err := h.engine.Event(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Ticket purchased",
		"ticket": models.TicketCheck{
			EventID:   id,
			Address:   buyer.Hex(),
			HasTicket: h.engine.HasTicket(id, buyer),
			IsActive:  details.Event.IsActive(),
		},
	})
}

// RefundTicket returns the caller's ticket for a refund.
func (h *TicketHandler) RefundTicket(c *gin.Context) {
	holder, ok := caller(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}

	if err := h.engine.RequestRefund(c.Request.Context(), holder, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("ticket refunded", zap.Uint64("event_id", id), zap.String("holder", holder.Hex()))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Refund issued",
	})
}

// CheckTicket is the door check: does the address hold a ticket.
func (h *TicketHandler) CheckTicket(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	holder, ok := addressParam(c, "address")
	if !ok {
		return
	}

	details, err := h.engine.Event(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.TicketCheck{
		EventID:   id,
		Address:   holder.Hex(),
		HasTicket: h.engine.HasTicket(id, holder),
		IsActive:  details.Event.IsActive(),
	})
}
