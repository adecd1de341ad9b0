package handlers

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"event-escrow/models"
	"event-escrow/ticketing"
)

type AdminHandler struct {
	engine *ticketing.Engine
	units  *Units
	logger *zap.Logger
}

func NewAdminHandler(engine *ticketing.Engine, units *Units, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, units: units, logger: logger}
}

func (h *AdminHandler) Pause(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	if err := h.engine.Pause(c.Request.Context(), who); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Warn("ledger paused", zap.String("by", who.Hex()))
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *AdminHandler) Unpause(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	if err := h.engine.Unpause(c.Request.Context(), who); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Warn("ledger unpaused", zap.String("by", who.Hex()))
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// AddToken registers a payment token and the decimals used to display it.
func (h *AdminHandler) AddToken(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	var req models.AddTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		badRequest(c, "Invalid token address")
		return
	}
	if req.Decimals < 0 || req.Decimals > 77 {
		badRequest(c, "Invalid decimals")
		return
	}
	token := common.HexToAddress(req.Address)

	if err := h.engine.AddSupportedToken(c.Request.Context(), who, token, req.FeeBearing); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.units.Set(token, req.Decimals)

	h.logger.Info("payment token added",
		zap.String("token", token.Hex()),
		zap.Int32("decimals", req.Decimals),
		zap.Bool("fee_bearing", req.FeeBearing))

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"token":   token.Hex(),
	})
}

func (h *AdminHandler) GetTokens(c *gin.Context) {
	tokens := h.engine.SupportedTokens()
	out := make([]gin.H, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, gin.H{
			"address":  t.Hex(),
			"decimals": h.units.Decimals(t),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"tokens": out,
		"paused": h.engine.Paused(),
	})
}

// GetLogs returns committed notifications from ?from= onward.
func (h *AdminHandler) GetLogs(c *gin.Context) {
	var from uint64
	if raw := c.Query("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid from parameter")
			return
		}
		from = v
	}

	notes := h.engine.Logs(from)
	out := make([]models.NotificationView, 0, len(notes))
	for _, n := range notes {
		out = append(out, models.NewNotificationView(n))
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  out,
		"total": len(out),
	})
}
