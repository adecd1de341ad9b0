package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"event-escrow/contracts"
	"event-escrow/models"
)

// DevHandler funds wallets on the in-memory ledgers. It is only routed when
// the process runs without a chain endpoint.
type DevHandler struct {
	bank   *contracts.MemoryBank
	native *contracts.MemoryNative
	units  *Units
	logger *zap.Logger
}

func NewDevHandler(bank *contracts.MemoryBank, native *contracts.MemoryNative, units *Units, logger *zap.Logger) *DevHandler {
	return &DevHandler{bank: bank, native: native, units: units, logger: logger}
}

type fundRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`

	// Token is empty for the native asset.
	Token string `json:"token"`

	// Approve also grants the custody address an allowance of Amount.
	Approve bool `json:"approve"`
}

func (h *DevHandler) Fund(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		badRequest(c, "Invalid address")
		return
	}
	token := models.NativeToken
	if req.Token != "" {
		if !common.IsHexAddress(req.Token) {
			badRequest(c, "Invalid token address")
			return
		}
		token = common.HexToAddress(req.Token)
	}
	amount, err := h.units.ToBase(token, req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	holder := common.HexToAddress(req.Address)
	if token == models.NativeToken {
		h.native.Fund(holder, amount)
	} else {
		ledger := h.bank.Ledger(token)
		ledger.Mint(holder, amount)
		if req.Approve {
			ledger.Approve(holder, amount)
		}
	}

	h.logger.Debug("dev wallet funded",
		zap.String("address", holder.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.ToBig().String()))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"address": holder.Hex(),
		"token":   token.Hex(),
		"amount":  amount.ToBig().String(),
	})
}
