package handlers

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"event-escrow/ticketing"
)

const callerHeader = "X-Caller-Address"

func statusFor(kind ticketing.Kind) int {
	switch kind {
	case ticketing.KindValidation:
		return http.StatusBadRequest
	case ticketing.KindNotFound:
		return http.StatusNotFound
	case ticketing.KindAuthorization:
		return http.StatusForbidden
	case ticketing.KindStateConflict, ticketing.KindCapacity:
		return http.StatusConflict
	case ticketing.KindFunds:
		return http.StatusPaymentRequired
	case ticketing.KindTiming:
		return http.StatusUnprocessableEntity
	case ticketing.KindAdmission:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError renders err as {"error": code, "message": text}. Errors that
// are not ledger rejections are logged and reported without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, errBadAmount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidAmount", "message": err.Error()})
		return
	}
	status := statusFor(ticketing.KindOf(err))
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal", "message": "Internal server error"})
		return
	}
	logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"error": ticketing.CodeOf(err), "message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": message})
}

// caller reads the authenticated caller address set upstream.
func caller(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader(callerHeader)
	if !common.IsHexAddress(raw) || common.HexToAddress(raw) == (common.Address{}) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Missing or invalid " + callerHeader + " header"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func addressParam(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		badRequest(c, "Invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
