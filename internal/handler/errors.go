package handler

import (
	"errors"
	"net/http"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"

	"github.com/gin-gonic/gin"
)

// respondError maps domain sentinels to HTTP status plus the stable,
// provider-agnostic error code. Raw provider payloads stay in audit/logs.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": domain.CodeNotFound, "error": "not found"})
	case errors.Is(err, domain.ErrOverRefund):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": domain.CodeOverRefund, "error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"code": domain.CodeInvalidState, "error": err.Error()})
	case errors.Is(err, domain.ErrProviderRetryable):
		c.JSON(http.StatusBadGateway, gin.H{"code": domain.CodeProviderRetry, "error": "attempt failed, retry permitted with a new idempotency nonce"})
	case errors.Is(err, domain.ErrProviderTerminal):
		c.JSON(http.StatusPaymentRequired, gin.H{"code": domain.CodeProviderDecline, "error": "the payment was declined"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "error": "internal error"})
	}
}
