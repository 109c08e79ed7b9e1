package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/config"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/service"

	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	reconciler *service.Reconciler
	cfg        *config.PaymentConfig
}

func NewWebhookHandler(reconciler *service.Reconciler, cfg *config.PaymentConfig) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, cfg: cfg}
}

// Handle receives provider notifications. The body must carry a valid
// HMAC-SHA256 signature in X-Webhook-Signature; unverifiable payloads are
// dropped and logged, never applied.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "invalid body"})
		return
	}
	if !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		log.Printf("[webhook] signature verification failed from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"code": domain.CodeBadSignature, "error": "invalid signature"})
		return
	}
	var evt service.WebhookPayload
	if err := json.Unmarshal(body, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "invalid json"})
		return
	}
	if err := h.reconciler.Handle(c.Request.Context(), evt); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
			return
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Surfaced for the provider to retry later; the conflict is
			// logged with full context by the reconciler.
			c.JSON(http.StatusConflict, gin.H{"code": domain.CodeInvalidState, "error": "event conflicts with current state"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if h.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
