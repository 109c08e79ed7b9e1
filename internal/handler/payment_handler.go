package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/middleware"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	payments *service.PaymentService
	refunds  *service.RefundProcessor
	audit    service.AuditStore
}

func NewPaymentHandler(payments *service.PaymentService, refunds *service.RefundProcessor, audit service.AuditStore) *PaymentHandler {
	return &PaymentHandler{payments: payments, refunds: refunds, audit: audit}
}

func (h *PaymentHandler) Create(c *gin.Context) {
	var req struct {
		BookingID        uint   `json:"booking_id" binding:"required"`
		Provider         string `json:"provider" binding:"required"`
		Method           string `json:"method" binding:"required"`
		AmountCents      int64  `json:"amount_cents" binding:"required"`
		Currency         string `json:"currency" binding:"required"`
		IdempotencyNonce string `json:"idempotency_nonce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}
	p, created, err := h.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		BookingID:   req.BookingID,
		Provider:    req.Provider,
		Method:      req.Method,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Nonce:       req.IdempotencyNonce,
		Actor:       middleware.GetService(c),
	})
	if err != nil {
		if errors.Is(err, domain.ErrChargeInFlight) {
			// Not an error to the caller: the first attempt is still
			// running, come back for its outcome.
			c.JSON(http.StatusConflict, gin.H{"code": domain.CodeInFlight, "payment": p})
			return
		}
		if p != nil && (errors.Is(err, domain.ErrProviderRetryable) || errors.Is(err, domain.ErrProviderTerminal)) {
			status := http.StatusPaymentRequired
			code := domain.CodeProviderDecline
			if errors.Is(err, domain.ErrProviderRetryable) {
				status = http.StatusBadGateway
				code = domain.CodeProviderRetry
			}
			c.JSON(status, gin.H{"code": code, "payment": p})
			return
		}
		respondError(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, p)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) Capture(c *gin.Context) {
	var req struct {
		ExternalTransactionID string `json:"external_transaction_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}
	p, err := h.payments.CapturePayment(c.Request.Context(), req.ExternalTransactionID, middleware.GetService(c))
	if err != nil {
		if p != nil && (errors.Is(err, domain.ErrProviderRetryable) || errors.Is(err, domain.ErrProviderTerminal)) {
			status := http.StatusPaymentRequired
			code := domain.CodeProviderDecline
			if errors.Is(err, domain.ErrProviderRetryable) {
				status = http.StatusBadGateway
				code = domain.CodeProviderRetry
			}
			c.JSON(status, gin.H{"code": code, "payment": p})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "invalid payment id"})
		return
	}
	var req struct {
		AmountCents int64  `json:"amount_cents" binding:"required"`
		Reason      string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}
	ref, err := h.refunds.Refund(c.Request.Context(), uint(paymentID), req.AmountCents, req.Reason, middleware.GetService(c))
	if err != nil {
		if ref != nil && (errors.Is(err, domain.ErrProviderRetryable) || errors.Is(err, domain.ErrProviderTerminal)) {
			c.JSON(http.StatusBadGateway, gin.H{"code": domain.CodeProviderRetry, "refund": ref})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *PaymentHandler) SetupToken(c *gin.Context) {
	var req struct {
		BookingID        uint   `json:"booking_id" binding:"required"`
		Provider         string `json:"provider" binding:"required"`
		Method           string `json:"method" binding:"required"`
		IdempotencyNonce string `json:"idempotency_nonce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}
	p, token, err := h.payments.SetupToken(c.Request.Context(), service.SetupTokenInput{
		BookingID: req.BookingID,
		Provider:  req.Provider,
		Method:    req.Method,
		Nonce:     req.IdempotencyNonce,
		Actor:     middleware.GetService(c),
	})
	if err != nil {
		if errors.Is(err, domain.ErrChargeInFlight) {
			c.JSON(http.StatusConflict, gin.H{"code": domain.CodeInFlight, "payment": p})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": p, "token": token})
}

// AuditTrail exposes the transition history of one payment, read-only.
func (h *PaymentHandler) AuditTrail(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "invalid payment id"})
		return
	}
	entries, err := h.audit.ListByEntity(c.Request.Context(), "payment", uint(paymentID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
