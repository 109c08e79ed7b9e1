package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/service"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookings service.BookingStore
	payments *service.PaymentService
}

func NewBookingHandler(bookings service.BookingStore, payments *service.PaymentService) *BookingHandler {
	return &BookingHandler{bookings: bookings, payments: payments}
}

// Create registers a booking the owning subsystem wants charged. The engine
// never invents bookings on its own; this is the integration entry point.
func (h *BookingHandler) Create(c *gin.Context) {
	var req struct {
		GuestRef             string `json:"guest_ref"`
		TotalAmountCents     int64  `json:"total_amount_cents" binding:"required,min=1"`
		Currency             string `json:"currency"`
		CancellationDeadline string `json:"cancellation_deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	b := &models.Booking{
		GuestRef:         req.GuestRef,
		Status:           domain.BookingPending,
		PaymentStatus:    domain.PayStatusPending,
		TotalAmountCents: req.TotalAmountCents,
		Currency:         req.Currency,
	}
	if req.CancellationDeadline != "" {
		t, err := time.Parse(time.RFC3339, req.CancellationDeadline)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "cancellation_deadline must be RFC3339"})
			return
		}
		b.CancellationDeadline = &t
	}
	if err := h.bookings.Create(c.Request.Context(), b); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "invalid booking id"})
		return
	}
	b, err := h.bookings.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Payments returns the read-only projection: payment rows, refunds, and the
// derived summary for one booking.
func (h *BookingHandler) Payments(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "invalid booking id"})
		return
	}
	out, err := h.payments.GetBookingPayments(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
