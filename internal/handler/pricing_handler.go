package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/pricing"

	"github.com/gin-gonic/gin"
)

type PricingHandler struct {
	rates pricing.RateSource
}

func NewPricingHandler(rates pricing.RateSource) *PricingHandler {
	return &PricingHandler{rates: rates}
}

// Breakdown computes the deterministic price breakdown. With display_currency
// set, the totals are additionally converted using the injected rate source.
func (h *PricingHandler) Breakdown(c *gin.Context) {
	base, err := strconv.ParseInt(c.Query("base_amount_cents"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "base_amount_cents must be an integer"})
		return
	}
	nights, err := strconv.Atoi(c.Query("nights"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeValidation, "error": "nights must be an integer"})
		return
	}
	currency := strings.ToUpper(c.DefaultQuery("currency", "USD"))
	bd, err := pricing.Compute(base, nights, currency)
	if err != nil {
		respondError(c, err)
		return
	}
	display := strings.ToUpper(c.Query("display_currency"))
	if display == "" || display == currency {
		c.JSON(http.StatusOK, bd)
		return
	}
	rate, err := h.rates.Rate(currency, display)
	if err != nil {
		respondError(c, err)
		return
	}
	converted, err := pricing.Convert(bd.TotalCents, rate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"breakdown":           bd,
		"display_currency":    display,
		"display_total_cents": converted,
		"rate":                rate,
	})
}
