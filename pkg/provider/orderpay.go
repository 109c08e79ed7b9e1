package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
)

// OrderPayProvider drives a two-phase gateway: CreateOrder reserves funds and
// returns a pending order id with an expiry; Capture finalizes it. The
// provider reports capture-after-expiry as a distinct code which we surface
// as a terminal failure.
type OrderPayProvider struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewOrderPayProvider(baseURL, apiKey string) *OrderPayProvider {
	if baseURL == "" {
		baseURL = "https://api.orderpay.example.com"
	}
	return &OrderPayProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *OrderPayProvider) Name() string  { return "orderpay" }
func (p *OrderPayProvider) Model() string { return domain.ModelOrderCapture }

type orderpayOrderReq struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type orderpayOrderResp struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"` // created | rejected
	ExpiresAt string `json:"expires_at"`
}

func (p *OrderPayProvider) CreateOrder(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := orderpayOrderReq{
		Amount:    req.AmountCents,
		Currency:  req.Currency,
		Method:    req.Method,
		Reference: fmt.Sprintf("booking_%d", req.BookingID),
	}
	var out orderpayOrderResp
	if res := p.doJSON(ctx, "/v1/orders", req.IdempotencyToken, payload, &out); res != nil {
		return res, nil
	}
	if out.Status != "created" {
		return &ChargeResult{Status: StatusFailed, ExternalRef: out.OrderID, ErrorCode: CodeDeclined}, nil
	}
	result := &ChargeResult{Status: StatusPending, ExternalRef: out.OrderID}
	if t, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
		result.OrderExpiresAt = &t
	}
	return result, nil
}

type orderpayCaptureReq struct {
	OrderID string `json:"order_id"`
}

type orderpayCaptureResp struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"` // captured | expired | declined
	FailureCode string `json:"failure_code"`
}

func (p *OrderPayProvider) Capture(ctx context.Context, externalRef, idempotencyToken string) (*ChargeResult, error) {
	var out orderpayCaptureResp
	if res := p.doJSON(ctx, "/v1/orders/capture", idempotencyToken, orderpayCaptureReq{OrderID: externalRef}, &out); res != nil {
		return res, nil
	}
	switch out.Status {
	case "captured":
		return &ChargeResult{Status: StatusSucceeded, ExternalRef: out.OrderID}, nil
	case "expired":
		// Terminal: the reservation lapsed, retrying the capture cannot help.
		return &ChargeResult{Status: StatusFailed, ExternalRef: out.OrderID, ErrorCode: CodeOrderExpired}, nil
	default:
		return &ChargeResult{Status: StatusFailed, ExternalRef: out.OrderID, ErrorCode: CodeDeclined}, nil
	}
}

type orderpayRefundReq struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
}

type orderpayRefundResp struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

func (p *OrderPayProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	payload := orderpayRefundReq{
		OrderID:  req.ExternalRef,
		Amount:   req.AmountCents,
		Currency: req.Currency,
		Reason:   req.Reason,
	}
	var out orderpayRefundResp
	if res := p.doJSON(ctx, "/v1/refunds", req.IdempotencyToken, payload, &out); res != nil {
		return &RefundResult{Status: StatusFailed, ErrorCode: res.ErrorCode, Retryable: res.Retryable}, nil
	}
	if out.Status == "succeeded" {
		return &RefundResult{Status: StatusSucceeded, ProviderRef: out.RefundID}, nil
	}
	return &RefundResult{Status: StatusFailed, ProviderRef: out.RefundID, ErrorCode: CodeUnavailable}, nil
}

func (p *OrderPayProvider) doJSON(ctx context.Context, path, idemToken string, payload, out interface{}) *ChargeResult {
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return FailureResult(CodeUnavailable, true)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	if idemToken != "" {
		httpReq.Header.Set("Idempotency-Key", idemToken)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return FailureResult(CodeTimeout, true)
		}
		log.Printf("[orderpay] POST %s: %v", path, err)
		return FailureResult(CodeUnavailable, true)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		log.Printf("[orderpay] POST %s: %d %s", path, resp.StatusCode, string(respBody))
		return FailureResult(CodeUnavailable, true)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[orderpay] POST %s: %d %s", path, resp.StatusCode, string(respBody))
		return FailureResult(CodeDeclined, false)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return FailureResult(CodeUnavailable, true)
	}
	return nil
}
