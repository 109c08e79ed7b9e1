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

// SyncPayProvider drives a synchronous-charge gateway: a single call both
// authorizes and captures, so the outcome is known from the response.
type SyncPayProvider struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewSyncPayProvider(baseURL, apiKey string) *SyncPayProvider {
	if baseURL == "" {
		baseURL = "https://api.syncpay.example.com"
	}
	return &SyncPayProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *SyncPayProvider) Name() string  { return "syncpay" }
func (p *SyncPayProvider) Model() string { return domain.ModelSyncCharge }

type syncpayChargeReq struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

type syncpayChargeResp struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // succeeded | declined | invalid_card
	FailureCode   string `json:"failure_code"`
	FailureDetail string `json:"failure_detail"`
}

func (p *SyncPayProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := syncpayChargeReq{
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Method:      req.Method,
		Description: req.Description,
		Reference:   fmt.Sprintf("booking_%d", req.BookingID),
	}
	var out syncpayChargeResp
	if res := p.doJSON(ctx, http.MethodPost, "/v1/charges", req.IdempotencyToken, payload, &out); res != nil {
		return res, nil
	}
	switch out.Status {
	case "succeeded":
		return &ChargeResult{Status: StatusSucceeded, ExternalRef: out.ID}, nil
	case "declined":
		return &ChargeResult{Status: StatusFailed, ExternalRef: out.ID, ErrorCode: CodeDeclined}, nil
	case "invalid_card":
		return &ChargeResult{Status: StatusFailed, ExternalRef: out.ID, ErrorCode: CodeInvalidCard}, nil
	default:
		log.Printf("[syncpay] unexpected charge status %q id=%s", out.Status, out.ID)
		return FailureResult(CodeUnavailable, true), nil
	}
}

type syncpayRefundReq struct {
	ChargeID string `json:"charge_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
}

type syncpayRefundResp struct {
	ID     string `json:"id"`
	Status string `json:"status"` // succeeded | failed
}

func (p *SyncPayProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	payload := syncpayRefundReq{
		ChargeID: req.ExternalRef,
		Amount:   req.AmountCents,
		Currency: req.Currency,
		Reason:   req.Reason,
	}
	var out syncpayRefundResp
	if res := p.doJSON(ctx, http.MethodPost, "/v1/refunds", req.IdempotencyToken, payload, &out); res != nil {
		return &RefundResult{Status: StatusFailed, ErrorCode: res.ErrorCode, Retryable: res.Retryable}, nil
	}
	if out.Status == "succeeded" {
		return &RefundResult{Status: StatusSucceeded, ProviderRef: out.ID}, nil
	}
	return &RefundResult{Status: StatusFailed, ProviderRef: out.ID, ErrorCode: CodeUnavailable}, nil
}

// doJSON posts payload and decodes into out. A non-nil return is a normalized
// failure (transport error, timeout, or bad status); nil means out is valid.
func (p *SyncPayProvider) doJSON(ctx context.Context, method, path, idemToken string, payload, out interface{}) *ChargeResult {
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, bytes.NewReader(body))
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
		log.Printf("[syncpay] %s %s: %v", method, path, err)
		return FailureResult(CodeUnavailable, true)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		log.Printf("[syncpay] %s %s: %d %s", method, path, resp.StatusCode, string(respBody))
		return FailureResult(CodeUnavailable, true)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[syncpay] %s %s: %d %s", method, path, resp.StatusCode, string(respBody))
		return FailureResult(CodeDeclined, false)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return FailureResult(CodeUnavailable, true)
	}
	return nil
}
