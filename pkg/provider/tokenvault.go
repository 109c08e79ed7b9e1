package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
)

// TokenVaultProvider produces reusable payment-method tokens for
// save-for-later flows. No money moves; the attempt still runs through the
// ledger so setup is audited like any other provider interaction.
type TokenVaultProvider struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewTokenVaultProvider(baseURL, apiKey string) *TokenVaultProvider {
	if baseURL == "" {
		baseURL = "https://api.vault.example.com"
	}
	return &TokenVaultProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *TokenVaultProvider) Name() string  { return "tokenvault" }
func (p *TokenVaultProvider) Model() string { return domain.ModelTokenSetup }

type vaultSetupReq struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type vaultSetupResp struct {
	SetupID string `json:"setup_id"`
	Token   string `json:"token"`
	Status  string `json:"status"`
}

func (p *TokenVaultProvider) SetupToken(ctx context.Context, req TokenRequest) (*TokenResult, error) {
	payload := vaultSetupReq{
		Method:    req.Method,
		Reference: fmt.Sprintf("booking_%d", req.BookingID),
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/setup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	if req.IdempotencyToken != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyToken)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vault setup: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[tokenvault] setup failed: %d %s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("vault setup: %d", resp.StatusCode)
	}
	var out vaultSetupResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("vault setup: empty token")
	}
	return &TokenResult{Token: out.Token, ExternalRef: out.SetupID}, nil
}
