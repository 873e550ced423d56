package gatewayrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Anastasia-Su/library-api-service/util/httpx"
)

type httpRepo struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewHTTP(apiKey, baseURL string) Repo {
	return &httpRepo{apiKey: apiKey, baseURL: baseURL, client: httpx.Client()}
}

func (r *httpRepo) Charge(ctx context.Context, req ChargeReq) (*ChargeResp, error) {
	body := map[string]any{
		"amount":          req.AmountCents,
		"currency":        req.Currency,
		"description":     req.Description,
		"idempotency_key": req.IdempotencyKey,
		"confirm":         true,
	}
	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/charges", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(r.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway charge failed: %s", resp.Status)
	}

	var out struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Status != "succeeded" {
		return nil, &DeclinedError{Reason: out.ErrorMessage}
	}
	if out.ID == "" {
		return nil, fmt.Errorf("gateway: empty transaction id")
	}

	return &ChargeResp{TransactionRef: out.ID}, nil
}

func (r *httpRepo) Refund(ctx context.Context, transactionRef string) error {
	body := map[string]any{"charge": transactionRef}
	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/refunds", bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(r.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway refund failed: %s", resp.Status)
	}

	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if out.Status != "succeeded" {
		return &DeclinedError{Reason: out.ErrorMessage}
	}
	return nil
}
