package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	tapPaySandboxURL    = "https://sandbox.tappaysdk.com/tpc/payment/pay-by-prime"
	tapPayProductionURL = "https://prod.tappaysdk.com/tpc/payment/pay-by-prime"
)

type TapPayConfig struct {
	PartnerKey string
	MerchantID string
	// Env is "sandbox" or "production".
	Env     string
	Timeout time.Duration
	// URL overrides the endpoint derived from Env.
	URL string
}

type TapPay struct {
	cfg    TapPayConfig
	url    string
	client *http.Client
}

func NewTapPay(cfg TapPayConfig) *TapPay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	url := cfg.URL
	if url == "" {
		url = tapPaySandboxURL
		if cfg.Env == "production" {
			url = tapPayProductionURL
		}
	}

	return &TapPay{
		cfg:    cfg,
		url:    url,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type tapPayRequest struct {
	Prime       string `json:"prime"`
	PartnerKey  string `json:"partner_key"`
	MerchantID  string `json:"merchant_id"`
	Details     string `json:"details"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	OrderNumber string `json:"order_number"`
	Remember    bool   `json:"remember"`
}

type tapPayResponse struct {
	Status            *int   `json:"status"`
	Msg               string `json:"msg"`
	RecTradeID        string `json:"rec_trade_id"`
	BankTransactionID string `json:"bank_transaction_id"`
}

func (t *TapPay) Charge(ctx context.Context, req Request) (Result, error) {
	const op = "gateway.TapPay.Charge"

	body, err := json.Marshal(tapPayRequest{
		Prime:       req.Token,
		PartnerKey:  t.cfg.PartnerKey,
		MerchantID:  t.cfg.MerchantID,
		Details:     req.Details,
		Amount:      req.Amount,
		Currency:    req.Currency,
		OrderNumber: req.OrderRef,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", t.cfg.PartnerKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%s: read body: %w", op, err)
	}

	var out tapPayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%s: decode body (http %d): %w", op, resp.StatusCode, err)
	}
	if out.Status == nil {
		return Result{}, fmt.Errorf("%s: response without status (http %d)", op, resp.StatusCode)
	}

	return Result{
		Code:              *out.Status,
		Message:           out.Msg,
		TransactionID:     out.RecTradeID,
		BankTransactionID: out.BankTransactionID,
	}, nil
}
