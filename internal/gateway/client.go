// Package gateway talks to a Razorpay-style payment processor.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 4 << 10

type Config struct {
	BaseURL string
	KeyID   string
	Secret  string
	Timeout time.Duration
}

// Client implements ports.PaymentGateway over the processor's REST API.
type Client struct {
	baseURL    *url.URL
	keyID      string
	secret     string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: base,
		keyID:   cfg.KeyID,
		secret:  cfg.Secret,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateTransaction opens a processor-side order. reference is sent as the receipt.
func (c *Client) CreateTransaction(ctx context.Context, amount int64, currency, reference string) (*ports.GatewayTransaction, error) {
	var out orderResponse
	err := c.do(ctx, "create_order", http.MethodPost, "/v1/orders", createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  reference,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &domain.GatewayError{Op: "create_order", Err: errors.New("response carried no order id")}
	}

	return &ports.GatewayTransaction{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Status:   out.Status,
	}, nil
}

type refundRequest struct {
	Amount  int64             `json:"amount"`
	Receipt string            `json:"receipt,omitempty"`
	Notes   map[string]string `json:"notes,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund refunds amount of a captured payment and returns the processor refund id.
// The reference is sent as the refund receipt.
func (c *Client) Refund(ctx context.Context, gatewayPaymentID string, amount int64, reference, reason string) (string, error) {
	req := refundRequest{Amount: amount, Receipt: reference}
	if reason != "" {
		req.Notes = map[string]string{"reason": reason}
	}

	var out refundResponse
	path := "/v1/payments/" + url.PathEscape(gatewayPaymentID) + "/refund"
	if err := c.do(ctx, "refund", http.MethodPost, path, req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &domain.GatewayError{Op: "refund", Err: errors.New("response carried no refund id")}
	}
	return out.ID, nil
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.keyID, c.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GatewayError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        errors.New(describe(raw, resp.Status)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func describe(raw []byte, fallback string) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Description != "" {
		if env.Error.Code != "" {
			return env.Error.Code + ": " + env.Error.Description
		}
		return env.Error.Description
	}
	return fallback
}
