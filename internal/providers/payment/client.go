// Package payment is a client for the card/PromptPay payment gateway (Omise
// compatible charges API) used to sell credit packs.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"studio/internal/infra"
)

// ErrMissingSecretKey indicates that the client was configured without credentials.
var ErrMissingSecretKey = errors.New("payment: secret key is required")

// Charge statuses reported by the gateway.
const (
	ChargeSuccessful = "successful"
	ChargeFailed     = "failed"
	ChargePending    = "pending"
	ChargeExpired    = "expired"
)

// Options configures the payment client.
type Options struct {
	SecretKey      string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client creates and reads charges.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ChargeRequest describes a new charge. Amount is in the currency's smallest unit.
type ChargeRequest struct {
	Amount      int64
	Currency    string
	Source      string
	ReturnURI   string
	Description string
	Metadata    map[string]string
}

// Charge is the gateway's charge object.
type Charge struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	AuthorizeURI string            `json:"authorize_uri"`
	FailureCode  string            `json:"failure_code"`
	Metadata     map[string]string `json:"metadata"`
}

// Successful reports whether the charge captured money.
func (c Charge) Successful() bool {
	return c.Status == ChargeSuccessful && c.Paid
}

type errorResponse struct {
	Object  string `json:"object"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with defaults for anything left empty.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.omise.co"
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.NopLogger()
		logger = &l
	}
	return &Client{
		secretKey:  strings.TrimSpace(opts.SecretKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateCharge starts a charge. Offsite sources return an AuthorizeURI the
// buyer must visit; the outcome then arrives through the payment webhook.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if c.secretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if req.Amount <= 0 || strings.TrimSpace(req.Source) == "" {
		return nil, errors.New("payment: amount and source are required")
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("source", req.Source)
	if req.ReturnURI != "" {
		form.Set("return_uri", req.ReturnURI)
	}
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/charges", strings.NewReader(form.Encode()), &charge); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("charge_id", charge.ID).Str("status", charge.Status).Msg("payment: charge created")
	return &charge, nil
}

// GetCharge re-reads a charge. Webhook bodies are never trusted for status.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	if c.secretKey == "" {
		return nil, ErrMissingSecretKey
	}
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, errors.New("payment: charge id is required")
	}
	var charge Charge
	if err := c.do(ctx, http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payment: build request: %w", err)
	}
	httpReq.SetBasicAuth(c.secretKey, "")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("payment: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payment: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return fmt.Errorf("payment: %s (%s)", detail.Message, detail.Code)
		}
		return fmt.Errorf("payment: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("payment: decode response: %w", err)
	}
	return nil
}
