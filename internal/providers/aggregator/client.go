// Package aggregator talks to the hosted model aggregator (kie.ai style jobs
// API) that runs image and video generations for the studio.
package aggregator

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

	"golang.org/x/time/rate"

	"studio/internal/generation"
	"studio/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("aggregator: api key is required")

// Options configures the aggregator client.
type Options struct {
	APIKey         string
	BaseURL        string
	CallbackURL    string
	RatePerSecond  int
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits tasks and reads their status.
type Client struct {
	apiKey      string
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *infra.Logger
}

type createTaskRequest struct {
	Model       string          `json:"model"`
	CallBackURL string          `json:"callBackUrl,omitempty"`
	Input       json.RawMessage `json:"input"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

// Record is the task record returned by recordInfo and carried by flat
// callbacks.
type Record struct {
	TaskID     string `json:"taskId"`
	Model      string `json:"model"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

type resultDoc struct {
	ResultURLs []string `json:"resultUrls"`
}

// NewClient constructs a client with defaults for anything left empty.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("aggregator: base url: %w", err)
	}
	perSec := opts.RatePerSecond
	if perSec <= 0 {
		perSec = 5
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.NopLogger()
		logger = &l
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		callbackURL: strings.TrimSpace(opts.CallbackURL),
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Limit(perSec), perSec),
		logger:      logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit implements generation.Gateway.
func (c *Client) Submit(ctx context.Context, req generation.ProviderRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	body, err := json.Marshal(createTaskRequest{Model: req.Model, CallBackURL: c.callbackURL, Input: req.Input})
	if err != nil {
		return "", fmt.Errorf("aggregator: encode request: %w", err)
	}
	var data createTaskData
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/createTask", body, &data); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.TaskID) == "" {
		return "", errors.New("aggregator: empty task id")
	}
	c.logger.Debug().Str("job_id", req.JobID).Str("task_id", data.TaskID).Str("model", req.Model).Msg("aggregator: task created")
	return data.TaskID, nil
}

// Poll implements generation.Gateway.
func (c *Client) Poll(ctx context.Context, taskID string) (generation.PollResult, error) {
	if !c.HasCredentials() {
		return generation.PollResult{}, ErrMissingAPIKey
	}
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/recordInfo?taskId="+url.QueryEscape(taskID), nil, &rec); err != nil {
		return generation.PollResult{}, err
	}
	return rec.PollResult()
}

// PollResult maps the record state onto the gateway's three states.
func (r Record) PollResult() (generation.PollResult, error) {
	switch strings.ToLower(strings.TrimSpace(r.State)) {
	case "success":
		urls, err := ResultURLs(r.ResultJSON)
		if err != nil {
			return generation.PollResult{}, err
		}
		return generation.PollResult{State: generation.PollSuccess, ResultURLs: urls, Raw: json.RawMessage(r.ResultJSON)}, nil
	case "fail", "failed":
		return generation.PollResult{State: generation.PollFailure, Error: FailureDetail(r.FailCode, r.FailMsg)}, nil
	case "waiting", "queuing", "generating", "":
		return generation.PollResult{State: generation.PollRunning}, nil
	default:
		return generation.PollResult{}, fmt.Errorf("aggregator: unknown task state %q", r.State)
	}
}

// ResultURLs decodes the resultJson string carried by task records.
func ResultURLs(resultJSON string) ([]string, error) {
	if strings.TrimSpace(resultJSON) == "" {
		return nil, errors.New("aggregator: empty resultJson")
	}
	var doc resultDoc
	if err := json.Unmarshal([]byte(resultJSON), &doc); err != nil {
		return nil, fmt.Errorf("aggregator: decode resultJson: %w", err)
	}
	if len(doc.ResultURLs) == 0 {
		return nil, errors.New("aggregator: resultJson without resultUrls")
	}
	return doc.ResultURLs, nil
}

// FailureDetail renders a provider failure for the job record.
func FailureDetail(code, msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "generation failed at provider"
	}
	if code = strings.TrimSpace(code); code != "" {
		return fmt.Sprintf("%s (code %s)", msg, code)
	}
	return msg
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("aggregator: rate limit: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("aggregator: build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("aggregator: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("aggregator: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("aggregator: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("aggregator: decode response: %w", err)
	}
	if resp.StatusCode >= 300 || env.Code != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Msg, Endpoint: path}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("aggregator: decode data: %w", err)
		}
	}
	return nil
}

// APIError is a non-success answer from the aggregator.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator: %s (code %d, status %d, endpoint %s)", e.Message, e.Code, e.StatusCode, e.Endpoint)
}

var _ generation.Gateway = (*Client)(nil)
