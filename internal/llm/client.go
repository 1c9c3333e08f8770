// Package llm is the gateway to an OpenAI-compatible chat completion
// endpoint. It owns transport failure classification and bounded retries so
// that callers only ever see a completion or a typed GatewayError.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deniscovei/fraudchat/internal/observability"
)

// ErrorKind classifies a gateway failure. AuthFailure is never retried;
// the other kinds are retried up to the configured budget.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindAuthFailure ErrorKind = "auth_failure"
	KindUnavailable ErrorKind = "unavailable"
)

type GatewayError struct {
	Kind ErrorKind
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("llm gateway %s: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Message is one turn of a chat completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is a single completion call. Messages must already include the
// system prompt when one is wanted.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Client produces one completion per call. Implementations must return
// *GatewayError for transport and provider failures.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type HTTPConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// HTTPClient talks to <base>/v1/chat/completions with a bearer key. It
// retries rate-limit, timeout and availability failures with exponential
// backoff; auth failures surface immediately.
type HTTPClient struct {
	baseURL        string
	apiKey         string
	model          string
	temperature    float64
	maxRetries     int
	retryBaseDelay time.Duration
	client         *http.Client
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryBaseDelay := cfg.RetryBaseDelay
	if retryBaseDelay <= 0 {
		retryBaseDelay = 500 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          model,
		temperature:    cfg.Temperature,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("no messages to complete")}
	}

	delay := c.retryBaseDelay
	for attempt := 0; ; attempt++ {
		content, gwErr := c.completeOnce(ctx, req)
		if gwErr == nil {
			return content, nil
		}
		if gwErr.Kind == KindAuthFailure || attempt >= c.maxRetries {
			return "", gwErr
		}
		observability.IncrementLLMRetry(string(gwErr.Kind))
		select {
		case <-ctx.Done():
			return "", &GatewayError{Kind: KindTimeout, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *HTTPClient) completeOnce(ctx context.Context, req Request) (string, *GatewayError) {
	payload := map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"temperature": c.temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("marshal chat payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("build chat request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return "", &GatewayError{Kind: KindTimeout, Err: err}
		}
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("request chat completion: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("read chat response body: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return "", classifyStatus(resp.StatusCode, rawRespBody)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("decode chat completion response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &GatewayError{Kind: KindUnavailable, Err: fmt.Errorf("empty chat completion choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}

func classifyStatus(status int, body []byte) *GatewayError {
	err := fmt.Errorf("chat completion failed status=%d body=%s", status, truncateBody(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &GatewayError{Kind: KindAuthFailure, Err: err}
	case status == http.StatusTooManyRequests:
		return &GatewayError{Kind: KindRateLimited, Err: err}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &GatewayError{Kind: KindTimeout, Err: err}
	default:
		return &GatewayError{Kind: KindUnavailable, Err: err}
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
