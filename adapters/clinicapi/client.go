package clinicapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/repositories"
)

// Config holds the clinic API connection settings
type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// ValidateConfig validates the clinic API configuration
func ValidateConfig(cfg Config) error {
	if cfg.BaseURL == "" {
		return errors.New("clinic API base URL is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("clinic API base URL must be http(s), got %q", cfg.BaseURL)
	}
	if cfg.TimeoutSeconds < 0 {
		return errors.New("timeout must be non-negative")
	}
	return nil
}

// HTTPStatusError is returned when the clinic API answers with a non-2xx status
type HTTPStatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the clinic backend: the chat endpoint that streams model
// replies and the record endpoints for messages and segments.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a resty-backed clinic API client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid clinic API config: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
		logger.Info("Using default clinic API timeout", zap.Duration("timeout", timeout))
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	logger.Info("Clinic API client initialized", zap.String("base_url", cfg.BaseURL))
	return &Client{http: httpClient, logger: logger}, nil
}

// Stream implements repositories.InferenceChannel. The reply body is returned
// unparsed so callers can read it while it is still arriving.
func (c *Client) Stream(ctx context.Context, req repositories.InferenceRequest) (io.ReadCloser, error) {
	const path = "/chat"

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetHeader("Accept", "text/plain").
		SetHeader("Accept-Encoding", "identity").
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}
	if resp.RawResponse == nil || resp.RawBody() == nil {
		return nil, fmt.Errorf("chat endpoint returned an empty response body")
	}
	if resp.IsError() {
		return nil, statusError(resp, "POST", path)
	}

	return resp.RawBody(), nil
}

// statusError reads and closes the raw body of a failed unparsed response
func statusError(resp *resty.Response, method, path string) error {
	defer resp.RawBody().Close()
	body, _ := io.ReadAll(io.LimitReader(resp.RawBody(), 4096))
	return &HTTPStatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode(),
		Body:       strings.TrimSpace(string(body)),
	}
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.IsError() {
		return &HTTPStatusError{Method: "POST", Path: path, StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(result).Get(path)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.IsError() {
		return &HTTPStatusError{Method: "GET", Path: path, StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}
