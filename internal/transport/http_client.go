package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// HTTPClient handles HTTP communication with the Inputs API.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tokens    *TokenSource
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		tokens:     &TokenSource{},
		maxRetries: cfg.MaxRetries,
		retryDelay: 200 * time.Millisecond,
		logger:     logger.WithField("component", "http_client"),
	}
}

// SetToken sets the authentication token.
func (c *HTTPClient) SetToken(token string) {
	c.tokens.Set(token)
}

// GetToken returns the current authentication token.
func (c *HTTPClient) GetToken() string {
	return c.tokens.Get()
}

// statusError is a retryable HTTP status.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.status, e.body)
}

// PostJSON sends payload and decodes a 200 response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload, out interface{}) error {
	url := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": "POST",
		"url":    url,
		"size":   len(body),
	}).Debug("Sending request")

	var (
		status   int
		respBody []byte
	)
	err = c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if token := c.tokens.Get(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if c.isRetryable(resp.StatusCode) {
			return &statusError{status: resp.StatusCode, body: data}
		}

		status, respBody = resp.StatusCode, data
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"status": status,
		"size":   len(respBody),
	}).Debug("Received response")

	if status != http.StatusOK {
		apiErr := &models.APIError{}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(respBody))
		}
		apiErr.StatusCode = status
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(ctx, err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

// isRetryableError treats transport failures and retryable statuses as
// transient; cancellation of the caller's context is final.
func (c *HTTPClient) isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *models.APIError
	return !errors.As(err, &apiErr)
}

// HTTPInputsClient implements InputsClient over the HTTP/JSON API.
type HTTPInputsClient struct {
	http *HTTPClient
}

// NewHTTPInputsClient wraps an HTTP client.
func NewHTTPInputsClient(client *HTTPClient) *HTTPInputsClient {
	return &HTTPInputsClient{http: client}
}

var _ InputsClient = (*HTTPInputsClient)(nil)

// CreateInput implements InputsClient.
func (c *HTTPInputsClient) CreateInput(ctx context.Context, input *models.Input) (*models.Input, error) {
	var resp InputResponse
	if err := c.http.PostJSON(ctx, RouteCreateInput, CreateInputRequest{Input: input}, &resp); err != nil {
		return nil, fmt.Errorf("create input: %w", err)
	}
	return resp.Input, nil
}

// GetInput implements InputsClient.
func (c *HTTPInputsClient) GetInput(ctx context.Context, filter models.InputFilter, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	var resp InputResponse
	req := GetInputRequest{Filter: filter, FieldMask: mask.GetPaths()}
	if err := c.http.PostJSON(ctx, RouteGetInput, req, &resp); err != nil {
		return nil, fmt.Errorf("get input %s: %w", filter, err)
	}
	return resp.Input, nil
}

// UpdateInput implements InputsClient.
func (c *HTTPInputsClient) UpdateInput(ctx context.Context, input *models.Input, mask *fieldmaskpb.FieldMask) (*models.Input, error) {
	var resp InputResponse
	req := UpdateInputRequest{Input: input, FieldMask: mask.GetPaths()}
	if err := c.http.PostJSON(ctx, RouteUpdateInput, req, &resp); err != nil {
		return nil, fmt.Errorf("update input %s: %w", input.ID, err)
	}
	return resp.Input, nil
}

// RemoveInput implements InputsClient.
func (c *HTTPInputsClient) RemoveInput(ctx context.Context, id string) error {
	if err := c.http.PostJSON(ctx, RouteRemoveInput, RemoveInputRequest{ID: id}, nil); err != nil {
		return fmt.Errorf("remove input %s: %w", id, err)
	}
	return nil
}

// ListInputs implements InputsClient.
func (c *HTTPInputsClient) ListInputs(ctx context.Context, filter models.InputFilter) ([]*models.Input, error) {
	var resp ListInputsResponse
	if err := c.http.PostJSON(ctx, RouteListInputs, ListInputsRequest{Filter: filter}, &resp); err != nil {
		return nil, fmt.Errorf("list inputs %s: %w", filter, err)
	}
	return resp.Inputs, nil
}
