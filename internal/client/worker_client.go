package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/makeasinger/gentrack/internal/config"
)

// WorkerClient talks to the remote generation worker
type WorkerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// RenderStatus is the worker's view of a multi-angle render
type RenderStatus struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Angles []AngleStatus `json:"angles,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// AngleStatus is one camera angle inside a render
type AngleStatus struct {
	Label  string `json:"label"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// GenerationStatus is the worker's view of a single-artifact generation
type GenerationStatus struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	URL    string   `json:"url,omitempty"`
	URLs   []string `json:"urls,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// SubmitResponse is returned by the worker once it accepted a submission
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// NewWorkerClient creates a new worker API client
func NewWorkerClient(cfg *config.WorkerConfig, logger *zap.Logger) *WorkerClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &WorkerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("worker_api"),
	}
}

// GetRenderStatus retrieves the status of a multi-angle render
func (c *WorkerClient) GetRenderStatus(ctx context.Context, externalID string) (*RenderStatus, error) {
	endpoint := fmt.Sprintf("/v1/renders/%s", url.PathEscape(externalID))
	var result RenderStatus
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetGenerationStatus retrieves the status of a single-artifact generation
func (c *WorkerClient) GetGenerationStatus(ctx context.Context, resource, externalID string) (*GenerationStatus, error) {
	endpoint := fmt.Sprintf("/v1/generations/%s/%s", url.PathEscape(resource), url.PathEscape(externalID))
	var result GenerationStatus
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitRender starts a multi-angle render
func (c *WorkerClient) SubmitRender(ctx context.Context, submission json.RawMessage) (*SubmitResponse, error) {
	var result SubmitResponse
	if err := c.post(ctx, "/v1/renders", submission, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitGeneration starts a single-artifact generation against resource
func (c *WorkerClient) SubmitGeneration(ctx context.Context, resource string, submission json.RawMessage) (*SubmitResponse, error) {
	endpoint := fmt.Sprintf("/v1/generations/%s", url.PathEscape(resource))
	var result SubmitResponse
	if err := c.post(ctx, endpoint, submission, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *WorkerClient) post(ctx context.Context, endpoint string, body json.RawMessage, result interface{}) error {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

func (c *WorkerClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *WorkerClient) doRequest(req *http.Request, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log := c.logger.With(zap.String("method", req.Method), zap.String("url", req.URL.String()))
	log.Debug("request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("request failed", zap.Error(err))
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("failed to read response", zap.Error(err))
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug("response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("worker API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Warn("unmarshal error", zap.Error(err), zap.ByteString("body", respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has a worker to talk to
func (c *WorkerClient) IsConfigured() bool {
	return c.baseURL != ""
}
