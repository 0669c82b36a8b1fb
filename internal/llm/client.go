// Package llm implements the model client for a locally running LM Studio
// server. It talks to the native REST API (/api/v0), which carries token
// usage and generation performance stats the OpenAI-compatible surface
// omits. One request per completion; no retries, no streaming.
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

	"github.com/charmbracelet/log"

	"companion/internal/config"
	"companion/internal/logger"
	"companion/pkg/chattypes"
)

// Sentinel errors for client failures, consumed with errors.Is.
var (
	// ErrUnreachable means the server could not be reached at all
	// (connection refused or timeout).
	ErrUnreachable = errors.New("model server unreachable")

	// ErrServerError means the server answered with a non-2xx status.
	ErrServerError = errors.New("model server error")

	// ErrMalformedResponse means a 2xx response was missing expected fields.
	ErrMalformedResponse = errors.New("malformed model server response")
)

// Client issues chat-completion requests against the configured endpoint.
type Client struct {
	cfg        *config.Config
	baseURL    string // OpenAI-compatible base, e.g. http://localhost:1234/v1
	nativeBase string // native REST base, e.g. http://localhost:1234/api/v0
	httpClient *http.Client
	logger     *log.Logger
}

// CompletionOptions overrides generation parameters for a single request.
// Zero values fall back to the configured defaults.
type CompletionOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// NewClient creates a client for the configured server. The native API base
// is derived from the OpenAI-compatible base URL the way LM Studio exposes
// both surfaces side by side.
func NewClient(cfg *config.Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	nativeBase := baseURL
	if strings.HasSuffix(nativeBase, "/v1") {
		nativeBase = strings.TrimSuffix(nativeBase, "/v1") + "/api/v0"
	}

	clientLogger := logger.NewStyledLogger("ModelClient")
	clientLogger.Debug("Model client initialized", "base_url", baseURL, "native_base", nativeBase, "model", cfg.Model)

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		nativeBase: nativeBase,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: clientLogger,
	}
}

// chatCompletionRequest is the native chat completion request payload.
type chatCompletionRequest struct {
	Model            string              `json:"model"`
	Messages         []chattypes.Message `json:"messages"`
	Stream           bool                `json:"stream"`
	Temperature      float64             `json:"temperature"`
	MaxTokens        int                 `json:"max_tokens"`
	TopP             float64             `json:"top_p"`
	FrequencyPenalty float64             `json:"frequency_penalty"`
	PresencePenalty  float64             `json:"presence_penalty"`
}

// chatCompletionResponse mirrors the native chat completion response.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int                `json:"index"`
		Message      *chattypes.Message `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage   *chattypes.UsageStats       `json:"usage"`
	Stats   *chattypes.PerformanceStats `json:"stats"`
	Runtime *chattypes.RuntimeInfo      `json:"runtime"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type modelListResponse struct {
	Data []chattypes.ModelInfo `json:"data"`
}

// Health summarizes the server's reachability and loaded models.
type Health struct {
	TotalModels  int
	LoadedModels []string
}

// ChatCompletion sends the ordered message list plus generation parameters to
// the server and returns the structured response. No response is produced
// unless the call fully succeeds; cancelling ctx aborts the request cleanly.
func (c *Client) ChatCompletion(ctx context.Context, messages []chattypes.Message, opts CompletionOptions) (*chattypes.ChatResponse, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := c.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	request := chatCompletionRequest{
		Model:            model,
		Messages:         messages,
		Stream:           false,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		TopP:             c.cfg.TopP,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
	}

	c.logger.Debug("Sending chat completion request", "model", model, "message_count", len(messages))

	body, err := c.postJSON(ctx, "/chat/completions", request)
	if err != nil {
		return nil, err
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrServerError, response.Error.Message)
	}
	if len(response.Choices) == 0 || response.Choices[0].Message == nil {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	choice := response.Choices[0]
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("%w: empty response content", ErrMalformedResponse)
	}

	chatResponse := &chattypes.ChatResponse{
		Message:      *choice.Message,
		Model:        response.Model,
		ID:           response.ID,
		Created:      response.Created,
		FinishReason: choice.FinishReason,
	}
	if response.Usage != nil {
		chatResponse.Usage = *response.Usage
	}
	if response.Stats != nil {
		chatResponse.Stats = *response.Stats
	}
	if response.Runtime != nil {
		chatResponse.Runtime = *response.Runtime
	}
	if chatResponse.Stats.StopReason == "" {
		chatResponse.Stats.StopReason = choice.FinishReason
	}

	c.logger.Info("Chat completion successful",
		"model", model,
		"tokens_generated", chatResponse.Usage.CompletionTokens,
		"tokens_per_second", chatResponse.Stats.TokensPerSecond,
		"finish_reason", chatResponse.FinishReason)

	return chatResponse, nil
}

// ListModels returns all models known to the server.
func (c *Client) ListModels(ctx context.Context) ([]chattypes.ModelInfo, error) {
	body, err := c.getJSON(ctx, "/models")
	if err != nil {
		return nil, err
	}

	var response modelListResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.logger.Debug("Retrieved models", "count", len(response.Data))
	return response.Data, nil
}

// GetModel returns detail for a single model id.
func (c *Client) GetModel(ctx context.Context, modelID string) (*chattypes.ModelInfo, error) {
	body, err := c.getJSON(ctx, "/models/"+modelID)
	if err != nil {
		return nil, err
	}

	var model chattypes.ModelInfo
	if err := json.Unmarshal(body, &model); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if model.ID == "" {
		model.ID = modelID
	}

	return &model, nil
}

// HealthCheck lists models as a reachability probe and reports which are
// loaded and ready to serve.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	health := &Health{TotalModels: len(models)}
	for i := range models {
		if models[i].IsLoaded() {
			health.LoadedModels = append(health.LoadedModels, models[i].ID)
		}
	}

	return health, nil
}

// getJSON issues a GET against the native API and returns the raw body.
func (c *Client) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nativeBase+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// postJSON issues a POST with a JSON payload against the native API and
// returns the raw body.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nativeBase+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	// The http client's own timeout replaces the request context with a
	// deadline of its own, so the caller's context must be captured here to
	// tell caller cancellation apart from a hung server.
	callerCtx := req.Context()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callerCtx.Err() != nil {
			return nil, err
		}
		c.logger.Error("Failed to reach model server", "url", req.URL.String(), "error", err)
		return nil, fmt.Errorf("%w: %v (is the server running?)", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Model server returned error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrServerError, resp.StatusCode, string(body))
	}

	return body, nil
}
