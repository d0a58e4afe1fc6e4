package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/msghub/internal/hublog"
	"github.com/nugget/msghub/internal/httpkit"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
	defaultMaxTokens        = 1024
)

// AnthropicConfig configures an AnthropicClient. BaseURL defaults to the
// public API endpoint; MaxTokens to a completion-sized cap.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// AnthropicClient talks to the Anthropic Messages API, non-streaming.
type AnthropicClient struct {
	cfg        AnthropicConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a client. Completions can take a while
// before the first byte arrives, so the underlying HTTP client gets a
// generous response-header timeout rather than the shared default.
func NewAnthropicClient(cfg AnthropicConfig, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &AnthropicClient{
		cfg:    cfg,
		logger: logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(2*time.Minute),
			httpkit.WithResponseHeaderTimeout(2*time.Minute),
			httpkit.WithRetry(2, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	StopReason string `json:"stop_reason"`
}

// Complete sends messages to the Messages API. System-role messages are
// hoisted into the request's system field, which is where the API
// expects them.
func (c *AnthropicClient) Complete(ctx context.Context, model string, messages []Message) (*Response, error) {
	req := anthropicRequest{Model: model, MaxTokens: c.cfg.MaxTokens}
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	var resp anthropicResponse
	if err := c.post(ctx, "/v1/messages", req, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := &Response{
		Model:        resp.Model,
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	c.logger.Debug("completion received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
	)
	c.logger.Log(ctx, hublog.LevelTrace, "completion text", "text", result.Text)
	return result, nil
}

// Ping verifies the API key with a minimal one-token request; there is
// no dedicated health endpoint.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	req := anthropicRequest{
		Model:     "claude-sonnet-4-20250514",
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	var resp anthropicResponse
	return c.post(ctx, "/v1/messages", req, &resp)
}

func (c *AnthropicClient) post(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("anthropic request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("anthropic: invalid API key")
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("anthropic: status %d: %s",
			httpResp.StatusCode, httpkit.ReadErrorBody(httpResp.Body, 4096))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Client = (*AnthropicClient)(nil)
