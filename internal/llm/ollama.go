package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/msghub/internal/hublog"
	"github.com/nugget/msghub/internal/httpkit"
)

// OllamaClient talks to a local or LAN Ollama server's chat API with
// stream:false. Local models can take a long time to load before the
// first byte, so both timeouts are far above the shared defaults.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:11434".
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL: baseURL,
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithResponseHeaderTimeout(5*time.Minute),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

type ollamaRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

// Complete sends a non-streaming chat request.
func (c *OllamaClient) Complete(ctx context.Context, model string, messages []Message) (*Response, error) {
	data, err := json.Marshal(ollamaRequest{Model: model, Messages: messages, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: status %d: %s",
			httpResp.StatusCode, httpkit.ReadErrorBody(httpResp.Body, 4096))
	}

	var resp ollamaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Response{
		Model:        resp.Model,
		Text:         resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}
	c.logger.Debug("completion received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
	)
	c.logger.Log(ctx, hublog.LevelTrace, "completion text", "text", result.Text)
	return result, nil
}

// Ping checks the server's model listing endpoint, the cheapest call
// that proves the server is up.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	httpkit.DrainAndClose(httpResp.Body, 64*1024)
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d", httpResp.StatusCode)
	}
	return nil
}

var _ Client = (*OllamaClient)(nil)
