package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultWorkersAIBaseURL is the Cloudflare REST API root.
const DefaultWorkersAIBaseURL = "https://api.cloudflare.com/client/v4"

// WorkersAIConfig configures the Workers AI gateway.
type WorkersAIConfig struct {
	BaseURL   string
	AccountID string
	APIToken  string
	Model     string
	Timeout   time.Duration
}

// WorkersAIGateway calls the Cloudflare Workers AI run endpoint.
type WorkersAIGateway struct {
	cfg        WorkersAIConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWorkersAIGateway creates a Workers AI gateway. A zero Timeout leaves the
// HTTP client without a deadline; callers bound requests with their context.
func NewWorkersAIGateway(cfg WorkersAIConfig, logger *slog.Logger) *WorkersAIGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWorkersAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkersAIGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type workersAIRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type workersAIEnvelope struct {
	Result  json.RawMessage  `json:"result"`
	Success *bool            `json:"success"`
	Errors  []workersAIError `json:"errors"`
}

type workersAIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *WorkersAIGateway) endpoint() string {
	base := strings.TrimSuffix(g.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", base, g.cfg.AccountID, g.cfg.Model)
}

// Generate sends one request and returns the generated text.
func (g *WorkersAIGateway) Generate(ctx context.Context, req Request) (string, error) {
	requestID := uuid.NewString()
	body, err := json.Marshal(workersAIRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIToken)
	}

	g.logger.Debug("Calling Workers AI",
		"request_id", requestID,
		"model", g.cfg.Model,
		"prompt_length", req.PromptLength(),
	)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", unavailableErr("workers ai request", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			g.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", unavailableErr("read workers ai response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", unavailable("workers ai returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	text, err := parseWorkersAIResponse(data)
	if err != nil {
		g.logger.Warn("Unrecognized Workers AI response", "request_id", requestID, "error", err)
		return "", err
	}
	g.logger.Debug("Workers AI response received", "request_id", requestID, "response_length", len(text))
	return text, nil
}

// parseWorkersAIResponse accepts a bare string result or an object carrying a
// string "response" field. Any other shape is an error.
func parseWorkersAIResponse(data []byte) (string, error) {
	var env workersAIEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", unavailableErr("decode workers ai response", err)
	}
	if env.Success != nil && !*env.Success {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Message))
		}
		return "", unavailable("workers ai reported failure: %s", strings.Join(msgs, "; "))
	}
	return textFromResult(env.Result)
}

func textFromResult(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", unavailable("response has no result")
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", unavailable("unexpected result shape")
	}
	field, ok := obj["response"]
	if !ok {
		return "", unavailable("result has no response field")
	}
	if err := json.Unmarshal(field, &text); err != nil {
		return "", unavailable("response field is not text")
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure WorkersAIGateway implements Gateway.
var _ Gateway = (*WorkersAIGateway)(nil)
