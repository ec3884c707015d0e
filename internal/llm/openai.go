package llm

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures a gateway for any OpenAI-compatible chat endpoint,
// including the Workers AI /ai/v1 compatibility surface and OpenRouter.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIGateway generates text through the chat completions API.
type OpenAIGateway struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIGateway creates an OpenAI-compatible gateway.
func NewOpenAIGateway(cfg OpenAIConfig, logger *slog.Logger) *OpenAIGateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Generate sends one chat completion request and returns the first choice.
func (g *OpenAIGateway) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", unavailableErr("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable("chat completion returned no choices")
	}

	g.logger.Debug("Chat completion received",
		"model", resp.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// Ensure OpenAIGateway implements Gateway.
var _ Gateway = (*OpenAIGateway)(nil)
