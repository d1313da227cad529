// Package openai is the client for the hosted vision-language caption model
// behind an OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
	"github.com/lumenshop/visualsearch/internal/metrics"
)

// captionPrompt is fixed: one sentence keeps the downstream embedding text
// short and stable across runs.
const captionPrompt = "Please provide a brief caption for this image in one sentence."

const maxCaptionTokens = 2000

// Config holds the caption model settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Captioner produces a one-sentence natural-language caption for an image.
type Captioner struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewCaptioner creates a caption model client.
func NewCaptioner(cfg Config) *Captioner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Captioner{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Caption sends the base64-encoded image with the fixed prompt and returns
// the first text segment of the response.
func (c *Captioner) Caption(ctx context.Context, imageBase64 string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxCaptionTokens,
		// omitempty drops a literal 0; the epsilon keeps sampling effectively off.
		Temperature: 1e-8,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + imageBase64,
							Detail: openai.ImageURLDetailAuto,
						},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: captionPrompt,
					},
				},
			},
		},
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.ModelRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("empty caption response: %w", domain.ErrModelInvocation)
	}

	metrics.ModelRequestsTotal.WithLabelValues(c.model, "success").Inc()
	metrics.ModelRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	caption := resp.Choices[0].Message.Content
	c.logger.Debug("generated image caption", zap.String("caption", caption))
	return caption, nil
}

// parseAPIError extracts a human-readable error from the API response.
// Everything is wrapped with domain.ErrModelInvocation for status mapping.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("caption API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), domain.ErrModelInvocation)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("caption API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrModelInvocation)
	}

	return fmt.Errorf("caption request failed: %w: %w", domain.ErrModelInvocation, err)
}
