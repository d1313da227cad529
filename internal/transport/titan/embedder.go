// Package titan is the client for the hosted multimodal embedding model,
// which accepts text plus a base64 image and returns a fixed-dimension
// vector over a JSON-over-HTTP invoke endpoint.
package titan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
	"github.com/lumenshop/visualsearch/internal/metrics"
)

// Config holds the embedding model settings.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Dimensions  int
	Timeout     time.Duration // per-attempt; minutes-scale, the model throttles hard under load
	MaxAttempts int           // retry ceiling for the adaptive backoff policy
	Logger      *zap.Logger
}

// Embedder calls the multimodal embedding model.
//
// The retry policy lives here and nowhere else: embedding calls are the one
// external dependency expected to throttle for long stretches during batch
// ingestion, so the client tolerates a very high attempt count with
// exponential backoff. Callers never retry on top of this.
type Embedder struct {
	endpoint    string
	apiKey      string
	model       string
	dimensions  int
	maxAttempts int
	client      *http.Client
	logger      *zap.Logger
}

// NewEmbedder creates an embedding model client.
func NewEmbedder(cfg Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 600
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = domain.EmbeddingDim
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimensions:  dimensions,
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type embedRequest struct {
	InputText  string `json:"inputText"`
	InputImage string `json:"inputImage"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the joint embedding of the text and the base64-encoded image.
func (e *Embedder) Embed(ctx context.Context, text, imageBase64 string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{InputText: text, InputImage: imageBase64})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	start := time.Now()

	vector, err := backoff.Retry(ctx,
		func() ([]float32, error) { return e.invoke(ctx, body) },
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(e.maxAttempts)),
	)

	duration := time.Since(start)

	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return nil, fmt.Errorf("embed: %w: %w", domain.ErrModelInvocation, err)
	}

	metrics.ModelRequestsTotal.WithLabelValues(e.model, "success").Inc()
	metrics.ModelRequestDuration.WithLabelValues(e.model).Observe(duration.Seconds())

	return vector, nil
}

// invoke performs one model call. Throttling and server errors are
// retryable; any other client error is permanent.
func (e *Embedder) invoke(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		callErr := fmt.Errorf("model API error %d: %s", resp.StatusCode, string(detail))

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			e.logger.Debug("embedding call throttled, backing off",
				zap.Int("status", resp.StatusCode),
			)
			return nil, callErr
		}
		return nil, backoff.Permanent(callErr)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse embed response: %w", err))
	}
	if len(parsed.Embedding) != e.dimensions {
		return nil, backoff.Permanent(fmt.Errorf(
			"embedding has %d components, want %d", len(parsed.Embedding), e.dimensions))
	}

	return parsed.Embedding, nil
}
