// Package search answers product queries: a match-all listing when no
// image is supplied, and caption-then-embed visual similarity otherwise.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
)

const (
	// KNearest is the number of neighbours returned by a visual search.
	KNearest = 5
	// ListingSize caps the match-all product listing.
	ListingSize = 25
)

// Captioner produces a one-sentence description of an image.
type Captioner interface {
	Caption(ctx context.Context, imageBase64 string) (string, error)
}

// Embedder turns a caption and an image into a joint embedding.
type Embedder interface {
	Embed(ctx context.Context, text, imageBase64 string) ([]float32, error)
}

// Repository queries the product embeddings index.
type Repository interface {
	SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
	ListAll(ctx context.Context, limit int) ([]domain.Hit, error)
}

// Request carries the optional query image, already base64-encoded.
// An empty image requests the plain product listing.
type Request struct {
	ImageBase64 string
}

// Service routes between the listing and the visual-search pipelines.
type Service struct {
	captioner Captioner
	embed     Embedder
	repo      Repository
	logger    *zap.Logger
}

// New creates a search service.
func New(captioner Captioner, embed Embedder, repo Repository, logger *zap.Logger) *Service {
	return &Service{captioner: captioner, embed: embed, repo: repo, logger: logger}
}

// Search executes the query. With no image it returns up to ListingSize
// products and never touches the models; with an image it captions it,
// embeds caption plus image, and returns the KNearest most similar
// products by descending score.
func (s *Service) Search(ctx context.Context, req Request) ([]domain.Hit, error) {
	if req.ImageBase64 == "" {
		return s.repo.ListAll(ctx, ListingSize)
	}
	return s.visual(ctx, req.ImageBase64)
}

func (s *Service) visual(ctx context.Context, imageBase64 string) ([]domain.Hit, error) {
	start := time.Now()

	caption, err := s.captioner.Caption(ctx, imageBase64)
	if err != nil {
		return nil, fmt.Errorf("caption query image: %w", err)
	}
	s.logger.Debug("captioned query image", zap.String("caption", caption))

	vector, err := s.embed.Embed(ctx, caption, imageBase64)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}

	hits, err := s.repo.SearchKNN(ctx, vector, KNearest)
	if err != nil {
		return nil, err
	}

	s.logger.Info("visual search completed",
		zap.Int("hits", len(hits)),
		zap.Duration("duration", time.Since(start)),
	)
	return hits, nil
}
