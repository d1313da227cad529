// Package ingest runs the batch ingestion pipeline: for each product in the
// feed, fetch and stage the image, derive the joint embedding, write the
// document to the index.
package ingest

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
	"github.com/lumenshop/visualsearch/internal/metrics"
)

// Feed supplies the product catalog in feed order.
type Feed interface {
	Products(ctx context.Context) ([]domain.Product, error)
}

// AssetStager fetches a source image, stages it, and returns it base64-encoded.
type AssetStager interface {
	FetchAndStage(ctx context.Context, imagePath string) (string, error)
}

// Embedder derives the joint text+image embedding.
type Embedder interface {
	Embed(ctx context.Context, text, imageBase64 string) ([]float32, error)
}

// Writer indexes one document.
type Writer interface {
	Insert(ctx context.Context, doc domain.Document) error
}

// Service is the ingestion pipeline.
type Service struct {
	feed   Feed
	stager AssetStager
	embed  Embedder
	writer Writer
	logger *zap.Logger
}

// New creates an ingestion service.
func New(feed Feed, stager AssetStager, embed Embedder, writer Writer, logger *zap.Logger) *Service {
	return &Service{feed: feed, stager: stager, embed: embed, writer: writer, logger: logger}
}

// Ingest processes the feed strictly sequentially, in feed order, and
// returns the number of indexed products.
//
// Sequential processing bounds model request concurrency and keeps error
// attribution unambiguous. The first failure aborts the whole batch:
// already-indexed products stay indexed, later products are never attempted.
func (s *Service) Ingest(ctx context.Context) (int, error) {
	products, err := s.feed.Products(ctx)
	if err != nil {
		return 0, fmt.Errorf("read product feed: %w", err)
	}

	s.logger.Info("starting product feed ingestion", zap.Int("products", len(products)))
	start := time.Now()

	for i, p := range products {
		if err := s.ingestOne(ctx, p); err != nil {
			metrics.IngestedProductsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("ingestion aborted",
				zap.String("product_id", p.ID),
				zap.Int("position", i+1),
				zap.Int("indexed", i),
				zap.Error(err),
			)
			return i, fmt.Errorf("product %s: %w", p.ID, err)
		}
		metrics.IngestedProductsTotal.WithLabelValues("indexed").Inc()
		s.logger.Debug("indexed product", zap.String("product_id", p.ID))
	}

	s.logger.Info("completed product feed ingestion",
		zap.Int("products", len(products)),
		zap.Duration("took", time.Since(start)),
	)
	return len(products), nil
}

func (s *Service) ingestOne(ctx context.Context, p domain.Product) error {
	imageBase64, err := s.stager.FetchAndStage(ctx, p.MainImagePath)
	if err != nil {
		return err
	}

	embedding, err := s.embed.Embed(ctx, p.Name, imageBase64)
	if err != nil {
		return err
	}

	return s.writer.Insert(ctx, domain.Document{
		ProdID:      p.ID,
		ProductName: p.Name,
		ImageURL:    path.Base(p.MainImagePath),
		Embedding:   embedding,
	})
}
