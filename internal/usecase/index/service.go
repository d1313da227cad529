// Package index provisions the product embeddings index.
package index

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
)

// Provisioner creates the index if absent.
type Provisioner interface {
	EnsureIndex(ctx context.Context) error
}

// Service handles index provisioning. It must run before any ingestion or
// search traffic.
type Service struct {
	repo   Provisioner
	logger *zap.Logger
}

// New creates an index service.
func New(repo Provisioner, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Ensure creates the fixed-schema index if it does not exist. Idempotent.
func (s *Service) Ensure(ctx context.Context) error {
	if err := s.repo.EnsureIndex(ctx); err != nil {
		s.logger.Error("index provisioning failed",
			zap.String("index", domain.IndexName),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("index ready", zap.String("index", domain.IndexName))
	return nil
}
