// Package catalog maps product documents onto the fixed
// product-embeddings-index in the vector store.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumenshop/visualsearch/internal/db"
	"github.com/lumenshop/visualsearch/internal/domain"
)

// store is the consumer interface for catalog operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, limit int, fields []string) (*db.SearchResult, error)
}

// HNSWConfig holds ANN graph parameters for the embedding field.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements index provisioning, document writes and queries against
// the product embeddings index.
type Repo struct {
	store store
	hnsw  HNSWConfig
}

// New creates a catalog repository.
func New(s store, hnsw HNSWConfig) *Repo {
	if hnsw.M <= 0 {
		hnsw.M = 32
	}
	if hnsw.EFConstruct <= 0 {
		hnsw.EFConstruct = 400
	}
	return &Repo{store: s, hnsw: hnsw}
}

// EnsureIndex creates the product embeddings index if it does not exist.
// Safe to call repeatedly: the schema is fixed, so both the pre-existing
// index and a concurrent-creation conflict count as success.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, domain.IndexName)
	if err != nil {
		return fmt.Errorf("probe index %s: %w: %w", domain.IndexName, domain.ErrIndexOperation, err)
	}
	if exists {
		return nil
	}

	if err := r.store.CreateIndex(ctx, indexDef(r.hnsw)); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			// Lost a creation race; settings are identical, nothing to do.
			return nil
		}
		return fmt.Errorf("create index %s: %w: %w", domain.IndexName, domain.ErrIndexOperation, err)
	}
	return nil
}

// Insert writes one document under a fresh store-assigned key. Repeated
// ingestion of the same product therefore produces duplicate documents.
func (r *Repo) Insert(ctx context.Context, doc domain.Document) error {
	key := domain.KeyPrefix + uuid.NewString()
	if err := r.store.HSet(ctx, key, docToHash(doc)); err != nil {
		return fmt.Errorf("index document for product %s: %w: %w", doc.ProdID, domain.ErrIndexOperation, err)
	}
	return nil
}

// SearchKNN returns up to k nearest documents by cosine similarity,
// ordered by descending score.
func (r *Repo) SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    domain.IndexName,
		VectorField:  domain.EmbeddingField,
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w: %w", domain.ErrIndexOperation, err)
	}
	return entriesToHits(result.Entries), nil
}

// ListAll returns up to limit documents via a match-all query. The order is
// the engine default and scores are zero.
func (r *Repo) ListAll(ctx context.Context, limit int) ([]domain.Hit, error) {
	result, err := r.store.SearchList(ctx, domain.IndexName, "*", limit, returnFields)
	if err != nil {
		return nil, fmt.Errorf("match-all search: %w: %w", domain.ErrIndexOperation, err)
	}
	return entriesToHits(result.Entries), nil
}
