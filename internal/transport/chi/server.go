// Package chi exposes the product search API over HTTP.
package chi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
	searchuc "github.com/lumenshop/visualsearch/internal/usecase/search"
)

// Request bodies arriving through a proxy may be base64-wrapped; cap
// them before decoding.
const maxBodyBytes = 32 << 20

type searcher interface {
	Search(ctx context.Context, req searchuc.Request) ([]domain.Hit, error)
}

type ingester interface {
	Ingest(ctx context.Context) (int, error)
}

type provisioner interface {
	Ensure(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server routes product queries and admin operations to the use cases.
type Server struct {
	search searcher
	ingest ingester
	index  provisioner
	store  pinger
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(search searcher, ingest ingester, index provisioner, store pinger, logger *zap.Logger) *Server {
	return &Server{search: search, ingest: ingest, index: index, store: store, logger: logger}
}

// Routes registers all endpoints on a fresh router. Middleware is the
// caller's concern.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products", s.ListProducts)
	r.Post("/products/search", s.SearchProducts)
	r.Post("/admin/index", s.CreateIndex)
	r.Post("/admin/ingest", s.RunIngest)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

// searchRequest is the client payload. A populated content field holds
// the base64-encoded query image.
type searchRequest struct {
	Content string `json:"content"`
}

// ListProducts handles GET /products: the match-all listing.
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	hits, err := s.search.Search(r.Context(), searchuc.Request{})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hitsToTuples(hits))
}

// SearchProducts handles POST /products/search. The body is JSON,
// possibly base64-wrapped by an upstream proxy; a content field selects
// the visual pipeline, its absence falls back to the listing.
func (s *Server) SearchProducts(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r.Body)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hits, err := s.search.Search(r.Context(), searchuc.Request{ImageBase64: req.Content})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hitsToTuples(hits))
}

// CreateIndex handles POST /admin/index: idempotent index provisioning.
func (s *Server) CreateIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Ensure(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

// RunIngest handles POST /admin/ingest: a full sequential feed ingestion.
func (s *Server) RunIngest(w http.ResponseWriter, r *http.Request) {
	count, err := s.ingest.Ingest(r.Context())
	if err != nil {
		s.logger.Error("ingestion aborted", zap.Int("ingested", count), zap.Error(err))
		writeJSON(w, statusForError(err), map[string]any{
			"ingested": count,
			"error":    safeDomainMessage(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingested": count})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeSearchRequest parses the body as JSON first, then retries after
// base64 unwrapping. A JSON object can never be valid base64 (braces
// are outside the alphabet), so the order is unambiguous.
func decodeSearchRequest(body io.Reader) (searchRequest, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return searchRequest{}, fmt.Errorf("read request body: %w: %w", domain.ErrMalformedRequest, err)
	}

	var req searchRequest
	if err := json.Unmarshal(raw, &req); err == nil {
		return req, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return searchRequest{}, fmt.Errorf("request body is neither JSON nor base64: %w", domain.ErrMalformedRequest)
	}
	if err := json.Unmarshal(decoded, &req); err != nil {
		return searchRequest{}, fmt.Errorf("decoded request body is not JSON: %w: %w", domain.ErrMalformedRequest, err)
	}
	return req, nil
}

// hitsToTuples renders hits as positional arrays, the wire shape the
// storefront consumes: [prodId, productName, imageUrl, score].
func hitsToTuples(hits []domain.Hit) [][]any {
	tuples := make([][]any, len(hits))
	for i, h := range hits {
		tuples[i] = []any{h.ProdID, h.ProductName, h.ImageURL, h.Score}
	}
	return tuples
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMalformedRequest,
		domain.ErrModelInvocation,
		domain.ErrAssetUnavailable,
		domain.ErrImageDecode,
		domain.ErrIndexOperation,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedRequest), errors.Is(err, domain.ErrImageDecode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrModelInvocation), errors.Is(err, domain.ErrAssetUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("internal error", zap.Error(err))
	} else {
		s.logger.Warn("domain error", zap.Error(err))
	}
	writeError(w, status, safeDomainMessage(err))
}
