package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
)

type mockCaptioner struct {
	calls   int
	caption string
	err     error
}

func (m *mockCaptioner) Caption(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.caption, m.err
}

type mockEmbedder struct {
	calls     int
	lastText  string
	lastImage string
	vector    []float32
	err       error
}

func (m *mockEmbedder) Embed(_ context.Context, text, imageBase64 string) ([]float32, error) {
	m.calls++
	m.lastText = text
	m.lastImage = imageBase64
	return m.vector, m.err
}

type mockRepo struct {
	knnVector []float32
	knnK      int
	knnHits   []domain.Hit
	knnErr    error

	listLimit int
	listHits  []domain.Hit
	listErr   error
}

func (m *mockRepo) SearchKNN(_ context.Context, vector []float32, k int) ([]domain.Hit, error) {
	m.knnVector = vector
	m.knnK = k
	return m.knnHits, m.knnErr
}

func (m *mockRepo) ListAll(_ context.Context, limit int) ([]domain.Hit, error) {
	m.listLimit = limit
	return m.listHits, m.listErr
}

func TestSearch_ListingNeverTouchesModels(t *testing.T) {
	capt := &mockCaptioner{caption: "unused"}
	emb := &mockEmbedder{vector: []float32{1}}
	repo := &mockRepo{listHits: []domain.Hit{
		{ProdID: "B01", ProductName: "Mug", ImageURL: "mug.jpg"},
		{ProdID: "B02", ProductName: "Lamp", ImageURL: "lamp.jpg"},
	}}
	s := New(capt, emb, repo, zap.NewNop())

	hits, err := s.Search(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.listLimit != ListingSize {
		t.Errorf("listing limit = %d, want %d", repo.listLimit, ListingSize)
	}
	if capt.calls != 0 || emb.calls != 0 {
		t.Errorf("models called on listing: captioner=%d embedder=%d", capt.calls, emb.calls)
	}
	if len(hits) != 2 || hits[0].ProdID != "B01" {
		t.Errorf("unexpected hits: %+v", hits)
	}
	// Listing hits carry no similarity score.
	for _, h := range hits {
		if h.Score != 0 {
			t.Errorf("listing hit %s has score %v, want 0", h.ProdID, h.Score)
		}
	}
}

func TestSearch_VisualPipeline(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	capt := &mockCaptioner{caption: "a blue ceramic mug on a table"}
	emb := &mockEmbedder{vector: vec}
	repo := &mockRepo{knnHits: []domain.Hit{
		{ProdID: "B01", ProductName: "Mug", ImageURL: "mug.jpg", Score: 0.95},
		{ProdID: "B02", ProductName: "Cup", ImageURL: "cup.jpg", Score: 0.81},
		{ProdID: "B03", ProductName: "Bowl", ImageURL: "bowl.jpg", Score: 0.54},
	}}
	s := New(capt, emb, repo, zap.NewNop())

	hits, err := s.Search(context.Background(), Request{ImageBase64: "aW1n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capt.calls != 1 {
		t.Errorf("captioner calls = %d, want 1", capt.calls)
	}
	// The embedding combines the generated caption with the query image.
	if emb.lastText != capt.caption || emb.lastImage != "aW1n" {
		t.Errorf("embed inputs = (%q, %q)", emb.lastText, emb.lastImage)
	}
	if repo.knnK != KNearest {
		t.Errorf("k = %d, want %d", repo.knnK, KNearest)
	}
	if len(repo.knnVector) != len(vec) || repo.knnVector[0] != vec[0] {
		t.Errorf("search vector = %v, want %v", repo.knnVector, vec)
	}
	if len(hits) > KNearest {
		t.Fatalf("got %d hits, want at most %d", len(hits), KNearest)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores not descending at %d: %v > %v", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestSearch_CaptionFailureSkipsEmbedding(t *testing.T) {
	capt := &mockCaptioner{err: domain.ErrModelInvocation}
	emb := &mockEmbedder{}
	s := New(capt, emb, &mockRepo{}, zap.NewNop())

	_, err := s.Search(context.Background(), Request{ImageBase64: "aW1n"})
	if !errors.Is(err, domain.ErrModelInvocation) {
		t.Fatalf("expected ErrModelInvocation, got %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times after caption failure", emb.calls)
	}
}

func TestSearch_EmbedFailure(t *testing.T) {
	capt := &mockCaptioner{caption: "a chair"}
	emb := &mockEmbedder{err: domain.ErrModelInvocation}
	s := New(capt, emb, &mockRepo{}, zap.NewNop())

	_, err := s.Search(context.Background(), Request{ImageBase64: "aW1n"})
	if !errors.Is(err, domain.ErrModelInvocation) {
		t.Fatalf("expected ErrModelInvocation, got %v", err)
	}
}

func TestSearch_RepoErrors(t *testing.T) {
	t.Run("listing", func(t *testing.T) {
		repo := &mockRepo{listErr: domain.ErrIndexOperation}
		s := New(&mockCaptioner{}, &mockEmbedder{}, repo, zap.NewNop())
		if _, err := s.Search(context.Background(), Request{}); !errors.Is(err, domain.ErrIndexOperation) {
			t.Fatalf("expected ErrIndexOperation, got %v", err)
		}
	})
	t.Run("knn", func(t *testing.T) {
		repo := &mockRepo{knnErr: domain.ErrIndexOperation}
		s := New(&mockCaptioner{caption: "c"}, &mockEmbedder{vector: []float32{1}}, repo, zap.NewNop())
		if _, err := s.Search(context.Background(), Request{ImageBase64: "aW1n"}); !errors.Is(err, domain.ErrIndexOperation) {
			t.Fatalf("expected ErrIndexOperation, got %v", err)
		}
	})
}
