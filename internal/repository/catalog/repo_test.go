package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumenshop/visualsearch/internal/db"
	"github.com/lumenshop/visualsearch/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	exists    bool
	existsErr error
	createErr error

	created    []*db.IndexDefinition
	hsetKeys   []string
	hsetFields []map[string]string
	hsetErr    error

	knnResult  *db.SearchResult
	knnErr     error
	lastKNN    *db.KNNQuery
	listResult *db.SearchResult
	listErr    error
	lastQuery  string
	lastLimit  int
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.hsetKeys = append(m.hsetKeys, key)
	m.hsetFields = append(m.hsetFields, fields)
	return m.hsetErr
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.created = append(m.created, def)
	return m.createErr
}

func (m *mockStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastKNN = q
	return m.knnResult, m.knnErr
}

func (m *mockStore) SearchList(_ context.Context, _, query string, limit int, _ []string) (*db.SearchResult, error) {
	m.lastQuery = query
	m.lastLimit = limit
	return m.listResult, m.listErr
}

// --- EnsureIndex ---

func TestEnsureIndex_CreatesWhenAbsent(t *testing.T) {
	s := &mockStore{exists: false}
	r := New(s, HNSWConfig{})

	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.created) != 1 {
		t.Fatalf("created %d indexes, want 1", len(s.created))
	}

	def := s.created[0]
	if def.Name != domain.IndexName {
		t.Errorf("index name = %q", def.Name)
	}
	var vec *db.IndexField
	for i := range def.Fields {
		if def.Fields[i].Type == db.IndexFieldVector {
			vec = &def.Fields[i]
		}
	}
	if vec == nil {
		t.Fatal("no vector field in schema")
	}
	if vec.Name != domain.EmbeddingField || vec.VectorDim != domain.EmbeddingDim {
		t.Errorf("vector field = %+v", vec)
	}
	if vec.VectorDistance != db.DistanceCosine || vec.VectorAlgo != db.VectorHNSW {
		t.Errorf("vector algo/distance = %s/%s", vec.VectorAlgo, vec.VectorDistance)
	}
}

func TestEnsureIndex_NoOpWhenPresent(t *testing.T) {
	s := &mockStore{exists: true}
	r := New(s, HNSWConfig{})

	// Two calls in sequence: neither may create.
	for i := 0; i < 2; i++ {
		if err := r.EnsureIndex(context.Background()); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}
	if len(s.created) != 0 {
		t.Fatalf("created %d indexes, want 0", len(s.created))
	}
}

func TestEnsureIndex_BenignCreationRace(t *testing.T) {
	s := &mockStore{exists: false, createErr: db.ErrIndexExists}
	r := New(s, HNSWConfig{})

	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("creation race must be benign, got %v", err)
	}
}

func TestEnsureIndex_SurfacesOtherErrors(t *testing.T) {
	s := &mockStore{exists: false, createErr: errors.New("quota exceeded")}
	r := New(s, HNSWConfig{})

	err := r.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrIndexOperation) {
		t.Fatalf("expected ErrIndexOperation, got %v", err)
	}
}

// --- Insert ---

func TestInsert_WritesOneHashDocument(t *testing.T) {
	s := &mockStore{}
	r := New(s, HNSWConfig{})

	emb := make([]float32, domain.EmbeddingDim)
	for i := range emb {
		emb[i] = float32(i) / 1000
	}
	doc := domain.Document{
		ProdID:      "B07XYZ",
		ProductName: "Walnut side table",
		ImageURL:    "71abc.jpg",
		Embedding:   emb,
	}
	if err := r.Insert(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(s.hsetKeys) != 1 {
		t.Fatalf("wrote %d documents, want 1", len(s.hsetKeys))
	}
	if !strings.HasPrefix(s.hsetKeys[0], domain.KeyPrefix) {
		t.Errorf("key = %q, want %q prefix", s.hsetKeys[0], domain.KeyPrefix)
	}

	fields := s.hsetFields[0]
	if fields["prodId"] != "B07XYZ" || fields["imageUrl"] != "71abc.jpg" {
		t.Errorf("fields = %+v", fields)
	}
	got := blobToVector(fields[domain.EmbeddingField])
	if len(got) != domain.EmbeddingDim {
		t.Fatalf("embedding blob has %d components, want %d", len(got), domain.EmbeddingDim)
	}
	if got[999] != emb[999] {
		t.Errorf("embedding round-trip mismatch at 999: %f != %f", got[999], emb[999])
	}
}

func TestInsert_FreshKeyPerWrite(t *testing.T) {
	s := &mockStore{}
	r := New(s, HNSWConfig{})
	doc := domain.Document{ProdID: "B01", Embedding: []float32{1, 2}}

	for i := 0; i < 2; i++ {
		if err := r.Insert(context.Background(), doc); err != nil {
			t.Fatal(err)
		}
	}
	if s.hsetKeys[0] == s.hsetKeys[1] {
		t.Errorf("re-ingest reused key %q; writes must get fresh keys", s.hsetKeys[0])
	}
}

// --- Queries ---

func TestSearchKNN_MapsHits(t *testing.T) {
	s := &mockStore{knnResult: &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{Key: "product:a", Score: 0.92, Fields: map[string]string{
				"prodId": "B01", "productName": "Chair", "imageUrl": "a.jpg"}},
			{Key: "product:b", Score: 0.81, Fields: map[string]string{
				"prodId": "B02", "productName": "Lamp", "imageUrl": "b.jpg"}},
		},
	}}
	r := New(s, HNSWConfig{})

	hits, err := r.SearchKNN(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].ProdID != "B01" || hits[0].Score != 0.92 {
		t.Errorf("hits[0] = %+v", hits[0])
	}
	if s.lastKNN.K != 5 || s.lastKNN.IndexName != domain.IndexName {
		t.Errorf("query = %+v", s.lastKNN)
	}
	if s.lastKNN.VectorField != domain.EmbeddingField {
		t.Errorf("vector field = %q", s.lastKNN.VectorField)
	}
}

func TestListAll_MatchAll(t *testing.T) {
	s := &mockStore{listResult: &db.SearchResult{
		Total: 1,
		Entries: []db.SearchEntry{
			{Key: "product:a", Fields: map[string]string{"prodId": "B01"}},
		},
	}}
	r := New(s, HNSWConfig{})

	hits, err := r.ListAll(context.Background(), 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.lastQuery != "*" || s.lastLimit != 25 {
		t.Errorf("query = %q limit = %d", s.lastQuery, s.lastLimit)
	}
	if len(hits) != 1 || hits[0].Score != 0 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestQueries_WrapIndexOperationError(t *testing.T) {
	s := &mockStore{knnErr: errors.New("boom"), listErr: errors.New("boom")}
	r := New(s, HNSWConfig{})

	if _, err := r.SearchKNN(context.Background(), []float32{1}, 5); !errors.Is(err, domain.ErrIndexOperation) {
		t.Errorf("knn error = %v", err)
	}
	if _, err := r.ListAll(context.Background(), 25); !errors.Is(err, domain.ErrIndexOperation) {
		t.Errorf("list error = %v", err)
	}
}
