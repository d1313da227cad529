package catalog

import (
	"encoding/binary"
	"math"

	"github.com/lumenshop/visualsearch/internal/db"
	"github.com/lumenshop/visualsearch/internal/domain"
)

var returnFields = []string{"prodId", "productName", "imageUrl"}

// indexDef is the fixed schema of the product embeddings index.
func indexDef(hnsw HNSWConfig) *db.IndexDefinition {
	return db.NewIndex(domain.IndexName).
		Prefix(domain.KeyPrefix).
		Text("prodId").
		Text("productName").
		Text("imageUrl").
		VectorHNSW(domain.EmbeddingField, domain.EmbeddingDim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		MustBuild()
}

// docToHash converts a domain Document into a flat map for HSET.
func docToHash(doc domain.Document) map[string]string {
	return map[string]string{
		"prodId":              doc.ProdID,
		"productName":         doc.ProductName,
		"imageUrl":            doc.ImageURL,
		domain.EmbeddingField: vectorToBlob(doc.Embedding),
	}
}

func entriesToHits(entries []db.SearchEntry) []domain.Hit {
	hits := make([]domain.Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, domain.Hit{
			ProdID:      e.Fields["prodId"],
			ProductName: e.Fields["productName"],
			ImageURL:    e.Fields["imageUrl"],
			Score:       e.Score,
		})
	}
	return hits
}

// vectorToBlob serializes []float32 to the binary form the FT index expects
// (4 bytes per component, little-endian).
func vectorToBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// blobToVector deserializes the binary form back to []float32.
func blobToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
