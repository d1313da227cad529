package domain

// EmbeddingDim is the output dimension of the multimodal embedding model.
const EmbeddingDim = 1024

// Index schema constants. The index is created once and never altered, so
// these are fixed rather than configurable.
const (
	IndexName      = "product-embeddings-index"
	EmbeddingField = "product_image_and_description_embedding"
	KeyPrefix      = "product:"
)

// Product is one record of the externally supplied catalog feed.
type Product struct {
	ID            string // item_id
	Name          string // item_name[0].value
	MainImagePath string // "<prefix>/<filename>" in the source image set
}

// Document is the unit stored in the vector index: three text fields plus
// the joint image+text embedding.
type Document struct {
	ProdID      string
	ProductName string
	ImageURL    string // bare filename, no path prefix
	Embedding   []float32
}

// Hit is one search result tuple.
type Hit struct {
	ProdID      string
	ProductName string
	ImageURL    string
	Score       float64
}
