// Package document holds the records that flow through the ingestion pipeline.
package document

type ChunkType string

const (
	TypeText  ChunkType = "text"
	TypeTable ChunkType = "table"
)

// Metadata travels with a chunk from extraction to the vector index.
type Metadata struct {
	Source    string    `json:"source"`
	PageSlide string    `json:"page_slide,omitempty"`
	Type      ChunkType `json:"type,omitempty"`
	Embedded  bool      `json:"embedded"`
	SavedToDB bool      `json:"saved_to_db"`
}

type Chunk struct {
	ID       string    `json:"id,omitempty"`
	Content  string    `json:"content"`
	Type     ChunkType `json:"type"`
	Metadata Metadata  `json:"metadata"`
}

// EmbeddedItem is a chunk paired with its vector, ready for the index.
type EmbeddedItem struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Document  string    `json:"document"`
	Metadata  Metadata  `json:"metadata"`
}

// NewEmbeddedItem tags the chunk's metadata with its type and the embedded flag.
// SavedToDB stays false until the index accepts the item.
func NewEmbeddedItem(c Chunk, vector []float32) EmbeddedItem {
	md := c.Metadata
	md.Type = c.Type
	md.Embedded = true
	md.SavedToDB = false
	return EmbeddedItem{
		ID:        c.ID,
		Embedding: vector,
		Document:  c.Content,
		Metadata:  md,
	}
}

type RetrievedChunk struct {
	ID       string   `json:"id"`
	Document string   `json:"document"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}
