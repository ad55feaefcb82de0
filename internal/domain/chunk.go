package domain

// KeyPrefix namespaces every key this service writes to Redis/Valkey.
const KeyPrefix = "archiquery:"

// Chunk is a bounded slice of a document's text with its embedding.
// Similarity is computed per query and never persisted.
type Chunk struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"-"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	FolderID     string    `json:"folder_id"`
	Index        int       `json:"index"`
	Similarity   float64   `json:"similarity,omitempty"`
}

// Document is an uploaded file after text extraction.
type Document struct {
	ID       string
	Name     string
	FolderID string
	Text     string
}
