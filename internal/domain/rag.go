package domain

// RAG defaults applied when a query leaves the field empty.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.5
)

// Query is one retrieval-augmented question.
type Query struct {
	Text                string   `json:"query"`
	FolderIDs           []string `json:"folder_ids,omitempty"`
	TopK                int      `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	Provider            string   `json:"provider,omitempty"`
	Stream              bool     `json:"stream,omitempty"`
}

// Source is a chunk cited by an answer.
type Source struct {
	Index        int     `json:"index"`
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
}

// Response is the outcome of a query. Error is set instead of returning a Go error;
// Err keeps the original error for in-process callers.
type Response struct {
	Answer           string   `json:"answer"`
	Sources          []Source `json:"sources"`
	Model            string   `json:"model,omitempty"`
	Provider         string   `json:"provider,omitempty"`
	Usage            *Usage   `json:"usage,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	Error            string   `json:"error,omitempty"`
	Err              error    `json:"-"`
}
