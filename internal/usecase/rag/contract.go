package rag

import (
	"context"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever returns chunks ranked by similarity to vector.
type Retriever interface {
	Query(ctx context.Context, vector []float32, folderIDs []string, topK int, threshold float64) []domain.Chunk
}

// Providers resolves LLM providers and runs calls with fallback.
type Providers interface {
	Get(name string) (domain.Provider, error)
	Current() (domain.Provider, error)
	ExecuteWithFallback(ctx context.Context, preferred string, op func(ctx context.Context, p domain.Provider) error) error
}
