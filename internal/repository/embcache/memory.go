package embcache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

const tierMemory = "memory"

// MemoryCache is an in-process read-through cache keyed by exact text.
// Entries expire after ttl; when full the oldest inserted entry is evicted.
// Reads use Peek, so a hit never refreshes an entry's position (FIFO, not LRU).
type MemoryCache struct {
	inner      domain.Embedder
	model      string
	entries    *expirable.LRU[string, []float32]
	cacheTotal *prometheus.CounterVec
}

// NewMemory creates an in-process cache in front of inner.
func NewMemory(
	inner domain.Embedder, model string, size int, ttl time.Duration, cacheTotal *prometheus.CounterVec,
) *MemoryCache {
	return &MemoryCache{
		inner:      inner,
		model:      model,
		entries:    expirable.NewLRU[string, []float32](size, nil, ttl),
		cacheTotal: cacheTotal,
	}
}

// Embed returns the cached vector for text or computes and stores it.
func (m *MemoryCache) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if vec, ok := m.lookup(text); ok {
		return domain.EmbeddingResult{Embedding: vec, Model: m.model}, nil
	}

	result, err := m.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	m.put(text, result.Embedding)
	return result, nil
}

// BatchEmbed serves hits from memory and embeds the misses in one inner call.
func (m *MemoryCache) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return batchThrough(ctx, m.inner, texts, m.lookup, m.put)
}

// HealthCheck forwards to the inner embedder.
func (m *MemoryCache) HealthCheck(ctx context.Context) error {
	if hc, ok := m.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

// Len returns the number of live entries.
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}

func (m *MemoryCache) lookup(text string) ([]float32, bool) {
	vec, ok := m.entries.Peek(text)
	if m.cacheTotal != nil {
		result := "miss"
		if ok {
			result = "hit"
		}
		m.cacheTotal.WithLabelValues(tierMemory, result).Inc()
	}
	if !ok {
		return nil, false
	}
	return slices.Clone(vec), true
}

func (m *MemoryCache) put(text string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	m.entries.Add(text, slices.Clone(vec))
}
