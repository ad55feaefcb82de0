package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

// Embedder produces embeddings with a model served by the Ollama daemon.
type Embedder struct {
	client   *ollama.LLM
	model    string
	provider string
}

// EmbedderConfig holds the embedding backend settings.
type EmbedderConfig struct {
	BaseURL    string
	Model      string
	Provider   string
	HTTPClient *http.Client
}

// NewEmbedder creates an Ollama embedding backend.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("ollama embedder: base url and model are required: %w", domain.ErrProviderUnconfigured)
	}
	client, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithHTTPClient(instrumentClient(cfg.HTTPClient)),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "ollama"
	}
	return &Embedder{client: client, model: cfg.Model, provider: provider}, nil
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0], Model: e.model}, nil
}

// BatchEmbed implements domain.BatchEmbedder. The daemon reports no token usage.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	ctx, status := withStatus(ctx)
	vecs, err := e.client.CreateEmbedding(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		e.fail("api_error")
		if *status > 0 {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding API error %d: %v: %w",
				*status, err, domain.ErrEmbeddingProviderError)
		}
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding request failed: %v: %w",
			err, domain.ErrEmbeddingProviderError)
	}
	if len(vecs) != len(texts) {
		e.fail("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(vecs), domain.ErrEmbeddingProviderError)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			e.fail("empty_response")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty embedding at %d: %w", i, domain.ErrEmbeddingProviderError)
		}
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())

	return domain.BatchEmbeddingResult{Embeddings: vecs}, nil
}

func (e *Embedder) fail(kind string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, kind).Inc()
}

// HealthCheck embeds a short probe text.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.Embed(ctx, "ping"); err != nil {
		return fmt.Errorf("ollama embed probe: %w", err)
	}
	return nil
}
