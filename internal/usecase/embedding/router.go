// Package embedding routes embedding requests to per-model backends with
// fallback and a deterministic last resort.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

// DefaultFallbackAttempts is how many times the fallback model is tried.
const DefaultFallbackAttempts = 2

var errInvalidVector = errors.New("invalid embedding vector")

// RouterConfig wires model backends into a Router.
type RouterConfig struct {
	// Models maps a model id to its backend (usually a cache in front of an instrumented client).
	Models           map[string]domain.Embedder
	Primary          string
	Fallback         string
	FallbackAttempts int
	Dimensions       int
}

// Router embeds text with the requested model, substituting the fallback model
// and finally a synthetic vector on failure. It never returns an error; every
// vector it returns is L2-normalized.
type Router struct {
	models   map[string]domain.Embedder
	primary  string
	fallback string
	attempts int
	dims     int
	logger   *zap.Logger
}

// NewRouter validates cfg. The primary model must have a backend; the fallback is optional.
func NewRouter(cfg RouterConfig, logger *zap.Logger) (*Router, error) {
	if _, ok := cfg.Models[cfg.Primary]; !ok {
		return nil, fmt.Errorf("primary embedding model %q has no backend: %w", cfg.Primary, domain.ErrInvalidInput)
	}
	if cfg.Fallback != "" {
		if _, ok := cfg.Models[cfg.Fallback]; !ok {
			return nil, fmt.Errorf("fallback embedding model %q has no backend: %w", cfg.Fallback, domain.ErrInvalidInput)
		}
	}
	if cfg.FallbackAttempts <= 0 {
		cfg.FallbackAttempts = DefaultFallbackAttempts
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.DefaultEmbeddingDimensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		models:   cfg.Models,
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		attempts: cfg.FallbackAttempts,
		dims:     cfg.Dimensions,
		logger:   logger,
	}, nil
}

// Dimensions returns the vector length every result has.
func (r *Router) Dimensions() int { return r.dims }

// Models returns the routable model ids in sorted order.
func (r *Router) Models() []string {
	out := make([]string, 0, len(r.models))
	for id := range r.models {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Embed embeds text with the primary model.
func (r *Router) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return r.EmbedModel(ctx, text, "")
}

// EmbedModel embeds text with modelID (primary when empty). The error is always nil.
func (r *Router) EmbedModel(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
	if modelID == "" {
		modelID = r.primary
	}

	res, err := r.try(ctx, modelID, text)
	if err == nil {
		return r.done(res, domain.SourcePrimary), nil
	}
	r.logger.Warn("Embedding model failed, using fallback",
		zap.String("model", modelID),
		zap.String("fallback", r.fallback),
		zap.Error(err),
	)

	if r.fallback != "" && r.fallback != modelID {
		for attempt := 1; attempt <= r.attempts && ctx.Err() == nil; attempt++ {
			res, err = r.try(ctx, r.fallback, text)
			if err == nil {
				return r.done(res, domain.SourceFallback), nil
			}
			r.logger.Warn("Fallback embedding attempt failed",
				zap.String("model", r.fallback),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}

	r.logger.Warn("Embedding backends exhausted, using synthetic vector",
		zap.String("model", modelID),
		zap.Int("dimensions", r.dims),
	)
	return r.done(domain.EmbeddingResult{
		Embedding: Synthetic(text, r.dims),
		Model:     SyntheticModel,
	}, domain.SourceSynthetic), nil
}

// BatchEmbed embeds texts with the primary model in one backend call. When the
// call fails, or for each vector it returns malformed, the text goes through
// EmbedModel individually. The error is always nil.
func (r *Router) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}

	res, err := r.batch(ctx, r.primary, texts)
	if err != nil {
		r.logger.Warn("Batch embedding failed, embedding texts one by one",
			zap.String("model", r.primary),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
		res = domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	} else {
		out.PromptTokens, out.TotalTokens = res.PromptTokens, res.TotalTokens
	}

	for i, text := range texts {
		if err := r.validate(res.Embeddings[i]); err == nil {
			out.Embeddings[i] = r.done(domain.EmbeddingResult{Embedding: res.Embeddings[i]}, domain.SourcePrimary).Embedding
			continue
		}
		single, _ := r.EmbedModel(ctx, text, r.primary)
		out.Embeddings[i] = single.Embedding
		out.PromptTokens += single.PromptTokens
		out.TotalTokens += single.TotalTokens
	}
	return out, nil
}

// HealthCheck checks the primary backend.
func (r *Router) HealthCheck(ctx context.Context) error {
	if hc, ok := r.models[r.primary].(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding model %s: %w", r.primary, err)
		}
	}
	return nil
}

func (r *Router) try(ctx context.Context, modelID, text string) (domain.EmbeddingResult, error) {
	backend, ok := r.models[modelID]
	if !ok {
		return domain.EmbeddingResult{}, fmt.Errorf("model %q: %w", modelID, domain.ErrEmbeddingProviderError)
	}
	res, err := backend.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // logged by caller with model
	}
	if err := r.validate(res.Embedding); err != nil {
		return domain.EmbeddingResult{}, err
	}
	if res.Model == "" {
		res.Model = modelID
	}
	return res, nil
}

func (r *Router) batch(ctx context.Context, modelID string, texts []string) (domain.BatchEmbeddingResult, error) {
	backend := r.models[modelID]
	var (
		res domain.BatchEmbeddingResult
		err error
	)
	if be, ok := backend.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, backend, texts)
	}
	if err != nil {
		return domain.BatchEmbeddingResult{}, err //nolint:wrapcheck // logged by caller with model
	}
	if len(res.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(res.Embeddings), domain.ErrEmbeddingProviderError)
	}
	return res, nil
}

func (r *Router) validate(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector: %w", errInvalidVector)
	}
	if len(vec) != r.dims {
		return fmt.Errorf("got %d dimensions, want %d: %w", len(vec), r.dims, domain.ErrVectorDimMismatch)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("non-finite component: %w", errInvalidVector)
		}
	}
	return nil
}

func (r *Router) done(res domain.EmbeddingResult, source domain.EmbeddingSource) domain.EmbeddingResult {
	res.Embedding = Normalize(res.Embedding)
	res.Source = source
	metrics.EmbeddingSourceTotal.WithLabelValues(string(source)).Inc()
	return res
}
