package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// fnEmbedder is a backend driven by a function.
type fnEmbedder struct {
	fn    func(text string) ([]float32, error)
	calls int
}

func (f *fnEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.calls++
	vec, err := f.fn(text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: vec, TotalTokens: 1}, nil
}

func constant(vec ...float32) *fnEmbedder {
	return &fnEmbedder{fn: func(string) ([]float32, error) { return vec, nil }}
}

func failing() *fnEmbedder {
	return &fnEmbedder{fn: func(string) ([]float32, error) { return nil, errors.New("connection refused") }}
}

func newRouter(t *testing.T, primary, fallback domain.Embedder) *Router {
	t.Helper()
	models := map[string]domain.Embedder{"primary": primary}
	cfg := RouterConfig{Models: models, Primary: "primary", Dimensions: 2}
	if fallback != nil {
		models["fallback"] = fallback
		cfg.Fallback = "fallback"
	}
	r, err := NewRouter(cfg, zap.NewNop())
	require.NoError(t, err)
	return r
}

func norm(vec []float32) float64 {
	var s float64
	for _, v := range vec {
		s += float64(v) * float64(v)
	}
	return math.Sqrt(s)
}

func TestNewRouter_ValidatesModels(t *testing.T) {
	_, err := NewRouter(RouterConfig{Models: map[string]domain.Embedder{}, Primary: "x"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewRouter(RouterConfig{
		Models:   map[string]domain.Embedder{"x": constant(1)},
		Primary:  "x",
		Fallback: "missing",
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	r, err := NewRouter(RouterConfig{Models: map[string]domain.Embedder{"x": constant(1)}, Primary: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultEmbeddingDimensions, r.Dimensions())
}

func TestRouter_PrimaryNormalized(t *testing.T) {
	r := newRouter(t, constant(3, 4), nil)

	res, err := r.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, domain.SourcePrimary, res.Source)
	assert.InDelta(t, 0.6, res.Embedding[0], 1e-6)
	assert.InDelta(t, 0.8, res.Embedding[1], 1e-6)
	assert.Equal(t, "primary", res.Model)
}

func TestRouter_FallbackOnError(t *testing.T) {
	fb := constant(0, 2)
	r := newRouter(t, failing(), fb)

	res, err := r.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, res.Source)
	assert.Equal(t, []float32{0, 1}, res.Embedding)
	assert.Equal(t, 1, fb.calls)
}

func TestRouter_FallbackOnWrongDimensions(t *testing.T) {
	r := newRouter(t, constant(1, 2, 3), constant(1, 0))

	res, _ := r.Embed(context.Background(), "hello")

	assert.Equal(t, domain.SourceFallback, res.Source)
}

func TestRouter_FallbackOnNaN(t *testing.T) {
	r := newRouter(t, constant(float32(math.NaN()), 1), constant(1, 0))

	res, _ := r.Embed(context.Background(), "hello")

	assert.Equal(t, domain.SourceFallback, res.Source)
}

func TestRouter_UnknownModelFallsBack(t *testing.T) {
	r := newRouter(t, constant(1, 0), constant(0, 1))

	res, err := r.EmbedModel(context.Background(), "hello", "no-such-model")

	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, res.Source)
}

func TestRouter_FallbackRetriedThenSynthetic(t *testing.T) {
	fb := failing()
	r := newRouter(t, failing(), fb)

	res, err := r.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackAttempts, fb.calls)
	assert.Equal(t, domain.SourceSynthetic, res.Source)
	assert.Equal(t, SyntheticModel, res.Model)
	assert.Len(t, res.Embedding, 2)
	assert.InDelta(t, 1.0, norm(res.Embedding), 1e-5)
}

func TestRouter_SyntheticIsDeterministic(t *testing.T) {
	models := map[string]domain.Embedder{"p": failing()}
	r, err := NewRouter(RouterConfig{Models: models, Primary: "p"}, nil)
	require.NoError(t, err)

	a, _ := r.Embed(context.Background(), "same text")
	b, _ := r.Embed(context.Background(), "same text")
	c, _ := r.Embed(context.Background(), "other text")

	assert.Len(t, a.Embedding, domain.DefaultEmbeddingDimensions)
	assert.Equal(t, a.Embedding, b.Embedding)
	assert.NotEqual(t, a.Embedding, c.Embedding)
}

func TestRouter_PrimaryIsFallbackNotRetriedTwice(t *testing.T) {
	p := failing()
	models := map[string]domain.Embedder{"p": p}
	r, err := NewRouter(RouterConfig{Models: models, Primary: "p", Fallback: "p", Dimensions: 2}, nil)
	require.NoError(t, err)

	res, _ := r.Embed(context.Background(), "x")

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, domain.SourceSynthetic, res.Source)
}

// batchBackend supports BatchEmbed and returns a configurable result.
type batchBackend struct {
	fnEmbedder
	batch func(texts []string) (domain.BatchEmbeddingResult, error)
}

func (b *batchBackend) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return b.batch(texts)
}

func TestRouter_BatchEmbed(t *testing.T) {
	backend := &batchBackend{
		fnEmbedder: fnEmbedder{fn: func(string) ([]float32, error) { return []float32{1, 1}, nil }},
		batch: func(texts []string) (domain.BatchEmbeddingResult, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{float32(i + 1), 0}
			}
			// second vector malformed, must be redone individually
			out[1] = []float32{1}
			return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: 3}, nil
		},
	}
	r := newRouter(t, backend, nil)

	res, err := r.BatchEmbed(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, res.Embeddings, 3)
	assert.Equal(t, []float32{1, 0}, res.Embeddings[0])
	assert.InDelta(t, math.Sqrt2/2, res.Embeddings[1][0], 1e-6)
	assert.Equal(t, []float32{1, 0}, res.Embeddings[2])
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 4, res.TotalTokens)
}

func TestRouter_BatchEmbedFailureFallsBackPerText(t *testing.T) {
	backend := &batchBackend{
		fnEmbedder: fnEmbedder{fn: func(string) ([]float32, error) { return []float32{0, 5}, nil }},
		batch: func([]string) (domain.BatchEmbeddingResult, error) {
			return domain.BatchEmbeddingResult{}, errors.New("batch endpoint down")
		},
	}
	r := newRouter(t, backend, nil)

	res, err := r.BatchEmbed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {0, 1}}, res.Embeddings)
	assert.Equal(t, 2, backend.calls)
}

func TestRouter_BatchEmbedEmpty(t *testing.T) {
	r := newRouter(t, constant(1, 0), nil)

	res, err := r.BatchEmbed(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, res.Embeddings)
}

type healthyBackend struct {
	fnEmbedder
	err error
}

func (h *healthyBackend) HealthCheck(context.Context) error { return h.err }

func TestRouter_HealthCheck(t *testing.T) {
	hb := &healthyBackend{fnEmbedder: *constant(1, 0)}
	r := newRouter(t, hb, nil)
	assert.NoError(t, r.HealthCheck(context.Background()))

	hb.err = errors.New("down")
	assert.Error(t, r.HealthCheck(context.Background()))
}

func TestNormalize(t *testing.T) {
	in := []float32{3, 4}
	out := Normalize(in)
	assert.Equal(t, []float32{3, 4}, in, "input must not change")
	assert.InDelta(t, 1.0, norm(out), 1e-6)

	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestSynthetic(t *testing.T) {
	v := Synthetic("hello", 384)
	require.Len(t, v, 384)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, float32(-1))
		assert.LessOrEqual(t, x, float32(1))
	}
	assert.Equal(t, v, Synthetic("hello", 384))
	assert.Equal(t, v[:10], Synthetic("hello", 10))
}

func TestSyntheticEmbedder_AsPrimary(t *testing.T) {
	r, err := NewRouter(RouterConfig{
		Models:     map[string]domain.Embedder{SyntheticModel: SyntheticEmbedder{Dims: 16}},
		Primary:    SyntheticModel,
		Dimensions: 16,
	}, zap.NewNop())
	require.NoError(t, err)

	a, err := r.Embed(context.Background(), "same text")
	require.NoError(t, err)
	b, err := r.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Len(t, a.Embedding, 16)
	assert.Equal(t, a.Embedding, b.Embedding)
	assert.Equal(t, SyntheticModel, a.Model)
}
