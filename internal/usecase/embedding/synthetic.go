package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// SyntheticModel labels vectors produced by Synthetic.
const SyntheticModel = "synthetic"

// Synthetic derives a deterministic vector of length dims from the SHA-256 of text.
// Blocks of sha256(text || counter) are expanded into values in [-1, 1]. The same
// text always yields the same vector.
func Synthetic(text string, dims int) []float32 {
	vec := make([]float32, dims)
	var block [sha256.Size]byte
	var counter [4]byte

	for i := range vec {
		off := (i * 4) % sha256.Size
		if off == 0 {
			binary.BigEndian.PutUint32(counter[:], uint32(i/(sha256.Size/4))) //nolint:gosec // small index
			h := sha256.New()
			h.Write([]byte(text))
			h.Write(counter[:])
			h.Sum(block[:0])
		}
		u := binary.BigEndian.Uint32(block[off : off+4])
		vec[i] = float32(float64(u)/math.MaxUint32*2 - 1)
	}
	return vec
}

// Normalize returns a unit-length copy of vec. A zero vector is returned as a copy unchanged.
func Normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		copy(out, vec)
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// SyntheticEmbedder serves Synthetic vectors as a regular backend, for setups
// without any embedding service. Retrieval quality is limited to exact repeats.
type SyntheticEmbedder struct {
	Dims int
}

// Embed implements domain.Embedder.
func (s SyntheticEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	dims := s.Dims
	if dims <= 0 {
		dims = domain.DefaultEmbeddingDimensions
	}
	return domain.EmbeddingResult{
		Embedding: Normalize(Synthetic(text, dims)),
		Model:     SyntheticModel,
		Source:    domain.SourceSynthetic,
	}, nil
}
