// Package vector is the in-memory similarity index over chunk embeddings,
// optionally backed by a persistent chunk store.
package vector

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Persister is the durable side of the store (ISP).
type Persister interface {
	SaveBulk(ctx context.Context, chunks []domain.Chunk) error
	GetAll(ctx context.Context) ([]domain.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByFolder(ctx context.Context, folderID string) error
}

// Store keeps chunks in insertion order with an id → position map.
// Mutations are written through to the persister before memory changes.
type Store struct {
	mu      sync.RWMutex
	chunks  []domain.Chunk
	byID    map[string]int
	persist Persister
	logger  *zap.Logger
}

// New creates an empty store. persist may be nil for a purely in-memory store.
func New(persist Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		byID:    make(map[string]int),
		persist: persist,
		logger:  logger,
	}
}

// Load replaces the in-memory contents with everything the persister holds.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	chunks, err := s.persist.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}

	// stable start-up order regardless of set iteration order
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].Index < chunks[j].Index
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = s.chunks[:0]
	clear(s.byID)
	for _, c := range chunks {
		s.upsertLocked(c)
	}
	s.logger.Info("Vector store loaded", zap.Int("chunks", len(s.chunks)))
	return len(s.chunks), nil
}

// Add upserts chunks by ID: an existing chunk is replaced in place, a new one appended.
func (s *Store) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveBulk(ctx, chunks); err != nil {
			return fmt.Errorf("persist chunks: %w", err)
		}
	}
	for _, c := range chunks {
		s.upsertLocked(c)
	}
	return nil
}

func (s *Store) upsertLocked(c domain.Chunk) {
	c = copyChunk(c)
	c.Similarity = 0
	if pos, ok := s.byID[c.ID]; ok {
		s.chunks[pos] = c
		return
	}
	s.byID[c.ID] = len(s.chunks)
	s.chunks = append(s.chunks, c)
}

// Query returns copies of chunks in folderIDs (all when empty) whose cosine similarity to
// vector is at least threshold, most similar first, ties in insertion order.
// topK <= 0 means no limit. Chunks whose embedding length differs from vector are skipped.
func (s *Store) Query(
	_ context.Context, vector []float32, folderIDs []string, topK int, threshold float64,
) []domain.Chunk {
	var folders map[string]struct{}
	if len(folderIDs) > 0 {
		folders = make(map[string]struct{}, len(folderIDs))
		for _, id := range folderIDs {
			folders[id] = struct{}{}
		}
	}

	s.mu.RLock()
	var matches []domain.Chunk
	for _, c := range s.chunks {
		if folders != nil {
			if _, ok := folders[c.FolderID]; !ok {
				continue
			}
		}
		if len(c.Embedding) != len(vector) {
			continue
		}
		sim := CosineSimilarity(vector, c.Embedding)
		if math.IsNaN(sim) || sim < threshold {
			continue
		}
		out := copyChunk(c)
		out.Similarity = sim
		matches = append(matches, out)
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		return []domain.Chunk{}
	}
	return matches
}

// DeleteByDocument removes every chunk of a document. Removing nothing is not an error.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("persist delete document %s: %w", documentID, err)
		}
	}
	s.removeLocked(func(c domain.Chunk) bool { return c.DocumentID == documentID })
	return nil
}

// DeleteByFolder removes every chunk of a folder. Removing nothing is not an error.
func (s *Store) DeleteByFolder(ctx context.Context, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.DeleteByFolder(ctx, folderID); err != nil {
			return fmt.Errorf("persist delete folder %s: %w", folderID, err)
		}
	}
	s.removeLocked(func(c domain.Chunk) bool { return c.FolderID == folderID })
	return nil
}

func (s *Store) removeLocked(match func(domain.Chunk) bool) {
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if !match(c) {
			kept = append(kept, c)
		}
	}
	// drop references held past the new length
	clear(s.chunks[len(kept):])
	s.chunks = kept

	clear(s.byID)
	for i, c := range s.chunks {
		s.byID[c.ID] = i
	}
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Clear drops the in-memory contents. The persister is left untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	clear(s.byID)
}

func copyChunk(c domain.Chunk) domain.Chunk {
	c.Embedding = slices.Clone(c.Embedding)
	return c
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when the lengths differ or either norm is 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
