package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khogao/archi-query-master-sub000/internal/chunker"
	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/extract"
	"github.com/Khogao/archi-query-master-sub000/internal/repository/vector"
)

type fakeBatchEmbedder struct {
	batches [][]string
	err     error
	short   bool
}

func (f *fakeBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{1, float32(len(texts[i]))}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type failingIndex struct {
	*vector.Store
	deleteErr error
}

func (f *failingIndex) DeleteByDocument(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteByDocument(ctx, id)
}

func newService(emb *fakeBatchEmbedder) (*Service, *vector.Store) {
	store := vector.New(nil, nil)
	return New(store, chunker.New(100, 20), emb, extract.New(0), nil), store
}

func longText() string {
	return strings.Repeat("Khoảng lùi công trình tối thiểu là 6 m. ", 20)
}

func TestIngest_ChunksEmbedsAndIndexes(t *testing.T) {
	emb := &fakeBatchEmbedder{}
	svc, store := newService(emb)

	res, err := svc.Ingest(context.Background(), domain.Document{
		ID: "doc1", Name: "QCVN-01.txt", FolderID: "standards", Text: longText(),
	})

	require.NoError(t, err)
	assert.Equal(t, "doc1", res.DocumentID)
	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, store.Count())

	got := store.Query(context.Background(), []float32{1, 0}, []string{"standards"}, 0, -1)
	require.Len(t, got, res.Chunks)
	ids := make(map[string]bool)
	for _, c := range got {
		ids[c.ID] = true
		assert.Equal(t, "doc1", c.DocumentID)
		assert.Equal(t, "QCVN-01.txt", c.DocumentName)
		assert.Equal(t, "standards", c.FolderID)
	}
	assert.True(t, ids["doc1_0"])
	assert.True(t, ids["doc1_1"])
}

func TestIngest_DerivesIDFromFolderAndName(t *testing.T) {
	svc, _ := newService(&fakeBatchEmbedder{})

	res, err := svc.Ingest(context.Background(), domain.Document{Name: "a.txt", FolderID: "f", Text: "short text"})

	require.NoError(t, err)
	_, err = uuid.Parse(res.DocumentID)
	assert.NoError(t, err)
	assert.Equal(t, DocumentID("f", "a.txt"), res.DocumentID)
	assert.Equal(t, 1, res.Chunks)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, DocumentID("standards", "QCVN-01.txt"), DocumentID("standards", "QCVN-01.txt"))
	assert.NotEqual(t, DocumentID("standards", "QCVN-01.txt"), DocumentID("guides", "QCVN-01.txt"))
	assert.NotEqual(t, DocumentID("a/b", "c"), DocumentID("a", "b/c"))
}

func TestIngest_ReindexReplacesPreviousChunks(t *testing.T) {
	svc, store := newService(&fakeBatchEmbedder{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, domain.Document{ID: "doc1", Name: "a.txt", FolderID: "f", Text: longText()})
	require.NoError(t, err)

	res, err := svc.Ingest(ctx, domain.Document{ID: "doc1", Name: "a.txt", FolderID: "f", Text: "now much shorter"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, store.Count())
}

func TestIngest_BatchesEmbeddingRequests(t *testing.T) {
	emb := &fakeBatchEmbedder{}
	svc, _ := newService(emb)
	svc.WithBatchSize(2)

	res, err := svc.Ingest(context.Background(), domain.Document{Name: "a.txt", FolderID: "f", Text: longText()})

	require.NoError(t, err)
	assert.Len(t, emb.batches, (res.Chunks+1)/2)
	for _, b := range emb.batches {
		assert.LessOrEqual(t, len(b), 2)
	}
}

func TestIngest_Validation(t *testing.T) {
	svc, _ := newService(&fakeBatchEmbedder{})
	docs := []domain.Document{
		{FolderID: "f", Text: "x"},
		{Name: "a", Text: "x"},
		{Name: "a", FolderID: "f", Text: "  \n "},
	}
	for _, d := range docs {
		_, err := svc.Ingest(context.Background(), d)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestIngest_EmbeddingErrors(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		svc, store := newService(&fakeBatchEmbedder{err: errors.New("boom")})
		_, err := svc.Ingest(context.Background(), domain.Document{Name: "a", FolderID: "f", Text: "x"})
		assert.ErrorContains(t, err, "boom")
		assert.Zero(t, store.Count())
	})
	t.Run("count mismatch", func(t *testing.T) {
		svc, _ := newService(&fakeBatchEmbedder{short: true})
		_, err := svc.Ingest(context.Background(), domain.Document{Name: "a", FolderID: "f", Text: "x"})
		assert.ErrorContains(t, err, "got 0 embeddings for 1 chunks")
	})
}

func TestIngest_DeleteFailureKeepsIndexUntouched(t *testing.T) {
	store := vector.New(nil, nil)
	idx := &failingIndex{Store: store, deleteErr: errors.New("redis down")}
	svc := New(idx, chunker.New(100, 20), &fakeBatchEmbedder{}, nil, nil)

	_, err := svc.Ingest(context.Background(), domain.Document{Name: "a", FolderID: "f", Text: "x"})

	assert.ErrorContains(t, err, "redis down")
	assert.Zero(t, store.Count())
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide\n\nMinimum **ceiling** height is 3.6 m.\n"), 0o600))
	svc, store := newService(&fakeBatchEmbedder{})

	res, err := svc.IngestFile(context.Background(), path, "guides")

	require.NoError(t, err)
	assert.Equal(t, "guide.md", res.DocumentName)
	assert.Equal(t, extract.MethodText, res.Method)
	require.Equal(t, 1, store.Count())
	got := store.Query(context.Background(), []float32{1, 0}, nil, 0, -1)
	assert.Equal(t, "Guide\n\nMinimum ceiling height is 3.6 m.", got[0].Text)
}

func TestIngestFile_SameFileTwiceReplacesChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setbacks.txt")
	require.NoError(t, os.WriteFile(path, []byte(longText()), 0o600))
	svc, store := newService(&fakeBatchEmbedder{})
	ctx := context.Background()

	first, err := svc.IngestFile(ctx, path, "standards")
	require.NoError(t, err)
	count := store.Count()
	require.Equal(t, first.Chunks, count)

	second, err := svc.IngestFile(ctx, path, "standards")
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, count, store.Count())

	other, err := svc.IngestFile(ctx, path, "archive")
	require.NoError(t, err)
	assert.NotEqual(t, first.DocumentID, other.DocumentID)
	assert.Equal(t, 2*count, store.Count())
}

func TestIngestFile_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
	svc, _ := newService(&fakeBatchEmbedder{})

	_, err := svc.IngestFile(context.Background(), path, "f")

	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestIngestFile_Missing(t *testing.T) {
	svc, _ := newService(&fakeBatchEmbedder{})

	_, err := svc.IngestFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), "f")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeleteDocumentAndFolder(t *testing.T) {
	svc, store := newService(&fakeBatchEmbedder{})
	ctx := context.Background()
	for _, d := range []domain.Document{
		{ID: "a", Name: "a", FolderID: "f1", Text: "alpha"},
		{ID: "b", Name: "b", FolderID: "f1", Text: "beta"},
		{ID: "c", Name: "c", FolderID: "f2", Text: "gamma"},
	} {
		_, err := svc.Ingest(ctx, d)
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteDocument(ctx, "a"))
	assert.Equal(t, 2, store.Count())

	require.NoError(t, svc.DeleteFolder(ctx, "f1"))
	assert.Equal(t, 1, store.Count())

	assert.ErrorIs(t, svc.DeleteDocument(ctx, ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.DeleteFolder(ctx, " "), domain.ErrInvalidInput)
}
