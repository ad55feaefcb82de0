// Package ingest indexes documents: text is chunked, embedded and written to the
// vector index, replacing any previous chunks of the same document.
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

const defaultBatchSize = 64

// Result summarizes one ingested document.
type Result struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	FolderID     string `json:"folder_id"`
	Chunks       int    `json:"chunks"`
	Method       string `json:"method,omitempty"`
}

// Service runs the ingestion pipeline.
type Service struct {
	index     Index
	splitter  Splitter
	embed     domain.BatchEmbedder
	extractor Extractor
	batchSize int
	logger    *zap.Logger
}

// New creates an ingestion service. extractor may be nil when only Ingest is used.
func New(index Index, splitter Splitter, embed domain.BatchEmbedder, extractor Extractor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:     index,
		splitter:  splitter,
		embed:     embed,
		extractor: extractor,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// WithBatchSize sets how many chunks go into one embedding request.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// DocumentID returns the stable ID of the document name in folderID. Documents
// ingested without an explicit ID are keyed by it, so the same file ingested
// twice replaces its chunks.
func DocumentID(folderID, name string) string {
	key := "archiquery://folders/" + url.PathEscape(folderID) + "/documents/" + url.PathEscape(name)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Ingest chunks and embeds doc and replaces its previous chunks in the index.
// An empty doc.ID is derived from the folder and name with DocumentID.
func (s *Service) Ingest(ctx context.Context, doc domain.Document) (Result, error) {
	if err := validate(doc); err != nil {
		return Result{}, err
	}
	if doc.ID == "" {
		doc.ID = DocumentID(doc.FolderID, doc.Name)
	}

	texts := s.splitter.Split(doc.Text)
	if len(texts) == 0 {
		return Result{}, fmt.Errorf("%w: document %q has no indexable text", domain.ErrInvalidInput, doc.Name)
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:           fmt.Sprintf("%s_%d", doc.ID, i),
			Text:         text,
			Embedding:    vectors[i],
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			FolderID:     doc.FolderID,
			Index:        i,
		}
	}

	if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return Result{}, fmt.Errorf("remove previous chunks: %w", err)
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		return Result{}, fmt.Errorf("add chunks: %w", err)
	}
	metrics.IngestedChunksTotal.Add(float64(len(chunks)))

	s.logger.Info("Document indexed",
		zap.String("document_id", doc.ID),
		zap.String("document", doc.Name),
		zap.String("folder_id", doc.FolderID),
		zap.Int("chunks", len(chunks)),
	)

	return Result{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		FolderID:     doc.FolderID,
		Chunks:       len(chunks),
	}, nil
}

// IngestFile extracts the text of the file at path and ingests it into folderID.
// The file's base name becomes the document name.
func (s *Service) IngestFile(ctx context.Context, path, folderID string) (Result, error) {
	if s.extractor == nil {
		return Result{}, fmt.Errorf("%w: no text extractor configured", domain.ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	extracted, err := s.extractor.Extract(ctx, name, f)
	if err != nil {
		return Result{}, fmt.Errorf("extract text: %w", err)
	}

	res, err := s.Ingest(ctx, domain.Document{Name: name, FolderID: folderID, Text: extracted.Text})
	if err != nil {
		return Result{}, err
	}
	res.Method = extracted.Method
	return res, nil
}

// DeleteDocument removes every chunk of a document.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if err := s.index.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// DeleteFolder removes every chunk of a folder.
func (s *Service) DeleteFolder(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: folder id is required", domain.ErrInvalidInput)
	}
	if err := s.index.DeleteByFolder(ctx, id); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		res, err := s.embed.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("got %d embeddings for %d chunks", len(res.Embeddings), end-start)
		}
		out = append(out, res.Embeddings...)
	}
	return out, nil
}

func validate(doc domain.Document) error {
	switch {
	case strings.TrimSpace(doc.Name) == "":
		return fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	case strings.TrimSpace(doc.FolderID) == "":
		return fmt.Errorf("%w: folder id is required", domain.ErrInvalidInput)
	case strings.TrimSpace(doc.Text) == "":
		return fmt.Errorf("%w: document text is required", domain.ErrInvalidInput)
	}
	return nil
}
