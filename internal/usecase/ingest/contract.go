package ingest

import (
	"context"
	"io"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/extract"
)

// Index is the chunk index written by ingestion.
type Index interface {
	Add(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByFolder(ctx context.Context, folderID string) error
}

// Splitter cuts document text into chunks.
type Splitter interface {
	Split(text string) []string
}

// Extractor reads a file into plain text.
type Extractor interface {
	Extract(ctx context.Context, name string, r io.Reader) (extract.Result, error)
}
