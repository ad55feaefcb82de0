package chunk

import (
	"fmt"
	"strconv"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/repository/vecbytes"
)

// Hash field names of a stored chunk.
const (
	fieldText         = "text"
	fieldDocumentID   = "document_id"
	fieldDocumentName = "document_name"
	fieldFolderID     = "folder_id"
	fieldIndex        = "index"
	fieldEmbedding    = "embedding"
)

func toFields(c domain.Chunk) map[string]string {
	return map[string]string{
		fieldText:         c.Text,
		fieldDocumentID:   c.DocumentID,
		fieldDocumentName: c.DocumentName,
		fieldFolderID:     c.FolderID,
		fieldIndex:        strconv.Itoa(c.Index),
		fieldEmbedding:    string(vecbytes.Encode(c.Embedding)),
	}
}

func fromFields(id string, m map[string]string) (domain.Chunk, error) {
	idx, err := strconv.Atoi(m[fieldIndex])
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("chunk %s: parse index %q: %w", id, m[fieldIndex], err)
	}
	vec, err := vecbytes.Decode([]byte(m[fieldEmbedding]))
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, err)
	}
	return domain.Chunk{
		ID:           id,
		Text:         m[fieldText],
		Embedding:    vec,
		DocumentID:   m[fieldDocumentID],
		DocumentName: m[fieldDocumentName],
		FolderID:     m[fieldFolderID],
		Index:        idx,
	}, nil
}
