package rag

import (
	"fmt"
	"strings"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/llm"
)

const systemPrompt = `You are an assistant for architecture and construction documents.
Answer the question using only the context below.
Cite the source document names your answer relies on.
If the context does not contain enough information, say so instead of guessing.
Answer in the same language as the question.`

// formatContext renders chunks as numbered blocks labeled with the source document
// and similarity percentage, then truncates the result to maxTokens.
func formatContext(chunks []domain.Chunk, maxTokens int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Source: %s (similarity %.1f%%)\n%s", i+1, c.DocumentName, c.Similarity*100, c.Text)
	}
	return llm.TruncateContext(b.String(), maxTokens)
}

func buildMessages(query string, chunks []domain.Chunk, maxTokens int) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt + "\n\nContext:\n" + formatContext(chunks, maxTokens)},
		{Role: domain.RoleUser, Content: query},
	}
}

func toSources(chunks []domain.Chunk) []domain.Source {
	out := make([]domain.Source, len(chunks))
	for i, c := range chunks {
		out[i] = domain.Source{
			Index:        i + 1,
			ChunkID:      c.ID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Content:      c.Text,
			Similarity:   c.Similarity,
		}
	}
	return out
}
