package llm

import (
	"strings"
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// SanitizeMessages drops messages with blank content, trims the rest and stamps
// a zero timestamp with now. The input slice is not modified.
func SanitizeMessages(msgs []domain.Message, now time.Time) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			continue
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out = append(out, m)
	}
	return out
}
