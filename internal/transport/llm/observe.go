package llm

import (
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

// Completion modes used as metric labels.
const (
	ModeComplete = "complete"
	ModeStream   = "stream"
)

// Observe records transport metrics for one provider call, retries included.
func Observe(provider, model, mode string, start time.Time, usage *domain.Usage, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(provider, model, mode, status).Inc()
	metrics.LLMRequestDuration.WithLabelValues(provider, model, mode).Observe(time.Since(start).Seconds())

	if usage != nil {
		metrics.LLMTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	}
}
