package metrics

import "github.com/prometheus/client_golang/prometheus"

// RAG pipeline Prometheus metrics.
var (
	RAGQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_queries_total",
			Help:      "RAG queries by outcome (answered, no_results, error)",
		},
		[]string{"mode", "outcome"},
	)

	RAGQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_query_duration_seconds",
			Help:      "End-to-end RAG query duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	RAGRetrievedChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_retrieved_chunks",
			Help:      "Chunks passing the similarity threshold per query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		},
	)

	IngestedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks written by document ingestion",
		},
	)
)

var ragMetricsRegistered bool

// RegisterRAGMetrics registers Prometheus RAG metrics. Must be called once from main.
func RegisterRAGMetrics() {
	if ragMetricsRegistered {
		return
	}
	prometheus.MustRegister(RAGQueriesTotal)
	prometheus.MustRegister(RAGQueryDuration)
	prometheus.MustRegister(RAGRetrievedChunks)
	prometheus.MustRegister(IngestedChunksTotal)
	ragMetricsRegistered = true
}
