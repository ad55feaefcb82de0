package health

import (
	"context"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding backend availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderChecker health-checks the registered LLM providers.
type ProviderChecker interface {
	GetAvailableProviders(ctx context.Context) []domain.ProviderStatus
}
