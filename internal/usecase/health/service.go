package health

import (
	"context"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results. LLM providers appear in Checks as "llm:<name>".
type Report struct {
	Status    Status                  `json:"status"`
	Checks    map[string]CheckResult  `json:"checks"`
	Providers []domain.ProviderStatus `json:"providers,omitempty"`
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	providers ProviderChecker
}

// New creates a Service. Any checker can be nil and is then skipped.
func New(db DBPinger, embedding EmbeddingChecker, providers ProviderChecker) *Service {
	return &Service{db: db, embedding: embedding, providers: providers}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		checks["database"] = result(s.db.Ping(ctx))
	}

	if s.embedding != nil {
		checks["embedding"] = result(s.embedding.HealthCheck(ctx))
	}

	var statuses []domain.ProviderStatus
	if s.providers != nil {
		statuses = s.providers.GetAvailableProviders(ctx)
		for _, st := range statuses {
			if st.Available {
				checks["llm:"+st.Provider] = CheckOK
			} else {
				checks["llm:"+st.Provider] = CheckError
			}
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Providers: statuses}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
