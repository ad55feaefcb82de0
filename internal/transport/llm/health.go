package llm

import (
	"context"
	"sync"
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

// HealthPrompt is the trivial prompt used to probe a chat provider.
const HealthPrompt = "ping"

// State tracks the advisory Ready/Degraded state of a provider. It never blocks calls.
type State struct {
	mu      sync.RWMutex
	state   domain.ProviderState
	lastErr string
}

// NewState returns a Ready state.
func NewState() *State {
	return &State{state: domain.StateReady}
}

// Current returns the state and, when degraded, the last error.
func (s *State) Current() (domain.ProviderState, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.lastErr
}

func (s *State) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.state, s.lastErr = domain.StateReady, ""
		return
	}
	s.state, s.lastErr = domain.StateDegraded, err.Error()
}

// Probe runs probe under timeout (DefaultHealthTimeout when <= 0), records the
// outcome in state and reports it as a status. It never fails.
func Probe(
	ctx context.Context, cfg domain.ProviderConfig, state *State, timeout time.Duration,
	probe func(ctx context.Context) error,
) domain.ProviderStatus {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := probe(ctx)
	latency := time.Since(start)

	if state != nil {
		state.set(err)
	}

	status := domain.ProviderStatus{
		Provider:      cfg.Name,
		Model:         cfg.Model,
		Available:     err == nil,
		LatencyMs:     latency.Milliseconds(),
		LastCheckedAt: time.Now().UTC(),
	}
	up := 1.0
	if err != nil {
		status.Error = err.Error()
		up = 0
	}
	metrics.LLMProviderUp.WithLabelValues(cfg.Name).Set(up)
	return status
}
