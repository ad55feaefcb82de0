// Package provider keeps the registry of LLM providers and runs calls with fallback.
package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// StopFallback marks err so that ExecuteWithFallback returns it without trying
// other providers (for example after a stream already produced output).
func StopFallback(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Manager tracks registered providers, the current selection and the fallback order.
type Manager struct {
	mu           sync.RWMutex
	providers    map[string]domain.Provider
	order        []string
	current      string
	fallback     []string
	autoFallback bool
	logger       *zap.Logger
}

// NewManager creates an empty registry with auto-fallback enabled.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		providers:    make(map[string]domain.Provider),
		autoFallback: true,
		logger:       logger,
	}
}

// Register adds p under p.Name(), replacing a provider of the same name in place.
// The first registered provider becomes current.
func (m *Manager) Register(p domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, ok := m.providers[name]; !ok {
		m.order = append(m.order, name)
	}
	m.providers[name] = p
	if m.current == "" {
		m.current = name
	}
}

// SetProvider selects the current provider. No health check is performed.
func (m *Manager) SetProvider(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[name]; !ok {
		return fmt.Errorf("provider %q: %w", name, domain.ErrProviderNotFound)
	}
	m.current = name
	m.logger.Info("Current provider changed", zap.String("provider", name))
	return nil
}

// Current returns the selected provider.
func (m *Manager) Current() (domain.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == "" {
		return nil, domain.ErrNoProviders
	}
	return m.providers[m.current], nil
}

// Get returns the provider registered under name.
func (m *Manager) Get(name string) (domain.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, domain.ErrProviderNotFound)
	}
	return p, nil
}

// SetFallbackOrder replaces the fallback order. Unregistered names are skipped at call time.
func (m *Manager) SetFallbackOrder(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = slices.Clone(names)
}

// FallbackOrder returns a copy of the fallback order.
func (m *Manager) FallbackOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.fallback)
}

// SetAutoFallback enables or disables fallback on failure.
func (m *Manager) SetAutoFallback(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoFallback = enabled
}

// AutoFallback reports whether fallback is enabled.
func (m *Manager) AutoFallback() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoFallback
}

// Names returns provider names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// CurrentName returns the name of the selected provider, empty when none is registered.
func (m *Manager) CurrentName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reconfigure applies cfg to the named provider.
func (m *Manager) Reconfigure(name string, cfg domain.ProviderConfig) error {
	p, err := m.Get(name)
	if err != nil {
		return err
	}
	rc, ok := p.(domain.Reconfigurable)
	if !ok {
		return fmt.Errorf("provider %q cannot be reconfigured: %w", name, domain.ErrInvalidInput)
	}
	if err := rc.Reconfigure(cfg); err != nil {
		return fmt.Errorf("reconfigure %s: %w", name, err)
	}
	m.logger.Info("Provider reconfigured", zap.String("provider", name), zap.String("model", cfg.Model))
	return nil
}

// ExecuteWithFallback runs op on the preferred provider (current when empty). When it
// fails and auto-fallback is on, each provider of the fallback order is tried in turn,
// skipping the one already tried, until one succeeds. If all fail the error of the
// first provider is returned. No fallback happens once ctx is done or when op marks
// its error with StopFallback; a marked error is returned unwrapped.
func (m *Manager) ExecuteWithFallback(
	ctx context.Context, preferred string, op func(ctx context.Context, p domain.Provider) error,
) error {
	first, err := m.resolve(preferred)
	if err != nil {
		return err
	}

	origErr := op(ctx, first)
	if origErr == nil {
		return nil
	}
	var stop *stopError
	if errors.As(origErr, &stop) {
		return stop.err
	}

	m.mu.RLock()
	auto := m.autoFallback
	order := slices.Clone(m.fallback)
	m.mu.RUnlock()

	if !auto || ctx.Err() != nil {
		return origErr
	}

	tried := map[string]bool{first.Name(): true}
	for _, name := range order {
		if tried[name] {
			continue
		}
		tried[name] = true
		p, err := m.Get(name)
		if err != nil {
			continue
		}

		m.logger.Warn("Provider failed, falling back",
			zap.String("from", first.Name()),
			zap.String("to", name),
			zap.Error(origErr),
		)
		metrics.LLMFallbacksTotal.WithLabelValues(first.Name(), name).Inc()

		err = op(ctx, p)
		if err == nil {
			return nil
		}
		if errors.As(err, &stop) {
			return stop.err
		}
		if ctx.Err() != nil {
			break
		}
		m.logger.Warn("Fallback provider failed", zap.String("provider", name), zap.Error(err))
	}
	return origErr
}

func (m *Manager) resolve(preferred string) (domain.Provider, error) {
	if preferred != "" {
		return m.Get(preferred)
	}
	return m.Current()
}

// GetAvailableProviders health-checks every registered provider concurrently and
// returns the statuses in registration order. A panicking check reports the
// provider as unavailable.
func (m *Manager) GetAvailableProviders(ctx context.Context) []domain.ProviderStatus {
	m.mu.RLock()
	names := slices.Clone(m.order)
	providers := make([]domain.Provider, len(names))
	for i, n := range names {
		providers[i] = m.providers[n]
	}
	m.mu.RUnlock()

	statuses := make([]domain.ProviderStatus, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = m.check(ctx, names[i], p)
		}()
	}
	wg.Wait()
	return statuses
}

func (m *Manager) check(ctx context.Context, name string, p domain.Provider) (status domain.ProviderStatus) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Provider health check panicked", zap.String("provider", name), zap.Any("panic", r))
			status = domain.ProviderStatus{
				Provider:      name,
				Available:     false,
				Error:         fmt.Sprintf("health check panicked: %v", r),
				LastCheckedAt: time.Now().UTC(),
			}
		}
	}()
	status = p.HealthCheck(ctx)
	if status.Provider == "" {
		status.Provider = name
	}
	return status
}
