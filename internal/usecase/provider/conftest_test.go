package provider

import (
	"context"
	"sync"
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/repository/budget"
)

// fakeProvider is a provider whose behavior is set per test.
type fakeProvider struct {
	name      string
	model     string
	completeF func(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error)
	streamF   func(ctx context.Context, req domain.CompletionRequest, onChunk func(domain.StreamChunk)) error
	healthF   func(ctx context.Context) domain.ProviderStatus
	reconfF   func(cfg domain.ProviderConfig) error

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.completeF != nil {
		return f.completeF(ctx, req)
	}
	return domain.CompletionResponse{Content: "answer from " + f.name, Model: f.model}, nil
}

func (f *fakeProvider) StreamComplete(
	ctx context.Context, req domain.CompletionRequest, onChunk func(domain.StreamChunk),
) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.streamF != nil {
		return f.streamF(ctx, req, onChunk)
	}
	onChunk(domain.StreamChunk{Content: f.name})
	onChunk(domain.StreamChunk{Done: true})
	return nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) domain.ProviderStatus {
	if f.healthF != nil {
		return f.healthF(ctx)
	}
	return domain.ProviderStatus{Provider: f.name, Model: f.model, Available: true}
}

func (f *fakeProvider) Reconfigure(cfg domain.ProviderConfig) error {
	if f.reconfF != nil {
		return f.reconfF(cfg)
	}
	f.model = cfg.Model
	return nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memUsageStore is an in-memory UsageStore.
type memUsageStore struct {
	mu      sync.Mutex
	data    map[string]budget.Usage
	loadErr error
	addErr  error
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{data: make(map[string]budget.Usage)}
}

func (m *memUsageStore) Add(_ context.Context, provider string, tokens int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	u := m.data[provider]
	u.Daily += tokens
	u.Monthly += tokens
	m.data[provider] = u
	return nil
}

func (m *memUsageStore) Load(_ context.Context, provider string, _ time.Time) (budget.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return budget.Usage{}, m.loadErr
	}
	return m.data[provider], nil
}

func (m *memUsageStore) get(provider string) budget.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[provider]
}
