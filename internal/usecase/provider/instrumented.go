package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/llm"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedProvider wraps a Provider with budget enforcement and logging.
// Transport metrics are recorded by the provider implementations.
type InstrumentedProvider struct {
	inner  domain.Provider
	budget BudgetChecker
	logger *zap.Logger
}

// NewInstrumentedProvider wraps inner. budget may be nil.
func NewInstrumentedProvider(inner domain.Provider, budget BudgetChecker, logger *zap.Logger) *InstrumentedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedProvider{inner: inner, budget: budget, logger: logger}
}

// Name implements domain.Provider.
func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

// Model implements domain.Provider.
func (p *InstrumentedProvider) Model() string { return p.inner.Model() }

// HealthCheck implements domain.Provider.
func (p *InstrumentedProvider) HealthCheck(ctx context.Context) domain.ProviderStatus {
	return p.inner.HealthCheck(ctx)
}

// Reconfigure forwards to the wrapped provider.
func (p *InstrumentedProvider) Reconfigure(cfg domain.ProviderConfig) error {
	rc, ok := p.inner.(domain.Reconfigurable)
	if !ok {
		return fmt.Errorf("provider %q cannot be reconfigured: %w", p.inner.Name(), domain.ErrInvalidInput)
	}
	return rc.Reconfigure(cfg) //nolint:wrapcheck // transparent decorator
}

// Complete checks the budget, delegates and records token usage.
func (p *InstrumentedProvider) Complete(
	ctx context.Context, req domain.CompletionRequest,
) (domain.CompletionResponse, error) {
	if err := p.checkBudget(ctx); err != nil {
		return domain.CompletionResponse{}, err
	}

	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Completion failed",
			zap.String("provider", p.Name()),
			zap.String("model", p.Model()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.CompletionResponse{}, fmt.Errorf("complete: %w", err)
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	p.record(tokens)

	p.logger.Debug("Completion finished",
		zap.String("provider", p.Name()),
		zap.String("model", resp.Model),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", tokens),
	)
	return resp, nil
}

// StreamComplete checks the budget, delegates and records an estimate of the
// tokens used, since streams carry no usage report. A rejected stream still
// delivers its terminal chunk.
func (p *InstrumentedProvider) StreamComplete(
	ctx context.Context, req domain.CompletionRequest, onChunk func(domain.StreamChunk),
) error {
	if err := p.checkBudget(ctx); err != nil {
		onChunk(domain.StreamChunk{Done: true})
		return err
	}

	var out strings.Builder
	start := time.Now()
	err := p.inner.StreamComplete(ctx, req, func(c domain.StreamChunk) {
		out.WriteString(c.Content)
		onChunk(c)
	})
	duration := time.Since(start)

	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
	}
	tokens := llm.EstimateTokens(prompt.String()) + llm.EstimateTokens(out.String())
	p.record(tokens)

	if err != nil {
		p.logger.Error("Stream failed",
			zap.String("provider", p.Name()),
			zap.String("model", p.Model()),
			zap.Duration("duration", duration),
			zap.Int("streamed_chars", out.Len()),
			zap.Error(err),
		)
		return fmt.Errorf("stream: %w", err)
	}

	p.logger.Debug("Stream finished",
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.Duration("duration", duration),
		zap.Int("estimated_tokens", tokens),
	)
	return nil
}

func (p *InstrumentedProvider) checkBudget(ctx context.Context) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Budget exceeded",
			zap.String("provider", p.Name()),
			zap.String("model", p.Model()),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (p *InstrumentedProvider) record(tokens int) {
	if p.budget == nil || tokens <= 0 {
		return
	}
	p.budget.Record(int64(tokens))
	remaining := metrics.LLMBudgetTokensRemaining
	remaining.WithLabelValues(p.Name(), "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.Name(), "monthly").Set(float64(p.budget.RemainingMonthly()))
}
