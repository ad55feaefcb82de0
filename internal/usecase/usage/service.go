// Package usage reports LLM token consumption against the configured budgets.
package usage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Period selects the budget window of a report.
type Period string

// Supported report periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value to a Period. Empty means PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("%w: period must be \"day\" or \"month\", got %q", domain.ErrInvalidInput, s)
	}
}

// ProviderUsage is the token budget state of one provider.
// TokensLimit 0 and TokensRemaining -1 mean unlimited.
type ProviderUsage struct {
	Provider        string `json:"provider"`
	TokensLimit     int64  `json:"tokens_limit"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensRemaining int64  `json:"tokens_remaining"`
	Exhausted       bool   `json:"exhausted"`
}

// Report is the usage of every budgeted provider for one period.
type Report struct {
	Period      Period          `json:"period"`
	PeriodStart int64           `json:"period_start"` // unix millis, UTC
	PeriodEnd   int64           `json:"period_end"`
	Providers   []ProviderUsage `json:"providers"`
}

// Service handles usage reporting.
type Service struct {
	mu      sync.RWMutex
	readers map[string]BudgetReader
	now     func() time.Time
}

// New creates a Service without any budgeted provider.
func New() *Service {
	return &Service{
		readers: make(map[string]BudgetReader),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Track adds the budget of provider to reports.
func (s *Service) Track(provider string, br BudgetReader) {
	if br == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[provider] = br
}

// GetReport builds a usage report for the given period. Providers are sorted by name.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now()
	var start, end time.Time
	if period == PeriodMonth {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	} else {
		period = PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
	}

	s.mu.RLock()
	readers := maps.Clone(s.readers)
	s.mu.RUnlock()
	names := slices.Sorted(maps.Keys(readers))

	out := Report{
		Period:      period,
		PeriodStart: start.UnixMilli(),
		PeriodEnd:   end.UnixMilli(),
		Providers:   make([]ProviderUsage, 0, len(names)),
	}
	for _, name := range names {
		br := readers[name]
		u := ProviderUsage{Provider: name}
		if period == PeriodMonth {
			u.TokensLimit, u.TokensUsed, u.TokensRemaining = br.MonthlyLimit(), br.MonthlyUsed(), br.RemainingMonthly()
		} else {
			u.TokensLimit, u.TokensUsed, u.TokensRemaining = br.DailyLimit(), br.DailyUsed(), br.RemainingDaily()
		}
		u.Exhausted = u.TokensLimit > 0 && u.TokensRemaining <= 0
		out.Providers = append(out.Providers, u)
	}
	return out
}
