// Package budget persists per-provider token counters as daily and monthly Redis keys.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/db"
	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Default key lifetimes: a period's counter outlives the period so late readers still see it.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Usage is the tokens consumed by a provider in the current periods.
type Usage struct {
	Daily   int64
	Monthly int64
}

// Store keeps token counters on top of INCRBY + EXPIRE NX.
type Store struct {
	store    store
	prefix   string
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store. Zero TTLs fall back to the defaults.
func New(s store, prefix string, dailyTTL, monthTTL time.Duration) *Store {
	if prefix == "" {
		prefix = domain.KeyPrefix
	}
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthTTL <= 0 {
		monthTTL = DefaultMonthlyTTL
	}
	return &Store{
		store:    s,
		prefix:   prefix,
		dailyTTL: dailyTTL,
		monthTTL: monthTTL,
	}
}

// DailyKey returns the counter key for provider on the UTC day of t.
func (s *Store) DailyKey(provider string, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", s.prefix, provider, t.UTC().Format("2006-01-02"))
}

// MonthlyKey returns the counter key for provider in the UTC month of t.
func (s *Store) MonthlyKey(provider string, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", s.prefix, provider, t.UTC().Format("2006-01"))
}

// Add records tokens against both periods of t.
func (s *Store) Add(ctx context.Context, provider string, tokens int64, t time.Time) error {
	if err := s.incr(ctx, s.DailyKey(provider, t), tokens, s.dailyTTL); err != nil {
		return err
	}
	return s.incr(ctx, s.MonthlyKey(provider, t), tokens, s.monthTTL)
}

// Load returns the counters for the periods of t. Missing keys count as zero.
func (s *Store) Load(ctx context.Context, provider string, t time.Time) (Usage, error) {
	daily, err := s.get(ctx, s.DailyKey(provider, t))
	if err != nil {
		return Usage{}, err
	}
	monthly, err := s.get(ctx, s.MonthlyKey(provider, t))
	if err != nil {
		return Usage{}, err
	}
	return Usage{Daily: daily, Monthly: monthly}, nil
}

func (s *Store) incr(ctx context.Context, key string, val int64, ttl time.Duration) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	// NX: the first write of a period fixes its expiry.
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}
