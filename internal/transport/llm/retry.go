package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
)

// Backoff defaults: the delay before attempt n+1 is BaseDelay*2^(n-1) plus jitter in [0, MaxJitter).
const (
	DefaultBaseDelay = time.Second
	DefaultMaxJitter = time.Second
)

// Retrier runs provider calls with bounded attempts, exponential backoff,
// a timeout per attempt and an optional request rate limit.
type Retrier struct {
	provider    string
	maxAttempts int
	timeout     time.Duration
	baseDelay   time.Duration
	maxJitter   time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier builds a Retrier from a provider configuration.
func NewRetrier(cfg domain.ProviderConfig, logger *zap.Logger) *Retrier {
	cfg = WithDefaults(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrier{
		provider:    cfg.Name,
		maxAttempts: cfg.MaxRetries,
		timeout:     cfg.Timeout,
		baseDelay:   DefaultBaseDelay,
		maxJitter:   DefaultMaxJitter,
		logger:      logger,
		sleep:       sleepCtx,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r
}

// WithBackoff overrides the backoff timing.
func (r *Retrier) WithBackoff(base, jitter time.Duration) *Retrier {
	r.baseDelay = base
	r.maxJitter = jitter
	return r
}

// Do calls fn until it succeeds, fails with a non-retryable error, attempts run out
// or ctx is done. Each attempt gets its own deadline; an attempt that hits it fails
// with domain.ErrProviderTimeout and is retried.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.do(ctx, fn, func() bool { return true })
}

func (r *Retrier) do(ctx context.Context, fn func(ctx context.Context) error, canRetry func() bool) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return r.stopped(err, lastErr)
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return r.stopped(err, lastErr)
			}
		}

		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return r.stopped(ctx.Err(), lastErr)
		}
		if attempt == r.maxAttempts || !Retryable(err) || !canRetry() {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn("Provider attempt failed, retrying",
			zap.String("provider", r.provider),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.LLMRetriesTotal.WithLabelValues(r.provider).Inc()

		if err := r.sleep(ctx, delay); err != nil {
			return r.stopped(err, lastErr)
		}
	}
	return lastErr
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}
	// the attempt's own deadline, not the caller's
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return domain.NewProviderError(r.provider, 0, domain.ErrProviderTimeout,
			fmt.Sprintf("attempt exceeded %s", r.timeout))
	}
	return TransportError(r.provider, err)
}

func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.baseDelay << (attempt - 1)
	if r.maxJitter > 0 {
		d += rand.N(r.maxJitter)
	}
	return d
}

// stopped reports caller cancellation, keeping the last provider error for context.
func (r *Retrier) stopped(ctxErr, lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%s: %w (last error: %v)", r.provider, ctxErr, lastErr)
	}
	return fmt.Errorf("%s: %w", r.provider, ctxErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
