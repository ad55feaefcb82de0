package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

func testRetrier(attempts int, timeout time.Duration) (*Retrier, *[]time.Duration) {
	r := NewRetrier(domain.ProviderConfig{Name: "test", MaxRetries: attempts, Timeout: timeout}, nil)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	r, delays := testRetrier(3, time.Second)
	calls := 0

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestDo_RetriesServerErrorsWithBackoff(t *testing.T) {
	r, delays := testRetrier(3, time.Second)
	calls := 0

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return StatusError("test", 503, "overloaded")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, 3, calls)
	require.Len(t, *delays, 2)
	assert.GreaterOrEqual(t, (*delays)[0], time.Second)
	assert.Less(t, (*delays)[0], 2*time.Second)
	assert.GreaterOrEqual(t, (*delays)[1], 2*time.Second)
	assert.Less(t, (*delays)[1], 3*time.Second)
}

func TestDo_RetriesRateLimitThenSucceeds(t *testing.T) {
	r, _ := testRetrier(3, time.Second)
	calls := 0

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return StatusError("test", 429, "slow down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_NoRetryOnClientErrors(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422} {
		r, _ := testRetrier(3, time.Second)
		calls := 0

		err := r.Do(context.Background(), func(context.Context) error {
			calls++
			return StatusError("test", status, "nope")
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls, "status %d", status)
	}
}

func TestDo_AuthenticationClassified(t *testing.T) {
	r, _ := testRetrier(3, time.Second)

	err := r.Do(context.Background(), func(context.Context) error {
		return StatusError("test", 401, "invalid key")
	})

	assert.ErrorIs(t, err, domain.ErrAuthentication)
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 401, pe.StatusCode)
}

func TestDo_NetworkErrorsRetried(t *testing.T) {
	r, _ := testRetrier(2, time.Second)
	calls := 0

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, 2, calls)
}

func TestDo_AttemptTimeoutIsRetryable(t *testing.T) {
	r, _ := testRetrier(2, 20*time.Millisecond)
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, domain.ErrProviderTimeout)
	assert.Equal(t, 2, calls)
}

func TestDo_CallerCancellationStopsRetries(t *testing.T) {
	r, _ := testRetrier(5, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return StatusError("test", 500, "boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_RateLimiterSpacesAttempts(t *testing.T) {
	r := NewRetrier(domain.ProviderConfig{Name: "test", RequestsPerSecond: 20}, nil)
	var calls atomic.Int32

	start := time.Now()
	for i := 0; i < 22; i++ {
		require.NoError(t, r.Do(context.Background(), func(context.Context) error {
			calls.Add(1)
			return nil
		}))
	}

	// burst of 20, then two more tokens at 50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(22), calls.Load())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(domain.ErrQuotaExceeded))
	assert.True(t, Retryable(StatusError("p", 500, "")))
	assert.True(t, Retryable(StatusError("p", 502, "")))
	assert.True(t, Retryable(StatusError("p", 429, "")))
	assert.True(t, Retryable(StatusError("p", 408, "")))
	assert.False(t, Retryable(StatusError("p", 400, "")))
	assert.True(t, Retryable(TransportError("p", errors.New("EOF"))))
	assert.True(t, Retryable(TransportError("p", context.DeadlineExceeded)))
}

func TestStream_ExactlyOneTerminalChunk(t *testing.T) {
	r, _ := testRetrier(3, time.Second)
	var chunks []domain.StreamChunk

	err := r.Stream(context.Background(), func(c domain.StreamChunk) { chunks = append(chunks, c) },
		func(_ context.Context, emit func(string)) error {
			emit("Hello")
			emit("")
			emit(", world")
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, []domain.StreamChunk{
		{Content: "Hello"},
		{Content: ", world"},
		{Done: true},
	}, chunks)
}

func TestStream_RetriesBeforeFirstChunk(t *testing.T) {
	r, _ := testRetrier(3, time.Second)
	var chunks []domain.StreamChunk
	calls := 0

	err := r.Stream(context.Background(), func(c domain.StreamChunk) { chunks = append(chunks, c) },
		func(_ context.Context, emit func(string)) error {
			calls++
			if calls == 1 {
				return StatusError("test", 503, "warming up")
			}
			emit("ok")
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []domain.StreamChunk{{Content: "ok"}, {Done: true}}, chunks)
}

func TestStream_NoRetryAfterFirstChunk(t *testing.T) {
	r, _ := testRetrier(3, time.Second)
	var chunks []domain.StreamChunk
	calls := 0

	err := r.Stream(context.Background(), func(c domain.StreamChunk) { chunks = append(chunks, c) },
		func(_ context.Context, emit func(string)) error {
			calls++
			emit("partial")
			return StatusError("test", 500, "connection dropped")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []domain.StreamChunk{{Content: "partial"}, {Done: true}}, chunks)
}

func TestStream_TerminalChunkOnFailure(t *testing.T) {
	r, _ := testRetrier(1, time.Second)
	var chunks []domain.StreamChunk

	err := r.Stream(context.Background(), func(c domain.StreamChunk) { chunks = append(chunks, c) },
		func(context.Context, func(string)) error {
			return StatusError("test", 401, "bad key")
		})

	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Equal(t, []domain.StreamChunk{{Done: true}}, chunks)
}
