package llm

import (
	"context"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Stream runs a streaming call through the retry policy and guarantees the chunk
// protocol: zero or more content chunks, then exactly one terminal chunk, on success
// and on failure alike. run calls emit for every fragment. Retries only happen while
// nothing has been emitted; a failure after the first fragment ends the stream.
func (r *Retrier) Stream(
	ctx context.Context,
	onChunk func(domain.StreamChunk),
	run func(ctx context.Context, emit func(content string)) error,
) error {
	started := false
	emit := func(content string) {
		if content == "" {
			return
		}
		started = true
		onChunk(domain.StreamChunk{Content: content})
	}

	err := r.do(ctx,
		func(ctx context.Context) error { return run(ctx, emit) },
		func() bool { return !started },
	)

	onChunk(domain.StreamChunk{Done: true})
	return err
}
