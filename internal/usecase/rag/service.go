// Package rag answers questions from indexed documents: it embeds the query, retrieves
// similar chunks and asks an LLM provider to answer from them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/logger"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
	"github.com/Khogao/archi-query-master-sub000/internal/usecase/provider"
)

// DefaultNoResultsMessage is the answer when no chunk clears the threshold.
const DefaultNoResultsMessage = "No relevant information found in the selected documents."

const (
	modeQuery  = "query"
	modeStream = "stream"

	outcomeAnswered  = "answered"
	outcomeNoResults = "no_results"
	outcomeError     = "error"
)

// Options are the engine defaults. Zero values fall back to the domain defaults;
// a nil SimilarityThreshold means DefaultSimilarityThreshold, so 0 can be set explicitly.
type Options struct {
	TopK                int
	SimilarityThreshold *float64
	MaxContextTokens    int
	NoResultsMessage    string
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = domain.DefaultTopK
	}
	if o.SimilarityThreshold == nil {
		t := domain.DefaultSimilarityThreshold
		o.SimilarityThreshold = &t
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = 3000
	}
	if o.NoResultsMessage == "" {
		o.NoResultsMessage = DefaultNoResultsMessage
	}
	return o
}

// Service is the query engine. It never returns Go errors for operational
// failures; they are reported through Response.Error.
type Service struct {
	embed     Embedder
	retriever Retriever
	providers Providers
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a RAG service.
func New(embed Embedder, retriever Retriever, providers Providers, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		embed:     embed,
		retriever: retriever,
		providers: providers,
		opts:      opts.withDefaults(),
		logger:    log,
		now:       time.Now,
	}
}

// prepared is the outcome of the steps shared by both entry points.
type prepared struct {
	provider string
	chunks   []domain.Chunk
	req      domain.CompletionRequest
}

func (s *Service) prepare(ctx context.Context, q domain.Query) (prepared, error) {
	if strings.TrimSpace(q.Text) == "" {
		return prepared{}, fmt.Errorf("%w: query text is required", domain.ErrInvalidInput)
	}

	p, err := s.resolve(q.Provider)
	if err != nil {
		return prepared{}, err
	}

	emb, err := s.embed.Embed(ctx, q.Text)
	if err != nil {
		return prepared{}, fmt.Errorf("embed query: %w", err)
	}

	topK := q.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}
	threshold := *s.opts.SimilarityThreshold
	if q.SimilarityThreshold != nil {
		threshold = *q.SimilarityThreshold
	}

	chunks := s.retriever.Query(ctx, emb.Embedding, q.FolderIDs, topK, threshold)
	metrics.RAGRetrievedChunks.Observe(float64(len(chunks)))

	return prepared{
		provider: p.Name(),
		chunks:   chunks,
		req:      domain.CompletionRequest{Messages: buildMessages(q.Text, chunks, s.opts.MaxContextTokens)},
	}, nil
}

func (s *Service) resolve(name string) (domain.Provider, error) {
	if name != "" {
		return s.providers.Get(name)
	}
	return s.providers.Current()
}

// Query answers q with a single completion call.
func (s *Service) Query(ctx context.Context, q domain.Query) domain.Response {
	start := s.now()

	prep, err := s.prepare(ctx, q)
	if err != nil {
		return s.fail(ctx, modeQuery, start, err)
	}
	if len(prep.chunks) == 0 {
		return s.noResults(modeQuery, start)
	}

	var (
		out  domain.CompletionResponse
		used domain.Provider
	)
	err = s.providers.ExecuteWithFallback(ctx, prep.provider, func(ctx context.Context, p domain.Provider) error {
		resp, err := p.Complete(ctx, prep.req)
		if err != nil {
			return err
		}
		out, used = resp, p
		return nil
	})
	if err != nil {
		return s.fail(ctx, modeQuery, start, fmt.Errorf("generate answer: %w", err))
	}

	model := out.Model
	if model == "" {
		model = used.Model()
	}
	return s.answered(modeQuery, start, domain.Response{
		Answer:   out.Content,
		Sources:  toSources(prep.chunks),
		Model:    model,
		Provider: used.Name(),
		Usage:    out.Usage,
	})
}

// QueryStream answers q with a streaming completion. Content fragments are passed
// to onChunk as they arrive and accumulated into Response.Answer. onChunk receives
// exactly one chunk with Done set, carrying Error when the query failed. Fallback
// to another provider is attempted only while nothing has been streamed.
func (s *Service) QueryStream(
	ctx context.Context, q domain.Query, onChunk func(domain.StreamChunk),
) domain.Response {
	start := s.now()

	prep, err := s.prepare(ctx, q)
	if err != nil {
		onChunk(domain.StreamChunk{Error: err.Error(), Done: true})
		return s.fail(ctx, modeStream, start, err)
	}
	if len(prep.chunks) == 0 {
		onChunk(domain.StreamChunk{Content: s.opts.NoResultsMessage})
		onChunk(domain.StreamChunk{Done: true})
		return s.noResults(modeStream, start)
	}

	var (
		answer strings.Builder
		used   domain.Provider
	)
	err = s.providers.ExecuteWithFallback(ctx, prep.provider, func(ctx context.Context, p domain.Provider) error {
		used = p
		streamed := false
		err := p.StreamComplete(ctx, prep.req, func(c domain.StreamChunk) {
			if c.Done || c.Content == "" {
				return
			}
			streamed = true
			answer.WriteString(c.Content)
			onChunk(domain.StreamChunk{Content: c.Content})
		})
		if err != nil && streamed {
			return provider.StopFallback(err)
		}
		return err
	})
	if err != nil {
		err = fmt.Errorf("generate answer: %w", err)
		onChunk(domain.StreamChunk{Error: err.Error(), Done: true})
		return s.fail(ctx, modeStream, start, err)
	}
	onChunk(domain.StreamChunk{Done: true})

	return s.answered(modeStream, start, domain.Response{
		Answer:   answer.String(),
		Sources:  toSources(prep.chunks),
		Model:    used.Model(),
		Provider: used.Name(),
	})
}

func (s *Service) answered(mode string, start time.Time, resp domain.Response) domain.Response {
	resp.ProcessingTimeMs = s.finish(mode, outcomeAnswered, start)
	return resp
}

func (s *Service) noResults(mode string, start time.Time) domain.Response {
	return domain.Response{
		Answer:           s.opts.NoResultsMessage,
		Sources:          []domain.Source{},
		ProcessingTimeMs: s.finish(mode, outcomeNoResults, start),
	}
}

func (s *Service) fail(ctx context.Context, mode string, start time.Time, err error) domain.Response {
	log := logger.FromContextOr(ctx, s.logger)
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, context.Canceled) {
		log.Warn("RAG query rejected", zap.String("mode", mode), zap.Error(err))
	} else {
		log.Error("RAG query failed", zap.String("mode", mode), zap.Error(err))
	}

	return domain.Response{
		Sources:          []domain.Source{},
		Error:            err.Error(),
		Err:              err,
		ProcessingTimeMs: s.finish(mode, outcomeError, start),
	}
}

func (s *Service) finish(mode, outcome string, start time.Time) int64 {
	elapsed := s.now().Sub(start)
	metrics.RAGQueriesTotal.WithLabelValues(mode, outcome).Inc()
	metrics.RAGQueryDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	return elapsed.Milliseconds()
}
