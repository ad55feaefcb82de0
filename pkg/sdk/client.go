package archiquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/chunker"
	dbRedis "github.com/Khogao/archi-query-master-sub000/internal/db/redis"
	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/extract"
	chunkrepo "github.com/Khogao/archi-query-master-sub000/internal/repository/chunk"
	"github.com/Khogao/archi-query-master-sub000/internal/repository/vector"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/gemini"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/ollama"
	openaiTransport "github.com/Khogao/archi-query-master-sub000/internal/transport/openai"
	embeddinguc "github.com/Khogao/archi-query-master-sub000/internal/usecase/embedding"
	healthuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/health"
	ingestuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/ingest"
	provideruc "github.com/Khogao/archi-query-master-sub000/internal/usecase/provider"
	raguc "github.com/Khogao/archi-query-master-sub000/internal/usecase/rag"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, swapped for fakes in tests.
type ragUseCase interface {
	Query(ctx context.Context, q domain.Query) domain.Response
	QueryStream(ctx context.Context, q domain.Query, onChunk func(domain.StreamChunk)) domain.Response
}

type ingestUseCase interface {
	Ingest(ctx context.Context, doc domain.Document) (ingestuc.Result, error)
	IngestFile(ctx context.Context, path, folderID string) (ingestuc.Result, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteFolder(ctx context.Context, id string) error
}

// Client is the archiquery SDK entry point.
type Client struct {
	store     *dbRedis.Store
	ragSvc    ragUseCase
	ingestSvc ingestUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client, connects to Redis and restores the chunk index.
// The provided context is used for the readiness check and the index load.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:  domain.KeyPrefix,
		dimensions: domain.DefaultEmbeddingDimensions,
		threshold:  domain.DefaultSimilarityThreshold,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("archiquery: database address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
	if err != nil {
		return nil, fmt.Errorf("archiquery: create redis store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("archiquery: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store *dbRedis.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	// The SDK reports through slog; the internal zap logs stay silent.
	logger := zap.NewNop()

	index := vector.New(chunkrepo.New(store, cfg.keyPrefix), logger)
	if _, err := index.Load(ctx); err != nil {
		return nil, fmt.Errorf("archiquery: restore index: %w", err)
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	manager := provideruc.NewManager(logger)
	order := make([]string, 0, len(cfg.providers))
	for _, pc := range cfg.providers {
		p, err := newProvider(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("archiquery: %s provider: %w", pc.Name, err)
		}
		manager.Register(provideruc.NewInstrumentedProvider(p, nil, logger))
		order = append(order, pc.Name)
	}
	manager.SetFallbackOrder(order)
	manager.SetAutoFallback(true)

	ragSvc := raguc.New(embedder, index, manager, raguc.Options{
		TopK:                cfg.topK,
		SimilarityThreshold: &cfg.threshold,
	}, logger)
	ingestSvc := ingestuc.New(index, chunker.New(cfg.chunkSize, cfg.chunkOverlap), embedder, extract.New(0), logger)

	return &Client{
		store:     store,
		ragSvc:    ragSvc,
		ingestSvc: ingestSvc,
		healthSvc: healthuc.New(store, embedder, manager),
		obs:       obs,
	}, nil
}

func newEmbedder(cfg *clientConfig, logger *zap.Logger) (*embeddinguc.Router, error) {
	var backend domain.Embedder
	model := "custom"
	switch {
	case cfg.embedder != nil:
		backend = &embedderAdapter{inner: cfg.embedder}
	case cfg.ollamaEmbedURL != "":
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:  cfg.ollamaEmbedURL,
			Model:    cfg.ollamaEmbedMdl,
			Provider: "ollama",
		})
		if err != nil {
			return nil, fmt.Errorf("archiquery: ollama embedder: %w", err)
		}
		backend, model = e, cfg.ollamaEmbedMdl
	default:
		backend, model = embeddinguc.SyntheticEmbedder{Dims: cfg.dimensions}, embeddinguc.SyntheticModel
	}

	r, err := embeddinguc.NewRouter(embeddinguc.RouterConfig{
		Models:     map[string]domain.Embedder{model: backend},
		Primary:    model,
		Dimensions: cfg.dimensions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("archiquery: embedding router: %w", err)
	}
	return r, nil
}

func newProvider(pc domain.ProviderConfig, logger *zap.Logger) (domain.Provider, error) {
	switch pc.Kind {
	case domain.KindOpenAI:
		return openaiTransport.NewProvider(pc, logger)
	case domain.KindGemini:
		return gemini.NewProvider(pc, logger)
	default:
		return ollama.NewProvider(pc, logger)
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ingest chunks, embeds and indexes a document.
func (c *Client) Ingest(ctx context.Context, doc Document) (res IngestResult, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("ingest", start, err, slog.String("document", res.DocumentID), slog.Int("chunks", res.Chunks))
	}()

	r, err := c.ingestSvc.Ingest(ctx, domain.Document{
		ID:       doc.ID,
		Name:     doc.Name,
		FolderID: doc.FolderID,
		Text:     doc.Text,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: %w", err)
	}
	return IngestResult{DocumentID: r.DocumentID, Chunks: r.Chunks}, nil
}

// IngestFile extracts and indexes a plain text or Markdown file into folderID.
func (c *Client) IngestFile(ctx context.Context, path, folderID string) (res IngestResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ingest_file", start, err, slog.String("path", path)) }()

	r, err := c.ingestSvc.IngestFile(ctx, path, folderID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest file: %w", err)
	}
	return IngestResult{DocumentID: r.DocumentID, Chunks: r.Chunks}, nil
}

// DeleteDocument removes a document from the index.
func (c *Client) DeleteDocument(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("document.delete", start, err) }()

	if err = c.ingestSvc.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// DeleteFolder removes every document of a folder from the index.
func (c *Client) DeleteFolder(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("folder.delete", start, err) }()

	if err = c.ingestSvc.DeleteFolder(ctx, id); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

// Query answers a question. When nothing relevant is indexed the answer is a fixed
// notice with no sources, not an error.
func (c *Client) Query(ctx context.Context, q Query) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err, slog.String("provider", ans.Provider)) }()

	resp := c.ragSvc.Query(ctx, toDomainQuery(q, false))
	if resp.Err != nil {
		return Answer{}, fmt.Errorf("query: %w", resp.Err)
	}
	return fromResponse(resp), nil
}

// QueryStream answers a question and calls onText with each generated fragment.
// The returned Answer holds the full text.
func (c *Client) QueryStream(ctx context.Context, q Query, onText func(string)) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query_stream", start, err, slog.String("provider", ans.Provider)) }()

	resp := c.ragSvc.QueryStream(ctx, toDomainQuery(q, true), func(chunk domain.StreamChunk) {
		if chunk.Content != "" && onText != nil {
			onText(chunk.Content)
		}
	})
	if resp.Err != nil {
		return Answer{}, fmt.Errorf("query stream: %w", resp.Err)
	}
	return fromResponse(resp), nil
}

func toDomainQuery(q Query, stream bool) domain.Query {
	return domain.Query{
		Text:                q.Text,
		FolderIDs:           q.Folders,
		TopK:                q.TopK,
		SimilarityThreshold: q.Threshold,
		Provider:            q.Provider,
		Stream:              stream,
	}
}

func fromResponse(resp domain.Response) Answer {
	out := Answer{
		Answer:   resp.Answer,
		Sources:  make([]Source, len(resp.Sources)),
		Provider: resp.Provider,
		Model:    resp.Model,
		Duration: resp.ProcessingTimeMs,
	}
	for i, s := range resp.Sources {
		out.Sources[i] = Source{
			Index:        s.Index,
			DocumentID:   s.DocumentID,
			DocumentName: s.DocumentName,
			Content:      s.Content,
			Similarity:   s.Similarity,
		}
	}
	if resp.Usage != nil {
		out.TokensUsed = resp.Usage.TotalTokens
	}
	return out
}
