package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/chunker"
	"github.com/Khogao/archi-query-master-sub000/internal/config"
	dbRedis "github.com/Khogao/archi-query-master-sub000/internal/db/redis"
	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/extract"
	logpkg "github.com/Khogao/archi-query-master-sub000/internal/logger"
	"github.com/Khogao/archi-query-master-sub000/internal/metrics"
	budgetrepo "github.com/Khogao/archi-query-master-sub000/internal/repository/budget"
	chunkrepo "github.com/Khogao/archi-query-master-sub000/internal/repository/chunk"
	"github.com/Khogao/archi-query-master-sub000/internal/repository/embcache"
	"github.com/Khogao/archi-query-master-sub000/internal/repository/vector"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/gemini"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/ollama"
	openaiTransport "github.com/Khogao/archi-query-master-sub000/internal/transport/openai"
	embeddinguc "github.com/Khogao/archi-query-master-sub000/internal/usecase/embedding"
	healthuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/health"
	ingestuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/ingest"
	provideruc "github.com/Khogao/archi-query-master-sub000/internal/usecase/provider"
	raguc "github.com/Khogao/archi-query-master-sub000/internal/usecase/rag"
	usageuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/usage"
)

// Budget counters outlive their period a little so late writes still land.
const (
	budgetDailyTTL   = 48 * time.Hour
	budgetMonthlyTTL = 62 * 24 * time.Hour
)

// app is the composition root shared by every subcommand.
type app struct {
	env       string
	cfg       config.Config
	logger    *zap.Logger
	store     *dbRedis.Store
	vectors   *vector.Store
	embedder  *embeddinguc.Router
	providers *provideruc.Manager
	rag       *raguc.Service
	ingest    *ingestuc.Service
	usage     *usageuc.Service
	health    *healthuc.Service
}

// newApp loads configuration, connects to Redis, restores the vector index and
// assembles the services.
func newApp(ctx context.Context, env, configPath string) (*app, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{env: env, cfg: cfg, logger: logger}
	if err := a.connect(ctx); err != nil {
		a.close()
		return nil, err
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterLLMMetrics()
	metrics.RegisterRAGMetrics()

	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.cfg.Database.Addrs,
		Password: a.cfg.Database.Password,
		DB:       a.cfg.Database.DB,
	})
	if err != nil {
		return fmt.Errorf("create database store: %w", err)
	}
	a.store = store

	timeout := time.Duration(a.cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	a.logger.Info("Connected to database", zap.Strings("addrs", a.cfg.Database.Addrs))
	return nil
}

func (a *app) build(ctx context.Context) error {
	prefix := a.cfg.Storage.KeyPrefix

	a.vectors = vector.New(chunkrepo.New(a.store, prefix), a.logger)
	n, err := a.vectors.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore vector index: %w", err)
	}
	a.logger.Info("Vector index restored", zap.Int("chunks", n))

	a.embedder, err = a.buildEmbedder()
	if err != nil {
		return err
	}

	a.usage = usageuc.New()
	a.providers, err = a.buildProviders(ctx)
	if err != nil {
		return err
	}

	var queryEmbedder raguc.Embedder = a.embedder
	if in := a.cfg.Embedding.QueryInstruction; in != "" {
		queryEmbedder = domain.NewInstructionEmbedder(a.embedder, in)
	}
	var docEmbedder domain.BatchEmbedder = a.embedder
	if in := a.cfg.Embedding.DocumentInstruction; in != "" {
		docEmbedder = domain.NewInstructionEmbedder(a.embedder, in)
	}

	a.rag = raguc.New(queryEmbedder, a.vectors, a.providers, raguc.Options{
		TopK:                a.cfg.RAG.TopK,
		SimilarityThreshold: a.cfg.RAG.SimilarityThreshold,
		MaxContextTokens:    a.cfg.RAG.MaxContextTokens,
		NoResultsMessage:    a.cfg.RAG.NoResultsMessage,
	}, a.logger)

	a.ingest = ingestuc.New(
		a.vectors,
		chunker.New(a.cfg.Chunking.Size, a.cfg.Chunking.Overlap),
		docEmbedder,
		extract.New(0),
		a.logger,
	)

	a.health = healthuc.New(a.store, a.embedder, a.providers)
	return nil
}

// buildEmbedder assembles one chain per embedding model:
// client -> instrumented -> durable cache -> in-process cache, behind the router.
func (a *app) buildEmbedder() (*embeddinguc.Router, error) {
	ec := a.cfg.Embedding
	models := make(map[string]domain.Embedder, len(ec.Providers))

	for _, id := range sortedKeys(ec.Providers) {
		pc := ec.Providers[id]
		model := pc.Model
		if model == "" {
			model = id
		}

		var base domain.Embedder
		switch pc.Type {
		case "openai":
			base = openaiTransport.NewEmbedder(&openaiTransport.Config{
				APIKey:     pc.APIKey,
				BaseURL:    pc.BaseURL,
				Model:      model,
				Dimensions: ec.Dimensions,
				Provider:   "openai",
				Logger:     a.logger,
			})
		case "ollama":
			emb, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: pc.BaseURL, Model: model, Provider: "ollama"})
			if err != nil {
				a.logger.Warn("Skipping embedding model", zap.String("model", id), zap.Error(err))
				continue
			}
			base = emb
		}

		var chain domain.Embedder = embeddinguc.NewInstrumentedEmbedder(base, pc.Type, model, a.logger)
		if ec.Cache.Durable {
			chain = embcache.New(chain, a.store, embcache.Options{
				KeyPrefix: a.cfg.Storage.KeyPrefix,
				Model:     id,
				TTL:       time.Duration(ec.Cache.DurableTTLSec) * time.Second,
			}, metrics.EmbeddingCacheTotal, a.logger)
		}
		models[id] = embcache.NewMemory(chain, id, ec.Cache.Size,
			time.Duration(ec.Cache.TTLSec)*time.Second, metrics.EmbeddingCacheTotal)
	}

	primary := ec.Model
	if _, ok := models[primary]; !ok {
		if primary != "" {
			a.logger.Warn("Primary embedding model unavailable", zap.String("model", primary))
		}
		primary = ""
		for _, id := range sortedKeys(ec.Providers) {
			if _, ok := models[id]; ok {
				primary = id
				break
			}
		}
	}
	if primary == "" {
		a.logger.Warn("No embedding backend configured, using synthetic vectors")
		primary = embeddinguc.SyntheticModel
		models[primary] = embeddinguc.SyntheticEmbedder{Dims: ec.Dimensions}
	}

	fallback := ec.FallbackModel
	if _, ok := models[fallback]; !ok {
		fallback = ""
	}

	router, err := embeddinguc.NewRouter(embeddinguc.RouterConfig{
		Models:           models,
		Primary:          primary,
		Fallback:         fallback,
		FallbackAttempts: ec.FallbackAttempts,
		Dimensions:       ec.Dimensions,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding router: %w", err)
	}
	a.logger.Info("Embedding router ready",
		zap.String("primary", primary),
		zap.String("fallback", fallback),
		zap.Int("dimensions", router.Dimensions()),
	)
	return router, nil
}

// buildProviders registers every configured LLM provider behind budget and
// metrics instrumentation. Providers missing credentials are skipped.
func (a *app) buildProviders(ctx context.Context) (*provideruc.Manager, error) {
	lc := a.cfg.LLM
	m := provideruc.NewManager(a.logger)
	budgets := budgetrepo.New(a.store, a.cfg.Storage.KeyPrefix, budgetDailyTTL, budgetMonthlyTTL)

	names := sortedKeys(lc.Providers)
	// default first so it becomes current even when not set explicitly
	if i := slices.Index(names, lc.DefaultProvider); i > 0 {
		names = append([]string{names[i]}, slices.Delete(names, i, i+1)...)
	}

	for _, name := range names {
		pc := lc.Providers[name]
		inner, err := newProvider(name, pc, a.logger)
		if err != nil {
			if errors.Is(err, domain.ErrProviderUnconfigured) {
				a.logger.Warn("Skipping unconfigured LLM provider", zap.String("provider", name), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("create provider %s: %w", name, err)
		}

		// Pass nil interface (not typed nil pointer!) if budget is not configured.
		var budget provideruc.BudgetChecker
		if pc.Budget.DailyTokenLimit > 0 || pc.Budget.MonthlyTokenLimit > 0 {
			action := provideruc.BudgetActionWarn
			if pc.Budget.Action == "reject" {
				action = provideruc.BudgetActionReject
			}
			tracker := provideruc.NewBudgetTracker(
				name, pc.Budget.DailyTokenLimit, pc.Budget.MonthlyTokenLimit, action, a.logger,
			).WithStore(ctx, budgets)
			a.usage.Track(name, tracker)
			budget = tracker
		}

		m.Register(provideruc.NewInstrumentedProvider(inner, budget, a.logger))
		a.logger.Info("LLM provider registered",
			zap.String("provider", name),
			zap.String("type", pc.Type),
			zap.String("model", inner.Model()),
		)
	}

	if len(m.Names()) == 0 {
		a.logger.Warn("No LLM provider available; queries will fail until one is configured")
	}

	order := lc.FallbackOrder
	if len(order) == 0 {
		order = names
	}
	m.SetFallbackOrder(order)
	m.SetAutoFallback(lc.AutoFallbackEnabled())
	return m, nil
}

func newProvider(name string, pc config.LLMProviderConfig, logger *zap.Logger) (domain.Provider, error) {
	cfg := domain.ProviderConfig{
		Name:              name,
		Kind:              domain.ProviderKind(pc.Type),
		Model:             pc.Model,
		APIKey:            pc.APIKey,
		BaseURL:           pc.BaseURL,
		MaxTokens:         pc.MaxTokens,
		Temperature:       pc.Temperature,
		Timeout:           time.Duration(pc.TimeoutMs) * time.Millisecond,
		MaxRetries:        pc.MaxRetries,
		RequestsPerSecond: pc.RequestsPerSecond,
	}
	switch cfg.Kind {
	case domain.KindOpenAI:
		return openaiTransport.NewProvider(cfg, logger)
	case domain.KindGemini:
		return gemini.NewProvider(cfg, logger)
	case domain.KindOllama:
		return ollama.NewProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q: %w", pc.Type, domain.ErrInvalidInput)
	}
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
