package ollama

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/llm"
)

// Provider is a chat completion backend on a local Ollama daemon.
type Provider struct {
	settings *llm.Settings
	state    *llm.State
	logger   *zap.Logger

	mu      sync.RWMutex
	client  *ollama.LLM
	retrier *llm.Retrier

	httpClient *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for daemon calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// NewProvider validates cfg and builds the provider. A missing base URL yields
// domain.ErrProviderUnconfigured.
func NewProvider(cfg domain.ProviderConfig, logger *zap.Logger, opts ...Option) (*Provider, error) {
	if cfg.Kind == "" {
		cfg.Kind = domain.KindOllama
	}
	settings, err := llm.NewSettings(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{settings: settings, state: llm.NewState(), logger: logger}
	for _, o := range opts {
		o(p)
	}
	p.httpClient = instrumentClient(p.httpClient)
	if err := p.rebuild(settings.Get()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) rebuild(cfg domain.ProviderConfig) error {
	client, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithHTTPClient(p.httpClient),
	)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", cfg.Name, err, domain.ErrProviderUnconfigured)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.retrier = llm.NewRetrier(cfg, p.logger)
	return nil
}

func (p *Provider) snapshot() (*ollama.LLM, *llm.Retrier) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client, p.retrier
}

// Name implements domain.Provider.
func (p *Provider) Name() string { return p.settings.Get().Name }

// Model implements domain.Provider.
func (p *Provider) Model() string { return p.settings.Get().Model }

// State returns the advisory health state.
func (p *Provider) State() (domain.ProviderState, string) { return p.state.Current() }

// Reconfigure implements domain.Reconfigurable.
func (p *Provider) Reconfigure(cfg domain.ProviderConfig) error {
	applied, err := p.settings.Replace(cfg)
	if err != nil {
		return err
	}
	return p.rebuild(applied)
}

// Complete implements domain.Provider.
func (p *Provider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	cfg := p.settings.Get()
	r, err := llm.Resolve(cfg, req)
	if err != nil {
		return domain.CompletionResponse{}, err
	}
	client, retrier := p.snapshot()

	start := time.Now()
	var out domain.CompletionResponse
	err = retrier.Do(ctx, func(ctx context.Context) error {
		ctx, status := withStatus(ctx)
		resp, err := client.GenerateContent(ctx, messages(r.Messages), callOptions(r)...)
		if err != nil {
			return mapError(cfg.Name, *status, err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return domain.NewProviderError(cfg.Name, 0, domain.ErrProviderError, "no choices in response")
		}
		choice := resp.Choices[0]
		out = domain.CompletionResponse{
			Content:      choice.Content,
			Model:        r.Model,
			FinishReason: choice.StopReason,
			Usage:        usage(choice.GenerationInfo),
		}
		return nil
	})
	llm.Observe(cfg.Name, r.Model, llm.ModeComplete, start, out.Usage, err)
	if err != nil {
		return domain.CompletionResponse{}, err
	}
	return out, nil
}

// StreamComplete implements domain.Provider.
func (p *Provider) StreamComplete(
	ctx context.Context, req domain.CompletionRequest, onChunk func(domain.StreamChunk),
) error {
	cfg := p.settings.Get()
	r, err := llm.Resolve(cfg, req)
	if err != nil {
		onChunk(domain.StreamChunk{Done: true})
		return err
	}
	client, retrier := p.snapshot()

	start := time.Now()
	err = retrier.Stream(ctx, onChunk, func(ctx context.Context, emit func(string)) error {
		ctx, status := withStatus(ctx)
		opts := append(callOptions(r), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			emit(string(chunk))
			return nil
		}))
		if _, err := client.GenerateContent(ctx, messages(r.Messages), opts...); err != nil {
			return mapError(cfg.Name, *status, err)
		}
		return nil
	})
	llm.Observe(cfg.Name, r.Model, llm.ModeStream, start, nil, err)
	return err
}

// HealthCheck implements domain.Provider with a one-token generation.
func (p *Provider) HealthCheck(ctx context.Context) domain.ProviderStatus {
	cfg := p.settings.Get()
	client, _ := p.snapshot()
	return llm.Probe(ctx, cfg, p.state, llm.DefaultHealthTimeout, func(ctx context.Context) error {
		ctx, status := withStatus(ctx)
		_, err := client.GenerateContent(ctx,
			[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, llm.HealthPrompt)},
			llms.WithMaxTokens(1))
		if err != nil {
			return mapError(cfg.Name, *status, err)
		}
		return nil
	})
}

func messages(msgs []domain.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llms.TextParts(messageType(m.Role), m.Content))
	}
	return out
}

func messageType(r domain.Role) llms.ChatMessageType {
	switch r {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func callOptions(r llm.Resolved) []llms.CallOption {
	return []llms.CallOption{
		llms.WithModel(r.Model),
		llms.WithMaxTokens(r.MaxTokens),
		llms.WithTemperature(r.Temperature),
	}
}

func usage(info map[string]any) *domain.Usage {
	if info == nil {
		return nil
	}
	u := &domain.Usage{
		PromptTokens:     intValue(info["PromptTokens"]),
		CompletionTokens: intValue(info["CompletionTokens"]),
		TotalTokens:      intValue(info["TotalTokens"]),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// mapError classifies a daemon error by the HTTP status recorded for the attempt.
func mapError(provider string, status int, err error) error {
	if status >= http.StatusBadRequest {
		return llm.StatusError(provider, status, err.Error())
	}
	return llm.TransportError(provider, err)
}
