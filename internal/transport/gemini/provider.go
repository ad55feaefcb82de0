// Package gemini implements the chat provider for the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/llm"
)

// Provider is a chat completion backend on the Gemini API.
type Provider struct {
	settings *llm.Settings
	state    *llm.State
	logger   *zap.Logger

	mu      sync.RWMutex
	client  *genai.Client
	retrier *llm.Retrier

	httpClient *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// NewProvider validates cfg and builds the provider. A missing API key yields
// domain.ErrProviderUnconfigured.
func NewProvider(cfg domain.ProviderConfig, logger *zap.Logger, opts ...Option) (*Provider, error) {
	if cfg.Kind == "" {
		cfg.Kind = domain.KindGemini
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
	if err := p.rebuild(settings.Get()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) rebuild(cfg domain.ProviderConfig) error {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return fmt.Errorf("%s: create client: %w", cfg.Name, domain.ErrProviderUnconfigured)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.retrier = llm.NewRetrier(cfg, p.logger)
	return nil
}

func (p *Provider) snapshot() (*genai.Client, *llm.Retrier) {
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
	contents, genCfg := buildRequest(r)

	start := time.Now()
	var out domain.CompletionResponse
	err = retrier.Do(ctx, func(ctx context.Context) error {
		resp, err := client.Models.GenerateContent(ctx, r.Model, contents, genCfg)
		if err != nil {
			return mapError(cfg.Name, err)
		}
		if len(resp.Candidates) == 0 {
			return domain.NewProviderError(cfg.Name, 0, domain.ErrProviderError, "no candidates in response")
		}
		out = domain.CompletionResponse{
			Content:      resp.Text(),
			Model:        resp.ModelVersion,
			FinishReason: string(resp.Candidates[0].FinishReason),
			Usage:        usage(resp.UsageMetadata),
		}
		return nil
	})
	llm.Observe(cfg.Name, r.Model, llm.ModeComplete, start, out.Usage, err)
	if err != nil {
		return domain.CompletionResponse{}, err
	}
	if out.Model == "" {
		out.Model = r.Model
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
	contents, genCfg := buildRequest(r)

	start := time.Now()
	err = retrier.Stream(ctx, onChunk, func(ctx context.Context, emit func(string)) error {
		for resp, err := range client.Models.GenerateContentStream(ctx, r.Model, contents, genCfg) {
			if err != nil {
				return mapError(cfg.Name, err)
			}
			emit(resp.Text())
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
		_, err := client.Models.GenerateContent(ctx, cfg.Model,
			genai.Text(llm.HealthPrompt), &genai.GenerateContentConfig{MaxOutputTokens: 1})
		if err != nil {
			return mapError(cfg.Name, err)
		}
		return nil
	})
}

// buildRequest moves system messages into the system instruction; assistant turns
// use the "model" role.
func buildRequest(r llm.Resolved) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(r.Temperature)),
		MaxOutputTokens: int32(r.MaxTokens), //nolint:gosec // bounded by config
	}

	var system []*genai.Part
	contents := make([]*genai.Content, 0, len(r.Messages))
	for _, m := range r.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, genai.NewPartFromText(m.Content))
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	return contents, cfg
}

func usage(md *genai.GenerateContentResponseUsageMetadata) *domain.Usage {
	if md == nil {
		return nil
	}
	return &domain.Usage{
		PromptTokens:     int(md.PromptTokenCount),
		CompletionTokens: int(md.CandidatesTokenCount),
		TotalTokens:      int(md.TotalTokenCount),
	}
}

// mapError converts genai API errors into provider errors by HTTP status.
func mapError(provider string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return llm.StatusError(provider, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code > 0 {
		return llm.StatusError(provider, apiErrPtr.Code, apiErrPtr.Message)
	}
	return llm.TransportError(provider, err)
}
