package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/transport/llm"
)

// Provider is a chat completion backend speaking the OpenAI API.
type Provider struct {
	settings *llm.Settings
	state    *llm.State
	logger   *zap.Logger

	mu      sync.RWMutex
	client  *openai.Client
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
		cfg.Kind = domain.KindOpenAI
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
	p.rebuild(settings.Get())
	return p, nil
}

func (p *Provider) rebuild(cfg domain.ProviderConfig) {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if p.httpClient != nil {
		clientCfg.HTTPClient = p.httpClient
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = openai.NewClientWithConfig(clientCfg)
	p.retrier = llm.NewRetrier(cfg, p.logger)
}

func (p *Provider) snapshot() (*openai.Client, *llm.Retrier) {
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
	p.rebuild(applied)
	return nil
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
		resp, err := client.CreateChatCompletion(ctx, chatRequest(r, false))
		if err != nil {
			return mapError(cfg.Name, err)
		}
		if len(resp.Choices) == 0 {
			return domain.NewProviderError(cfg.Name, 0, domain.ErrProviderError, "no choices in response")
		}
		out = domain.CompletionResponse{
			Content:      resp.Choices[0].Message.Content,
			Model:        resp.Model,
			FinishReason: string(resp.Choices[0].FinishReason),
			Usage: &domain.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
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

	start := time.Now()
	err = retrier.Stream(ctx, onChunk, func(ctx context.Context, emit func(string)) error {
		stream, err := client.CreateChatCompletionStream(ctx, chatRequest(r, true))
		if err != nil {
			return mapError(cfg.Name, err)
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return mapError(cfg.Name, err)
			}
			for _, c := range resp.Choices {
				emit(c.Delta.Content)
			}
		}
	})
	llm.Observe(cfg.Name, r.Model, llm.ModeStream, start, nil, err)
	return err
}

// HealthCheck implements domain.Provider with a one-token completion.
func (p *Provider) HealthCheck(ctx context.Context) domain.ProviderStatus {
	cfg := p.settings.Get()
	client, _ := p.snapshot()
	return llm.Probe(ctx, cfg, p.state, llm.DefaultHealthTimeout, func(ctx context.Context) error {
		_, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     cfg.Model,
			MaxTokens: 1,
			Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: llm.HealthPrompt}},
		})
		if err != nil {
			return mapError(cfg.Name, err)
		}
		return nil
	})
}

func chatRequest(r llm.Resolved, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       r.Model,
		Messages:    msgs,
		MaxTokens:   r.MaxTokens,
		Temperature: float32(r.Temperature),
		Stream:      stream,
	}
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// mapError converts go-openai errors into provider errors by HTTP status.
func mapError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return llm.StatusError(provider, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		return llm.StatusError(provider, reqErr.HTTPStatusCode, msg)
	}
	return llm.TransportError(provider, err)
}
