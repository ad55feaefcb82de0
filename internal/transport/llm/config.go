package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Provider defaults applied when the configuration leaves a field empty.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultMaxTokens     = 1024
	DefaultHealthTimeout = 10 * time.Second
)

// WithDefaults fills empty fields of cfg.
func WithDefaults(cfg domain.ProviderConfig) domain.ProviderConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return cfg
}

// Validate rejects configurations a provider of cfg.Kind cannot run with.
func Validate(cfg domain.ProviderConfig) error {
	if cfg.Model == "" {
		return fmt.Errorf("%s: model is required: %w", cfg.Name, domain.ErrProviderUnconfigured)
	}
	if cfg.Kind.IsCloud() && cfg.APIKey == "" {
		return fmt.Errorf("%s: api key is required: %w", cfg.Name, domain.ErrProviderUnconfigured)
	}
	if cfg.Kind == domain.KindOllama && cfg.BaseURL == "" {
		return fmt.Errorf("%s: base url is required: %w", cfg.Name, domain.ErrProviderUnconfigured)
	}
	return nil
}

// Settings guards a provider's mutable configuration.
type Settings struct {
	mu  sync.RWMutex
	cfg domain.ProviderConfig
}

// NewSettings validates cfg and stores it with defaults applied.
func NewSettings(cfg domain.ProviderConfig) (*Settings, error) {
	cfg = WithDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Settings{cfg: cfg}, nil
}

// Get returns a snapshot of the configuration.
func (s *Settings) Get() domain.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace validates and swaps the configuration. Name and Kind cannot change.
func (s *Settings) Replace(cfg domain.ProviderConfig) (domain.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Name = s.cfg.Name
	cfg.Kind = s.cfg.Kind
	cfg = WithDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return s.cfg, err
	}
	s.cfg = cfg
	return cfg, nil
}

// Resolved is a completion request with provider defaults applied.
type Resolved struct {
	Messages    []domain.Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Resolve merges request overrides with the provider configuration and sanitizes messages.
func Resolve(cfg domain.ProviderConfig, req domain.CompletionRequest) (Resolved, error) {
	msgs := SanitizeMessages(req.Messages, time.Now())
	if len(msgs) == 0 {
		return Resolved{}, fmt.Errorf("%s: no non-empty messages: %w", cfg.Name, domain.ErrInvalidInput)
	}

	r := Resolved{
		Messages:    msgs,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if req.Model != "" {
		r.Model = req.Model
	}
	if req.MaxTokens > 0 {
		r.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		r.Temperature = *req.Temperature
	}
	return r, nil
}
