package domain

import (
	"context"
	"time"
)

// Role of a chat message author.
type Role string

// Chat roles understood by every provider.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletionRequest is the provider-neutral completion input.
// Zero values for Model, MaxTokens and Temperature mean "use the provider default".
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Usage reports token consumption of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the provider-neutral completion output.
type CompletionResponse struct {
	Content      string
	Model        string
	Usage        *Usage
	FinishReason string
}

// StreamChunk is one streamed fragment. Exactly one chunk per stream has Done set.
type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// ProviderKind enumerates the supported backend variants.
type ProviderKind string

const (
	// KindOpenAI is an OpenAI-compatible cloud API.
	KindOpenAI ProviderKind = "openai"
	// KindGemini is the Google Gemini API.
	KindGemini ProviderKind = "gemini"
	// KindOllama is a local Ollama daemon.
	KindOllama ProviderKind = "ollama"
)

// IsCloud reports whether the variant authenticates with an API key.
func (k ProviderKind) IsCloud() bool {
	return k == KindOpenAI || k == KindGemini
}

// ProviderConfig holds per-provider settings. One instance per provider name.
type ProviderConfig struct {
	Name              string
	Kind              ProviderKind
	Model             string
	APIKey            string
	BaseURL           string
	MaxTokens         int
	Temperature       float64
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// ProviderState is the advisory state of a provider instance.
type ProviderState string

const (
	// StateReady means the last health check passed (or none ran yet).
	StateReady ProviderState = "ready"
	// StateDegraded means the last health check failed.
	StateDegraded ProviderState = "degraded"
)

// ProviderStatus is the outcome of a health check.
type ProviderStatus struct {
	Provider      string    `json:"provider"`
	Model         string    `json:"model,omitempty"`
	Available     bool      `json:"available"`
	LatencyMs     int64     `json:"latency_ms,omitempty"`
	Error         string    `json:"error,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Provider is the uniform interface over LLM backends.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// StreamComplete calls onChunk zero or more times with content, then exactly once with Done set,
	// whether the stream ends normally or with an error.
	StreamComplete(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) error
	// HealthCheck never fails; errors are reported through the status.
	HealthCheck(ctx context.Context) ProviderStatus
}

// Reconfigurable providers accept new settings at runtime.
type Reconfigurable interface {
	Reconfigure(cfg ProviderConfig) error
}
