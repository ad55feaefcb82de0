package archiquery

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs     []string
	password  string
	keyPrefix string

	embedder       Embedder
	ollamaEmbedURL string
	ollamaEmbedMdl string
	dimensions     int

	providers []domain.ProviderConfig

	chunkSize    int
	chunkOverlap int
	topK         int
	threshold    float64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRedis configures the client to connect to a Redis (or Valkey) instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithKeyPrefix namespaces every key the client writes. Default: "archiquery:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithEmbedder sets a custom text embedding provider.
// Without any embedder the client falls back to hash-derived vectors, which only
// match repeated text.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOllamaEmbeddings embeds through a local Ollama daemon.
func WithOllamaEmbeddings(baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.ollamaEmbedURL = baseURL
		c.ollamaEmbedMdl = model
	})
}

// WithVectorDimensions sets the embedding length. Defaults to 384.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithOpenAI adds an OpenAI chat provider. The first provider added is the default;
// later ones serve as fallbacks in the order given.
func WithOpenAI(apiKey, model string) Option {
	return withProvider(domain.KindOpenAI, model, apiKey, "")
}

// WithGemini adds a Google Gemini chat provider.
func WithGemini(apiKey, model string) Option {
	return withProvider(domain.KindGemini, model, apiKey, "")
}

// WithOllama adds a local Ollama chat provider.
func WithOllama(baseURL, model string) Option {
	return withProvider(domain.KindOllama, model, "", baseURL)
}

func withProvider(kind domain.ProviderKind, model, apiKey, baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.providers = append(c.providers, domain.ProviderConfig{
			Name:       string(kind),
			Kind:       kind,
			Model:      model,
			APIKey:     apiKey,
			BaseURL:    baseURL,
			MaxTokens:  1024,
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		})
	})
}

// WithChunking sets the chunk size and overlap in characters. Defaults: 1000 and 200.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	})
}

// WithRetrieval sets the default number of chunks per question and their minimum
// cosine similarity. Defaults: 5 and 0.5.
func WithRetrieval(topK int, threshold float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = topK
		c.threshold = threshold
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
