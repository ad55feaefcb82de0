package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the archiquery configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis/Valkey connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ChunkingConfig holds text splitting settings, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds the embedding router settings.
type EmbeddingConfig struct {
	Dimensions          int                                `yaml:"dimensions"`
	Model               string                             `yaml:"model"`
	FallbackModel       string                             `yaml:"fallback_model"`
	FallbackAttempts    int                                `yaml:"fallback_attempts"`
	QueryInstruction    string                             `yaml:"query_instruction"`
	DocumentInstruction string                             `yaml:"document_instruction"`
	Providers           map[string]EmbeddingProviderConfig `yaml:"providers"`
	Cache               EmbeddingCacheConfig               `yaml:"cache"`
}

// EmbeddingProviderConfig describes one embedding model backend. The map key is the model ID
// the router addresses it by.
type EmbeddingProviderConfig struct {
	Type    string `yaml:"type"` // openai, ollama
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EmbeddingCacheConfig holds the in-process and durable embedding cache settings.
type EmbeddingCacheConfig struct {
	Size          int  `yaml:"size"`
	TTLSec        int  `yaml:"ttl_sec"`
	Durable       bool `yaml:"durable"`
	DurableTTLSec int  `yaml:"durable_ttl_sec"`
}

// LLMConfig holds chat provider settings.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	FallbackOrder   []string                     `yaml:"fallback_order"`
	AutoFallback    *bool                        `yaml:"auto_fallback"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// AutoFallbackEnabled reports the auto_fallback flag, true when unset.
func (c LLMConfig) AutoFallbackEnabled() bool {
	return c.AutoFallback == nil || *c.AutoFallback
}

// LLMProviderConfig holds one chat provider's settings.
type LLMProviderConfig struct {
	Type              string       `yaml:"type"` // openai, gemini, ollama
	Model             string       `yaml:"model"`
	APIKey            string       `yaml:"api_key"`
	BaseURL           string       `yaml:"base_url"`
	MaxTokens         int          `yaml:"max_tokens"`
	Temperature       float64      `yaml:"temperature"`
	TimeoutMs         int          `yaml:"timeout_ms"`
	MaxRetries        int          `yaml:"max_retries"`
	RequestsPerSecond float64      `yaml:"requests_per_second"` // 0 = unlimited
	Budget            BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// RAGConfig holds retrieval defaults.
type RAGConfig struct {
	TopK                int      `yaml:"top_k"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	MaxContextTokens    int      `yaml:"max_context_tokens"`
	NoResultsMessage    string   `yaml:"no_results_message"`
}

// Threshold returns similarity_threshold, 0.5 when unset.
func (c RAGConfig) Threshold() float64 {
	if c.SimilarityThreshold == nil {
		return 0.5
	}
	return *c.SimilarityThreshold
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// streaming answers can take a while
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "archiquery:"
	}

	// overlap 0 is a valid choice once size is set explicitly
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
		if c.Chunking.Overlap <= 0 {
			c.Chunking.Overlap = 200
		}
	}

	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.FallbackAttempts <= 0 {
		c.Embedding.FallbackAttempts = 2
	}
	if c.Embedding.Cache.Size <= 0 {
		c.Embedding.Cache.Size = 1000
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 3600
	}
	if c.Embedding.Cache.DurableTTLSec <= 0 {
		c.Embedding.Cache.DurableTTLSec = 7 * 24 * 3600
	}

	for name, p := range c.LLM.Providers {
		if p.MaxTokens <= 0 {
			p.MaxTokens = 1024
		}
		if p.TimeoutMs <= 0 {
			p.TimeoutMs = 30000
		}
		if p.MaxRetries <= 0 {
			p.MaxRetries = 3
		}
		c.LLM.Providers[name] = p
	}

	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.SimilarityThreshold == nil {
		t := c.RAG.Threshold()
		c.RAG.SimilarityThreshold = &t
	}
	if c.RAG.MaxContextTokens <= 0 {
		c.RAG.MaxContextTokens = 3000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if t := c.RAG.Threshold(); t < -1 || t > 1 {
		return fmt.Errorf("rag.similarity_threshold must be between -1 and 1, got %g", t)
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}
	return c.validateLLM()
}

func (c *Config) validateEmbedding() error {
	for name, p := range c.Embedding.Providers {
		switch p.Type {
		case "openai", "ollama":
		default:
			return fmt.Errorf("embedding.providers.%s.type must be \"openai\" or \"ollama\", got %q", name, p.Type)
		}
	}
	if c.Embedding.Model != "" {
		if _, ok := c.Embedding.Providers[c.Embedding.Model]; !ok {
			return fmt.Errorf("embedding.model %q is not listed in embedding.providers", c.Embedding.Model)
		}
	}
	if c.Embedding.FallbackModel != "" {
		if _, ok := c.Embedding.Providers[c.Embedding.FallbackModel]; !ok {
			return fmt.Errorf("embedding.fallback_model %q is not listed in embedding.providers",
				c.Embedding.FallbackModel)
		}
	}
	return nil
}

func (c *Config) validateLLM() error {
	for name, p := range c.LLM.Providers {
		switch p.Type {
		case "openai", "gemini", "ollama":
		default:
			return fmt.Errorf(
				"llm.providers.%s.type must be \"openai\", \"gemini\" or \"ollama\", got %q", name, p.Type,
			)
		}
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"llm.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("llm.default_provider %q is not listed in llm.providers", c.LLM.DefaultProvider)
		}
	}
	for _, name := range c.LLM.FallbackOrder {
		if _, ok := c.LLM.Providers[name]; !ok {
			return fmt.Errorf("llm.fallback_order references unknown provider %q", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
