// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (LORE_* prefix, runtime override)
//  2. Config file (~/.lore/config.yaml)
//  3. Default values (mirror the reference deployment: local Ollama,
//     nomic-embed-text embeddings, 800/100 chunking, top-3 retrieval)
//
// Validation uses sentinel errors so callers can check failure kinds with
// errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidModelName indicates the chat model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidContextBudget indicates the prompt context budget is invalid.
	ErrInvalidContextBudget = errors.New("invalid max_context_chars")

	// ErrInvalidTimeout indicates the provider timeout is invalid.
	ErrInvalidTimeout = errors.New("invalid provider_timeout")

	// ErrInvalidDataDir indicates the store directory path is invalid.
	ErrInvalidDataDir = errors.New("invalid data_dir")
)

// Defaults for the knowledge pipeline. These match the reference setup the
// system was modeled on: a local Ollama server with qwen2.5-coder:3b for
// generation and nomic-embed-text for embeddings.
const (
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultChatModel       = "qwen2.5-coder:3b"
	DefaultEmbedderModel   = "nomic-embed-text"
	DefaultTemperature     = 0.3
	DefaultKeepAlive       = "5m"
	DefaultChunkSize       = 800
	DefaultChunkOverlap    = 100
	DefaultTopK            = 3
	DefaultMaxContextChars = 6000
	DefaultTimeout         = 120 * time.Second
	DefaultMaxRetries      = 2
)

// Config stores application configuration.
type Config struct {
	// Ollama provider configuration.
	OllamaHost    string  `mapstructure:"ollama_host"`
	ChatModel     string  `mapstructure:"chat_model"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature"`
	// KeepAlive is the session-affinity hint forwarded to the model server
	// ("keep the model warm for this long after the call").
	KeepAlive       string        `mapstructure:"keep_alive"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`

	// Knowledge store configuration.
	DataDir string `mapstructure:"data_dir"`

	// Retrieval configuration.
	ChunkSize       int `mapstructure:"chunk_size"`
	ChunkOverlap    int `mapstructure:"chunk_overlap"`
	TopK            int `mapstructure:"top_k"`
	MaxContextChars int `mapstructure:"max_context_chars"`

	// Logging configuration.
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Observability configuration (disabled unless endpoint is set).
	Otel OtelConfig `mapstructure:"otel"`
}

// OtelConfig configures the optional OTLP trace exporter.
type OtelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lore")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("ollama_host", DefaultOllamaHost)
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("keep_alive", DefaultKeepAlive)
	v.SetDefault("provider_timeout", DefaultTimeout)
	v.SetDefault("max_retries", DefaultMaxRetries)

	v.SetDefault("data_dir", filepath.Join(configDir, "store"))

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("max_context_chars", DefaultMaxContextChars)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4318")
	v.SetDefault("otel.service_name", "lore")
	v.SetDefault("otel.environment", "dev")
}

func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("LORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
