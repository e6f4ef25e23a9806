package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the FinSight server, worker and CLI.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	DocStore DocStoreConfig
	AI       AIConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port               int    `envconfig:"FINSIGHT_PORT" default:"8080"`
	Env                string `envconfig:"FINSIGHT_ENV" default:"development"`
	MaxUploadBytes     int64  `envconfig:"MAX_UPLOAD_BYTES" default:"20971520"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
}

type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"5m"`
	MigrationsDir   string        `envconfig:"MIGRATIONS_DIR" default:"migrations"`
}

type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`
}

type QueueConfig struct {
	Name          string        `envconfig:"QUEUE_NAME" default:"finsight:queue"`
	WorkerID      string        `envconfig:"WORKER_ID"`
	Concurrency   int           `envconfig:"WORKER_CONCURRENCY" default:"2"`
	JobTimeout    time.Duration `envconfig:"JOB_TIMEOUT" default:"30m"`
	StaleAfter    time.Duration `envconfig:"JOB_STALE_AFTER" default:"30m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	ProgressTTL   time.Duration `envconfig:"PROGRESS_TTL" default:"1h"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:":9091"`
}

type DocStoreConfig struct {
	Backend string `envconfig:"DOCSTORE_BACKEND" default:"local"`
	Dir     string `envconfig:"DOCSTORE_DIR" default:"data"`
	Minio   MinioConfig
}

type MinioConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"finsight-uploads"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type AIConfig struct {
	Provider         string        `envconfig:"AI_PROVIDER"`
	InferenceTimeout time.Duration `envconfig:"AI_INFERENCE_TIMEOUT" default:"60s"`
	Temperature      float64       `envconfig:"AI_TEMPERATURE" default:"0.1"`
	MaxTokens        int           `envconfig:"AI_MAX_TOKENS" default:"4096"`
	Gemini           GeminiConfig
	OpenAI           OpenAIConfig
	VLLM             VLLMConfig
	Anthropic        AnthropicConfig
	Ollama           OllamaConfig
}

type GeminiConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	Model   string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	BaseURL string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	BaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
}

// VLLMConfig points at an OpenAI-compatible vLLM server.
type VLLMConfig struct {
	BaseURL string `envconfig:"VLLM_BASE_URL" default:"http://localhost:8000/v1"`
	Model   string `envconfig:"VLLM_MODEL"`
}

type AnthropicConfig struct {
	APIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	Model   string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5-20250929"`
	BaseURL string `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`
}

type OllamaConfig struct {
	BaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	Model   string `envconfig:"OLLAMA_MODEL" default:"llama3"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

var validProviders = map[string]bool{
	"gemini":    true,
	"openai":    true,
	"vllm":      true,
	"anthropic": true,
	"ollama":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads configuration but validates only the database settings.
// Used by admin tooling that never talks to Redis or a model provider.
func LoadDatabase() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Queue.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.Queue.WorkerID = host
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Queue.Concurrency)
	}

	switch c.DocStore.Backend {
	case "local":
		if c.DocStore.Dir == "" {
			return fmt.Errorf("DOCSTORE_DIR is required when DOCSTORE_BACKEND is local")
		}
	case "minio":
		if c.DocStore.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when DOCSTORE_BACKEND is minio")
		}
		if c.DocStore.Minio.AccessKey == "" || c.DocStore.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when DOCSTORE_BACKEND is minio")
		}
	default:
		return fmt.Errorf("DOCSTORE_BACKEND must be one of local, minio; got %q", c.DocStore.Backend)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of gemini, openai, vllm, anthropic, ollama; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	for name, u := range map[string]string{
		"GEMINI_BASE_URL":    c.AI.Gemini.BaseURL,
		"OPENAI_BASE_URL":    c.AI.OpenAI.BaseURL,
		"VLLM_BASE_URL":      c.AI.VLLM.BaseURL,
		"ANTHROPIC_BASE_URL": c.AI.Anthropic.BaseURL,
		"OLLAMA_BASE_URL":    c.AI.Ollama.BaseURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT must be positive")
	}

	return nil
}
