package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderOllama = "ollama"

	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// maxBackoff is the longest wait between two provider attempts.
const maxBackoff = 8 * time.Second

type Config struct {
	APIKey  string `env:"OPENAI_API_KEY,required,notEmpty"`
	BaseURL string `env:"OPENAI_BASE_URL"`

	ReferenceDoc string `env:"REFERENCE_DOC" envDefault:"manual.pdf"`
	IndexDir     string `env:"INDEX_DIR" envDefault:"faiss_index"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":5000"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	ChatModel   string  `env:"CHAT_MODEL" envDefault:"gpt-4"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.7"`

	EmbeddingProvider string `env:"EMBEDDING_PROVIDER" envDefault:"openai"`
	EmbeddingModel    string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-ada-002"`
	OllamaURL         string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`

	ChunkSize         int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap      int `env:"CHUNK_OVERLAP" envDefault:"100"`
	TopK              int `env:"TOP_K" envDefault:"10"`
	IngestConcurrency int `env:"INGEST_CONCURRENCY" envDefault:"4"`

	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMMaxRetries int           `env:"LLM_MAX_RETRIES" envDefault:"3"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	TraceExporter string `env:"TRACE_EXPORTER" envDefault:"none"`
}

// RequestTimeout bounds one question: the query embedding and the chat
// completion, each with all of its attempts and backoff waits.
func (c *Config) RequestTimeout() time.Duration {
	perCall := time.Duration(c.LLMMaxRetries+1)*c.LLMTimeout + time.Duration(c.LLMMaxRetries)*maxBackoff
	return 2 * perCall
}

// Load reads an optional .env file from the working directory and then
// parses the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, describe(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, describe(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if c.IngestConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_CONCURRENCY must be positive, got %d", c.IngestConcurrency))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLMTimeout))
	}
	if c.LLMMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES must not be negative, got %d", c.LLMMaxRetries))
	}
	switch strings.ToLower(c.EmbeddingProvider) {
	case EmbeddingProviderOpenAI, EmbeddingProviderOllama:
		c.EmbeddingProvider = strings.ToLower(c.EmbeddingProvider)
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}
	switch strings.ToLower(c.TraceExporter) {
	case TraceExporterNone, TraceExporterStdout:
		c.TraceExporter = strings.ToLower(c.TraceExporter)
	default:
		errs = append(errs, fmt.Errorf("unknown TRACE_EXPORTER %q", c.TraceExporter))
	}
	if strings.TrimSpace(c.ReferenceDoc) == "" {
		errs = append(errs, errors.New("REFERENCE_DOC is required"))
	}
	if strings.TrimSpace(c.IndexDir) == "" {
		errs = append(errs, errors.New("INDEX_DIR is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// describe turns the library's missing-variable errors into a startup
// diagnostic that names the credential.
func describe(err error) error {
	if errors.Is(err, env.EnvVarIsNotSetError{}) || errors.Is(err, env.EmptyEnvVarError{}) {
		return fmt.Errorf("missing credential: set OPENAI_API_KEY in the environment or .env file: %w", err)
	}
	return fmt.Errorf("parse environment: %w", err)
}
