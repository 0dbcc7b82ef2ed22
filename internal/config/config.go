package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Port    string `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	// Completion provider
	LLMProvider     string        `yaml:"llm_provider"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`

	// Client-side throttling; zero disables it.
	LLMRequestsPerSecond float64 `yaml:"llm_requests_per_second"`
	LLMBurst             int     `yaml:"llm_burst"`

	// Embeddings
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDims  int    `yaml:"embedding_dims"`

	// Prompt budget and relevance filtering
	Ceiling           int     `yaml:"ceiling"`
	BatchFraction     float64 `yaml:"batch_fraction"`
	FilterConcurrency int     `yaml:"filter_concurrency"`
	AnswerMaxTokens   int     `yaml:"answer_max_tokens"`

	// Corpus jobs
	SummarizeConcurrency int `yaml:"summarize_concurrency"`
	EmbedConcurrency     int `yaml:"embed_concurrency"`
	ProjectConcurrency   int `yaml:"project_concurrency"`

	// Rate-limit retry
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`

	// Similarity search
	SearchCandidates int `yaml:"search_candidates"`
	SearchLimit      int `yaml:"search_limit"`

	// Optional Qdrant index; empty host keeps search in SQLite.
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       string `yaml:"qdrant_port"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// LLM latency stats window
	StatsWindow time.Duration `yaml:"stats_window"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:    "8090",
		DataDir: "data",

		LLMProvider:    ProviderOpenAI,
		OpenAIModel:    "gpt-4o-mini",
		AnthropicModel: "claude-sonnet-4-5-20250929",
		LLMTimeout:     120 * time.Second,

		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDims:  256,

		Ceiling:           16000,
		BatchFraction:     0.25,
		FilterConcurrency: 5,
		AnswerMaxTokens:   1000,

		SummarizeConcurrency: 50,
		EmbedConcurrency:     10,
		ProjectConcurrency:   20,

		RetryAttempts:     6,
		RetryInitialDelay: time.Second,

		SearchCandidates: 100,
		SearchLimit:      20,

		QdrantPort:       "6334",
		QdrantCollection: "conversations",

		WorkerCount:  2,
		MaxQueueSize: 100,

		JobTTL:      1 * time.Hour,
		StatsWindow: 15 * time.Minute,

		MaxUploadBytes: 52428800, // 50MB

		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, then environment variables (including a .env file in the
// working directory). Later sources win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.DataDir = envOr("DATA_DIR", cfg.DataDir)

	cfg.LLMProvider = envOr("LLM_PROVIDER", cfg.LLMProvider)
	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOr("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.LLMTimeout = envDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.LLMRequestsPerSecond = envFloat("LLM_REQUESTS_PER_SECOND", cfg.LLMRequestsPerSecond)
	cfg.LLMBurst = envInt("LLM_BURST", cfg.LLMBurst)

	cfg.EmbeddingModel = envOr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDims = envInt("EMBEDDING_DIMS", cfg.EmbeddingDims)

	cfg.Ceiling = envInt("TOKEN_CEILING", cfg.Ceiling)
	cfg.BatchFraction = envFloat("BATCH_FRACTION", cfg.BatchFraction)
	cfg.FilterConcurrency = envInt("FILTER_CONCURRENCY", cfg.FilterConcurrency)
	cfg.AnswerMaxTokens = envInt("ANSWER_MAX_TOKENS", cfg.AnswerMaxTokens)

	cfg.SummarizeConcurrency = envInt("SUMMARIZE_CONCURRENCY", cfg.SummarizeConcurrency)
	cfg.EmbedConcurrency = envInt("EMBED_CONCURRENCY", cfg.EmbedConcurrency)
	cfg.ProjectConcurrency = envInt("PROJECT_CONCURRENCY", cfg.ProjectConcurrency)

	cfg.RetryAttempts = envInt("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryInitialDelay = envDuration("RETRY_INITIAL_DELAY", cfg.RetryInitialDelay)

	cfg.SearchCandidates = envInt("SEARCH_CANDIDATES", cfg.SearchCandidates)
	cfg.SearchLimit = envInt("SEARCH_LIMIT", cfg.SearchLimit)

	cfg.QdrantHost = envOr("QDRANT_HOST", cfg.QdrantHost)
	cfg.QdrantPort = envOr("QDRANT_PORT", cfg.QdrantPort)
	cfg.QdrantCollection = envOr("QDRANT_COLLECTION", cfg.QdrantCollection)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)
	cfg.StatsWindow = envDuration("STATS_WINDOW", cfg.StatsWindow)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.applyFloors()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyFloors replaces non-positive tunables with their defaults.
func (c *Config) applyFloors() {
	def := Defaults()
	floorInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	floorDur := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}

	floorInt(&c.EmbeddingDims, def.EmbeddingDims)
	floorInt(&c.Ceiling, def.Ceiling)
	floorInt(&c.FilterConcurrency, def.FilterConcurrency)
	floorInt(&c.AnswerMaxTokens, def.AnswerMaxTokens)
	floorInt(&c.SummarizeConcurrency, def.SummarizeConcurrency)
	floorInt(&c.EmbedConcurrency, def.EmbedConcurrency)
	floorInt(&c.ProjectConcurrency, def.ProjectConcurrency)
	floorInt(&c.RetryAttempts, def.RetryAttempts)
	floorInt(&c.SearchCandidates, def.SearchCandidates)
	floorInt(&c.SearchLimit, def.SearchLimit)
	floorInt(&c.WorkerCount, def.WorkerCount)
	floorInt(&c.MaxQueueSize, def.MaxQueueSize)
	floorDur(&c.LLMTimeout, def.LLMTimeout)
	floorDur(&c.RetryInitialDelay, def.RetryInitialDelay)
	floorDur(&c.JobTTL, def.JobTTL)
	floorDur(&c.StatsWindow, def.StatsWindow)

	if c.BatchFraction <= 0 || c.BatchFraction > 1 {
		c.BatchFraction = def.BatchFraction
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = def.MaxUploadBytes
	}
	if c.LLMBurst <= 0 {
		c.LLMBurst = 1
	}
}

func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	switch c.LLMProvider {
	case ProviderOpenAI:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=%s", ProviderAnthropic)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.SearchLimit > c.SearchCandidates {
		return fmt.Errorf("SEARCH_LIMIT (%d) must not exceed SEARCH_CANDIDATES (%d)", c.SearchLimit, c.SearchCandidates)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
