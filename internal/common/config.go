package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Database    DatabaseConfig  `toml:"database"`
	Logging     LoggingConfig   `toml:"logging"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	LLM         LLMConfig       `toml:"llm"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Ollama      OllamaConfig    `toml:"ollama"`
	Search      SearchConfig    `toml:"search"`
	Chat        ChatConfig      `toml:"chat"`
	Security    SecurityConfig  `toml:"security"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL              string `toml:"url"` // full DSN; overrides individual fields when set
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Name             string `toml:"name"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	SSLMode          string `toml:"ssl_mode"`
	MaxConns         int    `toml:"max_conns"`
	MigrateOnStart   bool   `toml:"migrate_on_start"`
	StatementTimeout string `toml:"statement_timeout"` // e.g. "30s"
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// ScraperConfig controls the IMS HTTP session.
type ScraperConfig struct {
	LoginTimeout      time.Duration `toml:"login_timeout"`      // HTTP login timeout
	NavigationTimeout time.Duration `toml:"navigation_timeout"` // page fetch timeout
	SelectorTimeout   time.Duration `toml:"selector_timeout"`   // browser selector wait
	RequestsPerSecond float64       `toml:"requests_per_second"` // rate limit toward IMS
	UserAgent         string        `toml:"user_agent"`
	BrowserFallback   bool          `toml:"browser_fallback"` // chromedp login when HTTP login fails
	SessionMaxAge     time.Duration `toml:"session_max_age"`  // reuse window before forced re-login
	MaxSearchPages    int           `toml:"max_search_pages"` // hard page cap per search
	DetailConcurrency int           `toml:"detail_concurrency"`
}

// CrawlerConfig controls job orchestration.
type CrawlerConfig struct {
	QueryCacheHours     int    `toml:"query_cache_hours"`     // completed-job reuse TTL
	CacheCleanupEnabled bool   `toml:"cache_cleanup_enabled"` // scheduled expired-job sweep
	CacheCleanupCron    string `toml:"cache_cleanup_cron"`    // cron schedule for the sweep
	DefaultMaxIssues    int    `toml:"default_max_issues"`
	IncludeAttachments  bool   `toml:"include_attachments"`
	IncludeRelated      bool   `toml:"include_related"`
}

// EmbeddingConfig selects and sizes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // "ollama" or "gemini"
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	BatchSize  int    `toml:"batch_size"`
}

// LLMConfig selects the chat-completion provider.
type LLMConfig struct {
	Provider string `toml:"provider"` // "ollama", "claude", or "gemini"
}

type ClaudeConfig struct {
	APIKey    string  `toml:"api_key"`
	Model     string  `toml:"model"`
	MaxTokens int     `toml:"max_tokens"`
	Timeout   string  `toml:"timeout"`
	Temp      float64 `toml:"temperature"`
}

type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

type OllamaConfig struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	Timeout        string `toml:"timeout"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	LexicalWeight  float64 `toml:"lexical_weight"`  // BM25 share of the hybrid score
	VectorWeight   float64 `toml:"vector_weight"`   // cosine share of the hybrid score
	ScoreThreshold float64 `toml:"score_threshold"` // drop results below this
	DefaultLimit   int     `toml:"default_limit"`
	CandidateLimit int     `toml:"candidate_limit"` // per-user candidate pool size
}

// ChatConfig bounds issue-scoped RAG conversations.
type ChatConfig struct {
	MaxContextIssues   int `toml:"max_context_issues"`
	MaxHistoryMessages int `toml:"max_history_messages"`
	MaxPromptChars     int `toml:"max_prompt_chars"`
}

// SecurityConfig holds the credential encryption key material.
type SecurityConfig struct {
	EncryptionKey string `toml:"encryption_key"` // passphrase for scrypt key derivation
}

type WebSocketConfig struct {
	Enabled         bool `toml:"enabled"`
	ReadBufferSize  int  `toml:"read_buffer_size"`
	WriteBufferSize int  `toml:"write_buffer_size"`
}

// NewDefaultConfig returns the configuration defaults applied before any
// file or environment override.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Name:           "ims_crawler",
			User:           "ims",
			SSLMode:        "disable",
			MaxConns:       10,
			MigrateOnStart: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Scraper: ScraperConfig{
			LoginTimeout:      10 * time.Second,
			NavigationTimeout: 60 * time.Second,
			SelectorTimeout:   30 * time.Second,
			RequestsPerSecond: 4,
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			BrowserFallback:   true,
			SessionMaxAge:     20 * time.Minute,
			MaxSearchPages:    100,
			DetailConcurrency: 10,
		},
		Crawler: CrawlerConfig{
			QueryCacheHours:     24,
			CacheCleanupEnabled: true,
			CacheCleanupCron:    "0 3 * * *",
			DefaultMaxIssues:    200,
			IncludeAttachments:  true,
			IncludeRelated:      true,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "bge-m3",
			Dimensions: 1024,
			BatchSize:  32,
		},
		LLM: LLMConfig{
			Provider: "ollama",
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
			Timeout:   "120s",
			Temp:      0.3,
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.0-flash",
			Timeout: "120s",
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "qwen2.5:14b",
			EmbeddingModel: "bge-m3",
			Timeout:        "180s",
		},
		Search: SearchConfig{
			LexicalWeight:  0.3,
			VectorWeight:   0.7,
			ScoreThreshold: 0.05,
			DefaultLimit:   20,
			CandidateLimit: 500,
		},
		Chat: ChatConfig{
			MaxContextIssues:   10,
			MaxHistoryMessages: 10,
			MaxPromptChars:     48000,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults, then
// applies environment overrides. A missing file is not an error.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}
	switch c.LLM.Provider {
	case "ollama", "claude", "gemini", "mock":
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	return nil
}

// DSN assembles the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("IMS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("IMS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("IMS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if url := os.Getenv("IMS_DATABASE_URL"); url != "" {
		config.Database.URL = url
	} else if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if password := os.Getenv("IMS_DATABASE_PASSWORD"); password != "" {
		config.Database.Password = password
	}

	if level := os.Getenv("IMS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("IMS_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}

	if timeout := os.Getenv("IMS_CRAWLER_LOGIN_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil && ms > 0 {
			config.Scraper.LoginTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if timeout := os.Getenv("IMS_CRAWLER_NAVIGATION_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil && ms > 0 {
			config.Scraper.NavigationTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if timeout := os.Getenv("IMS_CRAWLER_SELECTOR_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil && ms > 0 {
			config.Scraper.SelectorTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if rps := os.Getenv("IMS_CRAWLER_REQUESTS_PER_SECOND"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil && v > 0 {
			config.Scraper.RequestsPerSecond = v
		}
	}
	if fallback := os.Getenv("IMS_CRAWLER_BROWSER_FALLBACK"); fallback != "" {
		config.Scraper.BrowserFallback = fallback == "true"
	}

	if hours := os.Getenv("IMS_QUERY_CACHE_HOURS"); hours != "" {
		if h, err := strconv.Atoi(hours); err == nil && h >= 0 {
			config.Crawler.QueryCacheHours = h
		}
	}
	if enabled := os.Getenv("IMS_QUERY_CACHE_CLEANUP_ENABLED"); enabled != "" {
		config.Crawler.CacheCleanupEnabled = enabled == "true"
	}

	if provider := os.Getenv("IMS_EMBEDDING_PROVIDER"); provider != "" {
		config.Embedding.Provider = provider
	}
	if model := os.Getenv("IMS_EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}
	if dims := os.Getenv("EMBEDDING_DIMENSIONS"); dims != "" {
		if d, err := strconv.Atoi(dims); err == nil && d > 0 {
			config.Embedding.Dimensions = d
		}
	}

	if provider := os.Getenv("IMS_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("IMS_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("IMS_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Ollama.BaseURL = baseURL
	}
	if model := os.Getenv("IMS_OLLAMA_MODEL"); model != "" {
		config.Ollama.Model = model
	}

	if key := os.Getenv("IMS_ENCRYPTION_KEY"); key != "" {
		config.Security.EncryptionKey = key
	}
}
