package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
)

// DefaultEngine is the engine preselected before the catalog is known.
const DefaultEngine = "text-curie-001"

type Config struct {
	// LLM settings
	LLMProvider      LLMProvider   `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL"`
	YandexOAuthToken string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string        `env:"YANDEX_FOLDER_ID"`
	DefaultEngine    string        `env:"DEFAULT_ENGINE" envDefault:"text-curie-001"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Storage
	StoreBackend    StoreBackend `env:"STORE_BACKEND" envDefault:"file"`
	StoreFilePath   string       `env:"STORE_FILE_PATH" envDefault:"data/store.json"`
	StoreQuotaBytes int          `env:"STORE_QUOTA_BYTES" envDefault:"5242880"`
	DatabaseURL     string       `env:"DATABASE_URL"`
	HistoryKey      string       `env:"HISTORY_KEY" envDefault:"responses"`
	JournalFilePath string       `env:"JOURNAL_FILE_PATH" envDefault:"logs/interactions.jsonl"`

	// Observability
	TraceStdout     bool          `env:"TRACE_STDOUT" envDefault:"false"`
	MetricsStdout   bool          `env:"METRICS_STDOUT" envDefault:"false"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"60s"`

	// Reports
	ReportSchedule string `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Web
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Telegram
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID      int64   `env:"ADMIN_USER"`
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderYandex:
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLMProvider)
	}
	switch c.StoreBackend {
	case StoreFile, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	if c.StoreQuotaBytes < 0 {
		return fmt.Errorf("STORE_QUOTA_BYTES must not be negative")
	}
	if c.HistoryKey == "" {
		return fmt.Errorf("HISTORY_KEY must not be empty")
	}
	return nil
}
