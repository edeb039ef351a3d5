package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/generator"
)

// MinKeyLength is the shortest credential accepted by the pre-flight check.
const MinKeyLength = 8

type Config struct {
	// Catalog
	PipelineConfigPath string
	Timezone           string
	Location           *time.Location

	// Digest output
	DigestStore      string // file | postgres | sqlite | redis
	DigestPath       string
	DatabaseURL      string
	SQLitePath       string
	RedisURL         string
	SiteDir          string
	PublicURLPattern string
	ExecutionLogPath string

	// Generative providers
	GeminiAPIKey     string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	DeepSeekAPIKey   string
	DeepSeekBaseURL  string
	OllamaModel      string
	MaxAIRequests    int // per run, 0 = unlimited
	AIRequestTimeout time.Duration

	// Notifications
	TelegramToken          string
	TelegramChatID         string
	SlackWebhookURL        string
	LineChannelAccessToken string
	LineNotifyUserID       string
	DiscordWebhookURL      string

	// App settings
	MonitoringPort string
	Debug          bool
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PipelineConfigPath: getEnvOrDefault("PIPELINE_CONFIG", "configs/pipeline.yaml"),
		Timezone:           getEnvOrDefault("DIGEST_TIMEZONE", "Asia/Taipei"),
		DigestStore:        getEnvOrDefault("DIGEST_STORE", digest.BackendFile),
		DigestPath:         getEnvOrDefault("DIGEST_PATH", "latest.json"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnvOrDefault("SQLITE_PATH", "technews.db"),
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		SiteDir:            getEnvOrDefault("SITE_DIR", "site"),
		PublicURLPattern:   getEnvOrDefault("PUBLIC_URL_PATTERN", "https://deusflow.github.io/technews/{date}.html"),
		ExecutionLogPath:   getEnvOrDefault("EXECUTION_LOG_PATH", "execution_log.json"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		DeepSeekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL:  os.Getenv("DEEPSEEK_BASE_URL"),
		OllamaModel:      getEnvOrDefault("OLLAMA_MODEL", "qwen2.5:7b"),
		MaxAIRequests:    getEnvIntOrDefault("MAX_AI_REQUESTS", 0),
		AIRequestTimeout: getEnvDurationOrDefault("AI_REQUEST_TIMEOUT", generator.DefaultTimeout),

		TelegramToken:          os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:         os.Getenv("TELEGRAM_CHAT_ID"),
		SlackWebhookURL:        os.Getenv("SLACK_WEBHOOK_URL"),
		LineChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LineNotifyUserID:       os.Getenv("LINE_NOTIFY_USER_ID"),
		DiscordWebhookURL:      os.Getenv("DISCORD_WEBHOOK_URL"),

		MonitoringPort: getEnvOrDefault("MONITORING_PORT", "8080"),
		Debug:          os.Getenv("DEBUG") == "true",
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("DIGEST_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// StoreTarget returns the path, DSN or URL for the configured digest store.
func (c *Config) StoreTarget() string {
	switch c.DigestStore {
	case digest.BackendPostgres:
		return c.DatabaseURL
	case digest.BackendSQLite:
		return c.SQLitePath
	case digest.BackendRedis:
		return c.RedisURL
	}
	return c.DigestPath
}

// APIKey returns the credential for a provider. Ollama needs none.
func (c *Config) APIKey(provider string) (string, bool) {
	switch provider {
	case generator.ProviderGemini:
		return c.GeminiAPIKey, true
	case generator.ProviderOpenAI:
		return c.OpenAIAPIKey, true
	case generator.ProviderDeepSeek:
		return c.DeepSeekAPIKey, true
	}
	return "", false
}

// Validate is the pre-flight check: every provider in use needs a
// credential of at least MinKeyLength characters.
func (c *Config) Validate(providers []string) error {
	var problems []string
	for _, p := range providers {
		if p == generator.ProviderOllama {
			if c.OllamaModel == "" {
				problems = append(problems, "OLLAMA_MODEL is required")
			}
			continue
		}
		key, known := c.APIKey(p)
		if !known {
			problems = append(problems, fmt.Sprintf("unknown provider %q", p))
			continue
		}
		env := strings.ToUpper(p) + "_API_KEY"
		switch {
		case key == "":
			problems = append(problems, env+" is required")
		case len(strings.TrimSpace(key)) < MinKeyLength:
			problems = append(problems, fmt.Sprintf("%s is shorter than %d characters", env, MinKeyLength))
		}
	}

	switch c.DigestStore {
	case digest.BackendFile, digest.BackendSQLite, digest.BackendRedis:
	case digest.BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres digest store")
		}
	default:
		problems = append(problems, fmt.Sprintf("DIGEST_STORE %q is not one of file, postgres, sqlite, redis", c.DigestStore))
	}

	if !strings.Contains(c.PublicURLPattern, "{date}") {
		problems = append(problems, "PUBLIC_URL_PATTERN must contain {date}")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
