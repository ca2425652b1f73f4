package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverSQLite   = "sqlite"
	StoreDriverNone     = "none"

	LLMProviderHTTP      = "http"
	LLMProviderLangChain = "langchain"
)

// Config centraliza la configuración del servicio. Todos los campos son
// opcionales: sin store o sin API key el servicio degrada en lugar de fallar.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver         string `env:"STORE_DRIVER" envDefault:"postgres"`
	StoreTimeoutSeconds int    `env:"STORE_TIMEOUT_SECONDS" envDefault:"5"`
	DatabaseURL         string `env:"DATABASE_URL"`
	DBName              string `env:"DB_NAME" envDefault:"ai_chatroom_db"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	RedisHistoryCap     int    `env:"REDIS_HISTORY_CAP" envDefault:"1000"`
	SQLitePath          string `env:"SQLITE_PATH" envDefault:"ai_chatroom.db"`

	LLMProvider       string `env:"LLM_PROVIDER" envDefault:"http"`
	LLMAPIKey         string `env:"LLM_API_KEY"`
	LLMBaseURL        string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel          string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMMaxTokens      int    `env:"LLM_MAX_TOKENS" envDefault:"800"`
	LLMTimeoutSeconds int    `env:"LLM_TIMEOUT_SECONDS" envDefault:"60"`

	PersonaLanguage   string  `env:"PERSONA_LANGUAGE" envDefault:"中文"`
	HistoryLimit      int     `env:"HISTORY_LIMIT" envDefault:"200"`
	ChatRatePerSecond float64 `env:"CHAT_RATE_PER_SECOND" envDefault:"0"`
	ChatRateBurst     int     `env:"CHAT_RATE_BURST" envDefault:"10"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	return &cfg, nil
}

// StoreConfigured indica si el driver elegido tiene los datos mínimos de conexión.
func (c *Config) StoreConfigured() bool {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		return c.DatabaseURL != ""
	case StoreDriverRedis:
		return c.RedisAddr != ""
	case StoreDriverSQLite:
		return c.SQLitePath != ""
	default:
		return false
	}
}

func (c *Config) StoreTimeout() time.Duration {
	return secondsOr(c.StoreTimeoutSeconds, 5)
}

func (c *Config) LLMTimeout() time.Duration {
	return secondsOr(c.LLMTimeoutSeconds, 60)
}

func secondsOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
