package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        string
	Environment string
	Debug       bool

	// Meta webhook
	VerifyToken string
	AppSecret   string
	GraphAPIURL string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string

	SmartAIRateLimit  int
	SmartAIRateWindow time.Duration
	ChatHistoryWindow int
	BranchMode        string

	TrackingQueueSize int
	TrackingWorkers   int
	EventTimeout      time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file loaded, using process environment")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),
		Debug:       getEnvBool("DEBUG", false),

		VerifyToken: getEnv("VERIFY_TOKEN", ""),
		AppSecret:   getEnv("APP_SECRET", ""),
		GraphAPIURL: getEnv("GRAPH_API_URL", "https://graph.facebook.com/v21.0"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./instaflow.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "instaflow"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),

		SmartAIRateLimit:  getEnvInt("SMARTAI_RATE_LIMIT", 5),
		SmartAIRateWindow: getEnvDuration("SMARTAI_RATE_WINDOW", time.Minute),
		ChatHistoryWindow: getEnvInt("CHAT_HISTORY_WINDOW", 10),
		BranchMode:        getEnv("FLOW_BRANCH_MODE", "next"),

		TrackingQueueSize: getEnvInt("TRACKING_QUEUE_SIZE", 1024),
		TrackingWorkers:   getEnvInt("TRACKING_WORKERS", 2),
		EventTimeout:      getEnvDuration("EVENT_TIMEOUT", 60*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return d
}
