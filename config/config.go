package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

const (
	DEFAULT_API_BASE_URL      = "https://ecbk.onrender.com"
	DEFAULT_ADMIN_CLIENT_CODE = "0000000000"
	DEFAULT_APP_PORT          = "8080"
	DEFAULT_LOG_DIR           = "./logging/logs"
	DEFAULT_SESSION_IDLE_TTL  = 24 * time.Hour
)

type Config struct {
	AppEnv   string
	AppPort  string
	LogLevel string
	LogDir   string

	ApiBaseURL      string
	AdminClientCode string
	CacheAllUsers   bool

	Session SessionConfig
	Cors    CorsConfig
}

type SessionConfig struct {
	Secret  string
	Secure  bool
	Storage string // inmemory, mysql or postgres
	DSN     string
	// IdleTTL is how long an untouched session record is kept. Zero
	// disables purging.
	IdleTTL time.Duration
}

type CorsConfig struct {
	AllowedOrigins []string
}

// Load reads the optional .env file and then the process environment.
// A missing .env file is not an error.
func Load() *Config {
	_ = gotenv.Load()

	return &Config{
		AppEnv:   strings.ToLower(getEnv("APP_ENV", "development")),
		AppPort:  getEnv("APP_PORT", DEFAULT_APP_PORT),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		LogDir:   getEnv("LOG_DIR", DEFAULT_LOG_DIR),

		ApiBaseURL:      strings.TrimRight(getEnv("API_BASE_URL", DEFAULT_API_BASE_URL), "/"),
		AdminClientCode: getEnv("ADMIN_CLIENT_CODE", DEFAULT_ADMIN_CLIENT_CODE),
		CacheAllUsers:   getBool("CACHE_ALL_USERS", true),

		Session: SessionConfig{
			Secret:  getEnv("SESSION_SECRET", "dev-insecure-secret-change-me-now"),
			Secure:  os.Getenv("APP_HTTPS") == "1",
			Storage: strings.ToLower(getEnv("SESSION_STORAGE", "inmemory")),
			DSN:     os.Getenv("DB_DSN"),
			IdleTTL: getDuration("SESSION_IDLE_TTL", DEFAULT_SESSION_IDLE_TTL),
		},
		Cors: CorsConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}

func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
