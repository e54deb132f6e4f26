package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read from the environment, after loading .env when present.
type Config struct {
	Port       string
	APIBaseURL string
	APITimeout time.Duration

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBLogLevel string

	LogLevel  string
	LogFormat string
	Locale    string

	HandoffStride  time.Duration
	SearchDebounce time.Duration
	SearchLimit    int
	StatsPollSpec  string
}

// LoadConfig reads Config, falling back to defaults for unset variables.
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:       getEnv("PORT", "8080"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000"),
		APITimeout: getDuration("API_TIMEOUT", 30*time.Second),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./console.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "broadcast_console"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		Locale:    getEnv("LOCALE", "en"),

		HandoffStride:  getDuration("HANDOFF_STRIDE", time.Second),
		SearchDebounce: getDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
		SearchLimit:    getInt("SEARCH_LIMIT", 10),
		StatsPollSpec:  getEnv("STATS_POLL_SPEC", "@every 1m"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}
