package app

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

type Config struct {
	APIBaseURL     string        // Storefront and identity API base URL (default: http://localhost:8080)
	Storage        string        // Durable storage backend: memory, sqlite, redis (default: sqlite)
	DatabaseFile   string        // SQLite file for the sqlite backend (default: ./brewhouse.db)
	RedisAddr      string        // Redis address for the redis backend (default: localhost:6379)
	RedisPassword  string        // Optional: Redis password
	RedisPrefix    string        // Optional: key prefix, one per storefront profile
	MasterKey      string        // Optional: key material for encrypting stored values
	MasterKeyFile  string        // Optional: file holding the master key (wins over MasterKey)
	RequestTimeout time.Duration // Per-request timeout against the API (default: 10s)

	OTLPEndpoint string // Optional: OTLP gRPC collector, tracing is off without it
	OTLPInsecure bool   // Plaintext connection to the collector (default: false)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)

	// Identity stub only.
	Port                int           // HTTP server port (default: 8080)
	StubSecret          string        // Optional: HS256 key, random per start when empty
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when one exists.
func LoadConfig() Config {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	return Config{
		APIBaseURL:     getEnvOrDefault("BREWHOUSE_API_BASE_URL", "http://localhost:8080"),
		Storage:        getEnvOrDefault("BREWHOUSE_STORAGE", StorageSQLite),
		DatabaseFile:   getEnvOrDefault("BREWHOUSE_DATABASE_FILE", "brewhouse.db"),
		RedisAddr:      getEnvOrDefault("BREWHOUSE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("BREWHOUSE_REDIS_PASSWORD"),
		RedisPrefix:    os.Getenv("BREWHOUSE_REDIS_PREFIX"),
		MasterKey:      os.Getenv("BREWHOUSE_MASTER_KEY"),
		MasterKeyFile:  os.Getenv("BREWHOUSE_MASTER_KEY_FILE"),
		RequestTimeout: getEnvDurationOrDefault("BREWHOUSE_REQUEST_TIMEOUT", 10*time.Second),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure: getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		Port:                getEnvIntOrDefault("PORT", 8080),
		StubSecret:          os.Getenv("BREWHOUSE_STUB_SECRET"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// ParseFlags applies the global command-line overrides to cfg and returns the
// remaining arguments (the command and its own flags).
func ParseFlags(cfg *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("brewhouse", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "storefront API base URL")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "durable storage backend (memory, sqlite, redis)")
	fs.StringVar(&cfg.DatabaseFile, "db", cfg.DatabaseFile, "SQLite file for the sqlite backend")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
