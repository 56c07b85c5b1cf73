package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{
			"BREWHOUSE_API_BASE_URL", "BREWHOUSE_STORAGE", "BREWHOUSE_DATABASE_FILE",
			"BREWHOUSE_REQUEST_TIMEOUT", "OTEL_EXPORTER_OTLP_ENDPOINT", "LOG_LEVEL", "PORT",
		} {
			t.Setenv(key, "")
		}

		cfg := LoadConfig()
		require.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
		require.Equal(t, StorageSQLite, cfg.Storage)
		require.Equal(t, "brewhouse.db", cfg.DatabaseFile)
		require.Equal(t, 10*time.Second, cfg.RequestTimeout)
		require.Equal(t, "warn", cfg.LogLevel)
		require.Equal(t, 8080, cfg.Port)
		require.Empty(t, cfg.OTLPEndpoint)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("BREWHOUSE_API_BASE_URL", "https://shop.example.com")
		t.Setenv("BREWHOUSE_STORAGE", "redis")
		t.Setenv("BREWHOUSE_REQUEST_TIMEOUT", "3")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
		t.Setenv("PORT", "not-a-number")

		cfg := LoadConfig()
		require.Equal(t, "https://shop.example.com", cfg.APIBaseURL)
		require.Equal(t, StorageRedis, cfg.Storage)
		require.Equal(t, 3*time.Second, cfg.RequestTimeout)
		require.True(t, cfg.OTLPInsecure)
		require.Equal(t, 8080, cfg.Port)
	})
}

func TestGetEnvDurationOrDefault(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"15", 15 * time.Second},
		{"soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			require.Equal(t, tt.want, getEnvDurationOrDefault("TEST_DURATION", time.Minute))
		})
	}
}

func TestParseFlags(t *testing.T) {
	cfg := Config{APIBaseURL: "http://localhost:8080", Storage: StorageSQLite}

	rest, err := ParseFlags(&cfg, []string{"-api", "http://127.0.0.1:9000", "-storage", "memory", "login", "-remember"})
	require.NoError(t, err)
	require.Equal(t, []string{"login", "-remember"}, rest)
	require.Equal(t, "http://127.0.0.1:9000", cfg.APIBaseURL)
	require.Equal(t, StorageMemory, cfg.Storage)

	_, err = ParseFlags(&cfg, []string{"-bogus"})
	require.Error(t, err)
}
