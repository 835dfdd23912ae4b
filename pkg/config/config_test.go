package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MONGO")
	t.Setenv("ARTIFACT_FETCH_TIMEOUT", "45s")
	t.Setenv("ALLOWED_ORIGINS", "https://portal.example.com, ,https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverMongo, cfg.StoreDriver)
	require.Equal(t, 45*time.Second, cfg.Artifacts.FetchTimeout)
	require.Equal(t, []string{"https://portal.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	require.Equal(t, 4, cfg.Artifacts.FetchConcurrency)
	require.Equal(t, 3, cfg.Workflow.MaxWriteAttempts)
}

func TestParseDurationFallback(t *testing.T) {
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	require.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
