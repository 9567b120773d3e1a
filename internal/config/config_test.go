package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/gentrack/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Tracker.HardTimeout)
	assert.Equal(t, 3, cfg.Tracker.MaxConcurrent)
	assert.Equal(t, 3*time.Second, cfg.Tracker.DismissAfter)
	assert.Equal(t, "generation_status", cfg.CrossTab.Channel)
	assert.Equal(t, 3*time.Minute, cfg.Tracker.Expected[model.KindMultiAngleRender])
	assert.Len(t, cfg.Tracker.Expected, len(model.ValidKinds))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "BADGER")
	t.Setenv("TRACKER_POLL_INTERVAL", "2s")
	t.Setenv("TRACKER_MAX_CONCURRENT", "5")
	t.Setenv("CROSSTAB_DRIVER", "local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 5, cfg.Tracker.MaxConcurrent)
	assert.Equal(t, "local", cfg.CrossTab.Driver)
}

func TestLoad_SecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker_key")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))

	t.Setenv("WORKER_API_KEY", "")
	t.Setenv("WORKER_API_KEY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Worker.APIKey)
}
