package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 5, cfg.Research.MaxSteps)
	assert.Equal(t, 2, cfg.Research.MaxRetriesPerStep)
	assert.Equal(t, 2, cfg.Research.MinAcceptedSourcesPerStep)
	assert.Equal(t, 0.5, cfg.Research.RelevanceThreshold)
	assert.Equal(t, "tavily", cfg.Search.Provider)
	assert.Equal(t, "sqlite", cfg.Session.Backend)
	assert.Equal(t, "sounder-research", cfg.Temporal.TaskQueue)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Research.MaxSteps)
	assert.Empty(t, cfg.Path)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sounder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
research:
  max_steps: 7
  relevance_threshold: 0.65
search:
  provider: serper
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Research.MaxSteps)
	assert.Equal(t, 0.65, cfg.Research.RelevanceThreshold)
	assert.Equal(t, "serper", cfg.Search.Provider)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Research.MaxRetriesPerStep)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadBadFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("research: [not a map"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("MODEL_SERVICE_URL", "http://model:9000")
	t.Setenv("SEARCH_PROVIDER", "serper")
	t.Setenv("MAX_STEPS", "3")
	t.Setenv("MAX_RETRIES_PER_STEP", "0")
	t.Setenv("RELEVANCE_THRESHOLD", "0.8")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://model:9000", cfg.Model.BaseURL)
	assert.Equal(t, "serper", cfg.Search.Provider)
	assert.Equal(t, 3, cfg.Research.MaxSteps)
	assert.Equal(t, 0, cfg.Research.MaxRetriesPerStep)
	assert.Equal(t, 0.8, cfg.Research.RelevanceThreshold)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 30*time.Second, cfg.ModelTimeout())
	assert.Equal(t, 10*time.Second, cfg.SearchTimeout())
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
}
