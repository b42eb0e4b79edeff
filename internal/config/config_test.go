package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "paperloom.db", cfg.Database.Path)
	assert.Equal(t, "paperloom_vectors.db", cfg.Vector.Path)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /data/papers.db
sources:
  feedUrl: https://example.org/rss/
embeddings:
  model: from-file
`), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(embeddingsModelEnv, "from-env")

	cfg := Load()
	assert.Equal(t, "/data/papers.db", cfg.Database.Path)
	assert.Equal(t, "https://example.org/rss/", cfg.Sources.FeedURL)
	assert.Equal(t, "from-env", cfg.Embeddings.Model, "environment wins over the file")
	assert.Equal(t, "paperloom_vectors.db", cfg.Vector.Path, "untouched values keep defaults")
}

func TestLoadUnreadableFileFallsBack(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	assert.Equal(t, "paperloom.db", cfg.Database.Path)
}
