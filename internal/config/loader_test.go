package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temporary directory.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "document_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, 384, cfg.VectorStore.Dimension)
	assert.Equal(t, 2000, cfg.Segment.ChunkSize)
	assert.Equal(t, 300, cfg.Segment.Overlap)
	assert.Equal(t, 50, cfg.Ingest.MinTextLength)
	assert.Equal(t, 3, cfg.Query.MinLength)
	assert.Equal(t, 5, cfg.Query.DefaultLimit)
	assert.Equal(t, 100, cfg.Retrieval.PoolSize)
	assert.True(t, cfg.Secrets.Redact)
}

func TestLoad_YAMLFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, `
server:
  port: 9191
vectorstore:
  provider: chromem
  collection: test_chunks
segment:
  chunk_size: 500
  overlap: 50
generation:
  provider: none
  timeout: 3s
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "test_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, 500, cfg.Segment.ChunkSize)
	assert.Equal(t, 50, cfg.Segment.Overlap)
	assert.Equal(t, "none", cfg.Generation.Provider)
	assert.Equal(t, 3*time.Second, cfg.Generation.Timeout.Duration())
	// untouched sections keep defaults
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, 5, cfg.Query.DefaultLimit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "qdrant:\n  host: from-file\n", 0600)

	t.Setenv("RAGD_QDRANT_HOST", "from-env")
	t.Setenv("RAGD_SEGMENT_CHUNK_SIZE", "800")
	t.Setenv("RAGD_GENERATION_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Qdrant.Host)
	assert.Equal(t, 800, cfg.Segment.ChunkSize)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey.Value())
}

func TestLoad_InsecurePermissions(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "server:\n  port: 9000\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	home := setupTestHome(t)

	_, err := Load(filepath.Join(home, "missing.yaml"))
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestLoad_InvalidValues(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "segment:\n  chunk_size: 100\n  overlap: 100\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "segment.overlap")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "qdrant.host", envKey("RAGD_QDRANT_HOST"))
	assert.Equal(t, "segment.chunk_size", envKey("RAGD_SEGMENT_CHUNK_SIZE"))
	assert.Equal(t, "debug", envKey("RAGD_DEBUG"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "magic" }, "auth.mode"},
		{"bearer needs identity url", func(c *Config) { c.Auth.Mode = "bearer" }, "auth.identity_url"},
		{"bad store", func(c *Config) { c.VectorStore.Provider = "pinecone" }, "vectorstore.provider"},
		{"zero dimension", func(c *Config) { c.VectorStore.Dimension = 0 }, "vectorstore.dimension"},
		{"bad embeddings provider", func(c *Config) { c.Embeddings.Provider = "magic" }, "embeddings.provider"},
		{"zero parallelism", func(c *Config) { c.Embeddings.Parallelism = 0 }, "embeddings.parallelism"},
		{"bad generation provider", func(c *Config) { c.Generation.Provider = "magic" }, "generation.provider"},
		{"limits", func(c *Config) { c.Query.MaxLimit = 1 }, "query limits"},
		{"retrieval mode", func(c *Config) { c.Retrieval.Mode = "fuzzy" }, "retrieval.mode"},
		{"events without url", func(c *Config) { c.Events.Enabled = true; c.Events.URL = "" }, "events.url"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte("45")))
	assert.Equal(t, 45*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("-5")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestSecret_UnmarshalText(t *testing.T) {
	t.Run("literal", func(t *testing.T) {
		var s Secret
		require.NoError(t, s.UnmarshalText([]byte("sk-literal")))
		assert.Equal(t, "sk-literal", s.Value())
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "qdrant_api_key")
		require.NoError(t, os.WriteFile(path, []byte("sk-from-file\n"), 0o600))

		var s Secret
		require.NoError(t, s.UnmarshalText([]byte("file:"+path)))
		assert.Equal(t, "sk-from-file", s.Value())
	})

	t.Run("missing file", func(t *testing.T) {
		var s Secret
		assert.Error(t, s.UnmarshalText([]byte("file:/nonexistent/ragd/secret")))
	})
}
