package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"FINSIGHT_ADDR", "FINSIGHT_PROVIDER", "FINSIGHT_MODEL", "FINSIGHT_UPLOAD_DIR",
		"FINSIGHT_CACHE_BACKEND", "FINSIGHT_LOG_LEVEL", "FINSIGHT_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWithCredential(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.Provider.Name)
	assert.Equal(t, "gemini-2.5-flash", cfg.Provider.Model)
	assert.Equal(t, "secret", cfg.Provider.APIKey)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 1024, cfg.Cache.ArchiveCapacity)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
}

func TestLoadMissingCredential(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "Gemini API key not found. Please set the GEMINI_API_KEY environment variable.")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "finsight.json")
	body := `{
		"server": {"address": ":9000", "max_upload_mb": 5},
		"provider": {"name": "openai", "base_url": "http://localhost:1234/v1"},
		"upload": {"dir": "uploads"},
		"cache": {"backend": "memory", "capacity": 8}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FINSIGHT_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Address)
	assert.Equal(t, ProviderOpenAI, cfg.Provider.Name)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Provider.APIKeyEnv)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, filepath.Join(dir, "uploads"), cfg.Upload.Dir)
	assert.Equal(t, 8, cfg.Cache.Capacity)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes())
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret")
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("FINSIGHT_PROVIDER", "mystery")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
