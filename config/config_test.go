package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ollama", cfg.Provider.Type)
	assert.Equal(t, 0.7, cfg.Defaults.Temperature)
	assert.True(t, cfg.Defaults.ToolsEnabled)
	assert.NotEmpty(t, cfg.DataDirectory)
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Provider.Type = "anthropic"
	cfg.Provider.APIKeyEnv = "ANTHROPIC_API_KEY"

	path := filepath.Join(t.TempDir(), "settings.toml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, toml.NewEncoder(f).Encode(cfg))
	require.NoError(t, f.Close())

	var back Config
	_, err = toml.DecodeFile(path, &back)
	require.NoError(t, err)
	assert.Equal(t, *cfg, back)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GLINT_PROVIDER", "openai")
	t.Setenv("GLINT_MODEL", "gpt-4o")
	t.Setenv("GLINT_TEMPERATURE", "0.1")

	cfg := Default()
	applyEnvOverrides(cfg)
	assert.Equal(t, "openai", cfg.Provider.Type)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 0.1, cfg.Defaults.Temperature)

	t.Setenv("GLINT_TEMPERATURE", "not a number")
	cfg = Default()
	applyEnvOverrides(cfg)
	assert.Equal(t, 0.7, cfg.Defaults.Temperature, "bad override is ignored")
}

func TestAPIKeyResolution(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.APIKey(), "no env var configured")

	cfg.Provider.APIKeyEnv = "GLINT_TEST_KEY"
	t.Setenv("GLINT_TEST_KEY", "sk-secret")
	assert.Equal(t, "sk-secret", cfg.APIKey())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), ExpandPath("~/data"))

	t.Setenv("GLINT_TEST_DIR", "/tmp/glint")
	assert.Equal(t, "/tmp/glint", ExpandPath("$GLINT_TEST_DIR"))
	assert.Equal(t, "", ExpandPath(""))
}
