// Package config loads the application's TOML configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the full application configuration.
type Config struct {
	DataDirectory string            `toml:"data_directory"`
	Provider      ProviderConfig    `toml:"provider"`
	Defaults      DefaultsConfig    `toml:"defaults"`
	MCPServers    []MCPServerConfig `toml:"mcp_servers"`
}

// ProviderConfig selects and parameterizes the LLM provider. The API key
// is read from the named environment variable, never from the file.
type ProviderConfig struct {
	Type      string `toml:"type"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
}

// MCPServerConfig describes one stdio MCP server launched at startup. Its
// tools are offered to every conversation that enables them.
type MCPServerConfig struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
}

// DefaultsConfig seeds the stored default settings on first run.
type DefaultsConfig struct {
	Instructions string  `toml:"instructions"`
	Temperature  float64 `toml:"temperature"`
	ToolsEnabled bool    `toml:"tools_enabled"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDirectory: DefaultDataDir(),
		Provider: ProviderConfig{
			Type:      "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "llama3.1:latest",
			APIKeyEnv: "",
		},
		Defaults: DefaultsConfig{
			Instructions: "You are a helpful assistant. Answer concisely and accurately.",
			Temperature:  0.7,
			ToolsEnabled: true,
		},
	}
}

// Load reads the config file, creating it with defaults when missing, and
// applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	path := SettingsFilePath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return nil, errors.Wrap(err, "creating default config")
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}

	applyEnvOverrides(cfg)
	cfg.DataDirectory = ExpandPath(cfg.DataDirectory)
	return cfg, nil
}

// Save writes the config file with user-only permissions.
func Save(cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(), 0700); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	f, err := os.OpenFile(SettingsFilePath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "creating config file")
	}
	defer f.Close()

	return errors.Wrap(toml.NewEncoder(f).Encode(cfg), "encoding config")
}

// APIKey resolves the provider API key from the configured environment
// variable. Empty when none is configured or set.
func (c *Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GLINT_DATA_DIR"); v != "" {
		cfg.DataDirectory = v
	}
	if v := os.Getenv("GLINT_PROVIDER"); v != "" {
		cfg.Provider.Type = v
	}
	if v := os.Getenv("GLINT_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("GLINT_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("GLINT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Defaults.Temperature = f
		}
	}
}

// ConfigDir returns the configuration directory, ~/.config/glint.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "glint")
}

// DefaultDataDir returns the default data directory, ~/.local/share/glint.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "glint")
}

// SettingsFilePath returns the path to settings.toml.
func SettingsFilePath() string {
	return filepath.Join(ConfigDir(), "settings.toml")
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDataDir creates the data directory with user-only permissions.
func EnsureDataDir(dataDir string) error {
	return errors.Wrap(os.MkdirAll(dataDir, 0700), "creating data directory")
}
