package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the engine configuration file.
type Config struct {
	APIBaseURL       string `toml:"api_base_url"`
	APIToken         string `toml:"api_token"`
	SocketURL        string `toml:"socket_url"`
	UserID           string `toml:"user_id"`
	PageLimit        int    `toml:"page_limit"`
	SearchDebounceMS int    `toml:"search_debounce_ms"`
	LogPath          string `toml:"log_path"`
}

// Load reads config from the given path and fills in defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PageLimit <= 0 {
		c.PageLimit = 20
	}
	if c.SearchDebounceMS <= 0 {
		c.SearchDebounceMS = 300
	}
	if c.LogPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.LogPath = filepath.Join(home, ".chatsync", "chatsync.log")
		}
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
