package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		APIBaseURL: "https://chat.example.com",
		SocketURL:  "wss://chat.example.com/ws",
		UserID:     "u-42",
		PageLimit:  25,
		LogPath:    filepath.Join(tmpDir, "engine.log"),
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.APIBaseURL != "https://chat.example.com" {
		t.Errorf("APIBaseURL = %q, want %q", loaded.APIBaseURL, "https://chat.example.com")
	}
	if loaded.PageLimit != 25 {
		t.Errorf("PageLimit = %d, want 25", loaded.PageLimit)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("api_base_url = \"https://chat.example.com\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PageLimit != 20 {
		t.Errorf("default PageLimit = %d, want 20", cfg.PageLimit)
	}
	if cfg.SearchDebounceMS != 300 {
		t.Errorf("default SearchDebounceMS = %d, want 300", cfg.SearchDebounceMS)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{UserID: "u-1"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
