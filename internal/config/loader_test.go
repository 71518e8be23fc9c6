package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/cuecard/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cuecard.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("api_key: got %q, want test-key", cfg.Provider.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestLoad_InvalidFileNamesPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "server:\n  log_level: shouting\n")

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "bad.yaml") || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should name file and field, got: %v", err)
	}
}

func TestLoad_EnvCredential(t *testing.T) {
	// Not parallel: mutates the process environment.
	t.Setenv("CUECARD_API_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "cuecard.yaml")
	writeFile(t, path, "recording:\n  enabled: true\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("api_key: got %q, want from-env", cfg.Provider.APIKey)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Provider: config.ProviderEntry{Name: "custom", Model: "m", TopK: 7},
		Audio:    config.AudioConfig{Backend: "other"},
	}
	config.ApplyDefaults(cfg)

	if cfg.Provider.Name != "custom" || cfg.Provider.Model != "m" || cfg.Provider.TopK != 7 {
		t.Errorf("explicit provider values overwritten: %+v", cfg.Provider)
	}
	if cfg.Audio.Backend != "other" {
		t.Errorf("audio.backend overwritten: %q", cfg.Audio.Backend)
	}
	if cfg.Provider.TopP != config.DefaultTopP {
		t.Errorf("top_p: got %v, want default", cfg.Provider.TopP)
	}
	if cfg.Recording.OutputDir != "." {
		t.Errorf("recording.output_dir: got %q, want .", cfg.Recording.OutputDir)
	}
}

func TestLoad_FilePermissions(t *testing.T) {
	t.Parallel()
	if os.Getuid() == 0 {
		t.Skip("root can read any file")
	}
	path := filepath.Join(t.TempDir(), "locked.yaml")
	writeFile(t, path, sampleYAML)
	if err := os.Chmod(path, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}
