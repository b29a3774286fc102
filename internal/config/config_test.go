package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfigFile(t, `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
  enabled: true
agents:
  pm:
    max_concurrent: 8
  dev:
    name: builders
journal:
  enabled: false
  retain_for: 48h
watch:
  dir: incoming
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("api key = %q, want test-key", cfg.Anthropic.APIKey)
	}
	if !cfg.Anthropic.Enabled {
		t.Error("anthropic.enabled should be true")
	}
	if cfg.Agents.PM.MaxConcurrent != 8 {
		t.Errorf("pm max_concurrent = %d, want 8", cfg.Agents.PM.MaxConcurrent)
	}
	if cfg.Agents.Dev.Name != "builders" {
		t.Errorf("dev name = %q, want builders", cfg.Agents.Dev.Name)
	}
	if cfg.Journal.Enabled {
		t.Error("journal.enabled should be false")
	}
	if cfg.Journal.RetainFor != 48*time.Hour {
		t.Errorf("journal.retain_for = %v, want 48h", cfg.Journal.RetainFor)
	}
	if cfg.Watch.Dir != "incoming" {
		t.Errorf("watch.dir = %q, want incoming", cfg.Watch.Dir)
	}
}

func TestLoadFromPath_Defaults(t *testing.T) {
	path := writeConfigFile(t, "anthropic:\n  api_key: k\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Agents.PM.Name != "pm" {
		t.Errorf("default pm name = %q, want pm", cfg.Agents.PM.Name)
	}
	if cfg.Agents.PM.MaxConcurrent != 5 {
		t.Errorf("default pm max_concurrent = %d, want 5", cfg.Agents.PM.MaxConcurrent)
	}
	if cfg.Agents.Dev.Name != "dev_team" {
		t.Errorf("default dev name = %q, want dev_team", cfg.Agents.Dev.Name)
	}
	if cfg.Agents.Dev.MaxConcurrent != 3 {
		t.Errorf("default dev max_concurrent = %d, want 3", cfg.Agents.Dev.MaxConcurrent)
	}
	if !cfg.Journal.Enabled {
		t.Error("journal should be enabled by default")
	}
	if cfg.Watch.SettleDelay != 250*time.Millisecond {
		t.Errorf("default settle_delay = %v, want 250ms", cfg.Watch.SettleDelay)
	}
}

func TestLoadFromPath_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("ORCHID_TEST_KEY", "expanded-key")
	path := writeConfigFile(t, "anthropic:\n  api_key: ${ORCHID_TEST_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-key" {
		t.Errorf("api key = %q, want expanded-key", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agents.PM.Name != "pm" || cfg.Agents.Dev.Name != "dev_team" {
		t.Errorf("default agent names = %q, %q", cfg.Agents.PM.Name, cfg.Agents.Dev.Name)
	}
	if cfg.Agents.PM.MaxConcurrent != 5 || cfg.Agents.Dev.MaxConcurrent != 3 {
		t.Errorf("default ceilings = %d, %d", cfg.Agents.PM.MaxConcurrent, cfg.Agents.Dev.MaxConcurrent)
	}
	if !cfg.Journal.Enabled || cfg.Journal.RetainFor != 720*time.Hour {
		t.Errorf("default journal = %+v", cfg.Journal)
	}
	if cfg.Anthropic.Enabled {
		t.Error("claude worker should be disabled by default")
	}
}

func TestGetUserConfigDir(t *testing.T) {
	original := os.Getenv("XDG_CONFIG_HOME")
	defer os.Setenv("XDG_CONFIG_HOME", original)

	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := getUserConfigDir(); got != "/custom/config/orchid" {
		t.Errorf("getUserConfigDir() = %q", got)
	}

	os.Unsetenv("XDG_CONFIG_HOME")
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".config", "orchid")
	if got := getUserConfigDir(); got != want {
		t.Errorf("getUserConfigDir() = %q, want %q", got, want)
	}
}
