package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lowkaihon/cli-coding-agent/policy"
)

func TestLoadPilotConfigMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadPilotConfig(filepath.Join(dir, "pilot.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheSize() != 512 {
		t.Errorf("expected default cache size 512, got %d", cfg.CacheSize())
	}
	if cfg.CacheTTL() != 300*time.Second {
		t.Errorf("expected default cache ttl 300s, got %v", cfg.CacheTTL())
	}
	if !cfg.Policy.ConfirmWrite {
		t.Errorf("expected policy.Default() confirm_write to carry through")
	}
}

func TestLoadPilotConfigParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pilot.yaml")
	content := `
workspace_root: /tmp/project
llm:
  provider: anthropic
  model: claude-sonnet-4-5
policy:
  allow_network: true
  confirm_write: false
  risk_threshold: high
limits:
  max_output_bytes: 5000
  cache_size: 128
  cache_ttl_seconds: 60
  max_replans: 5
weather:
  base_url: https://example.test/weather
  timeout_seconds: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadPilotConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("unexpected llm section: %+v", cfg.LLM)
	}
	if !cfg.Policy.AllowNetwork || cfg.Policy.ConfirmWrite {
		t.Errorf("unexpected policy section: %+v", cfg.Policy)
	}
	if cfg.Policy.RiskThreshold != policy.RiskHigh {
		t.Errorf("expected risk_threshold high, got %v", cfg.Policy.RiskThreshold)
	}
	if cfg.CacheSize() != 128 {
		t.Errorf("expected cache size 128, got %d", cfg.CacheSize())
	}
	if cfg.CacheTTL() != 60*time.Second {
		t.Errorf("expected cache ttl 60s, got %v", cfg.CacheTTL())
	}
	if cfg.Limits.MaxReplans != 5 {
		t.Errorf("expected max_replans 5, got %d", cfg.Limits.MaxReplans)
	}

	limits := cfg.ToolLimits()
	if limits.MaxOutputBytes != 5000 {
		t.Errorf("expected max_output_bytes 5000, got %d", limits.MaxOutputBytes)
	}

	weather := cfg.WeatherConfig()
	if weather.BaseURL != "https://example.test/weather" {
		t.Errorf("unexpected weather base url: %s", weather.BaseURL)
	}
	if weather.Timeout != 3*time.Second {
		t.Errorf("expected weather timeout 3s, got %v", weather.Timeout)
	}
}

func TestLoadPilotConfigInvalidYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pilot.yaml")
	if err := os.WriteFile(path, []byte("policy: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadPilotConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
