package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lowkaihon/cli-coding-agent/policy"
	"github.com/lowkaihon/cli-coding-agent/tools"
)

// PilotConfig is the YAML-backed configuration layer (spec.md §6) that sits
// alongside Config's env/credentials-driven provider bootstrap: Config
// answers "which model, which API key"; PilotConfig answers "how should the
// agent behave in this workspace" (policy, resource limits, optional
// adapters). Both are loaded independently and composed in cmd/pilot/main.go.
type PilotConfig struct {
	WorkspaceRoot string         `yaml:"workspace_root"`
	LLM           LLMSection     `yaml:"llm"`
	Policy        policy.Policy  `yaml:"policy"`
	Limits        LimitsSection  `yaml:"limits"`
	RAG           RAGSection     `yaml:"rag"`
	Weather       WeatherSection `yaml:"weather"`
}

// LLMSection overrides Config's provider defaults when present; empty
// fields fall back to Config's own provider/model/context-window.
type LLMSection struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
}

// LimitsSection configures tool output truncation, the result cache, and
// the replan budget (4.C, 4.H).
type LimitsSection struct {
	MaxOutputBytes   int `yaml:"max_output_bytes"`
	MaxFileReadBytes int `yaml:"max_file_read_bytes"`
	CacheSize        int `yaml:"cache_size"`
	CacheTTLSeconds  int `yaml:"cache_ttl_seconds"`
	MaxReplans       int `yaml:"max_replans"`
}

// RAGSection configures the optional external.VectorStore collaborator.
// Pilot ships no vector store implementation (§6: "optional collaborators,
// nil by default"); this section only records the intent to wire one in,
// e.g. from an external process via a future adapter.
type RAGSection struct {
	Enabled        bool   `yaml:"enabled"`
	EmbeddingModel string `yaml:"embedding_model"`
	TopK           int    `yaml:"top_k"`
}

// WeatherSection configures the example HTTP adapter (tools.WeatherConfig).
type WeatherSection struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DefaultPilotConfig returns conservative defaults matching
// policy.Default() and tools.DefaultLimits, used when no config file is
// present or a section is omitted.
func DefaultPilotConfig() *PilotConfig {
	return &PilotConfig{
		Policy: policy.Default(),
		Limits: LimitsSection{
			MaxOutputBytes:   tools.DefaultLimits.MaxOutputBytes,
			MaxFileReadBytes: tools.DefaultLimits.MaxFileReadBytes,
			CacheSize:        512,
			CacheTTLSeconds:  300,
			MaxReplans:       3,
		},
	}
}

// LoadPilotConfig reads path (YAML) and merges it over DefaultPilotConfig.
// A missing file is not an error — Pilot runs fine on defaults alone.
func LoadPilotConfig(path string) (*PilotConfig, error) {
	cfg := DefaultPilotConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ToolLimits converts the YAML limits section to tools.Limits, falling
// back to tools.DefaultLimits for zero fields.
func (c *PilotConfig) ToolLimits() tools.Limits {
	l := tools.DefaultLimits
	if c.Limits.MaxOutputBytes > 0 {
		l.MaxOutputBytes = c.Limits.MaxOutputBytes
	}
	if c.Limits.MaxFileReadBytes > 0 {
		l.MaxFileReadBytes = c.Limits.MaxFileReadBytes
	}
	return l
}

// CacheTTL returns the configured cache entry lifetime, or 0 (no expiry)
// if unset.
func (c *PilotConfig) CacheTTL() time.Duration {
	if c.Limits.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Limits.CacheTTLSeconds) * time.Second
}

// CacheSize returns the configured LRU capacity, defaulting to 512 entries.
func (c *PilotConfig) CacheSize() int {
	if c.Limits.CacheSize > 0 {
		return c.Limits.CacheSize
	}
	return 512
}

// WeatherConfig converts the YAML weather section to tools.WeatherConfig.
func (c *PilotConfig) WeatherConfig() tools.WeatherConfig {
	timeout := 10 * time.Second
	if c.Weather.TimeoutSeconds > 0 {
		timeout = time.Duration(c.Weather.TimeoutSeconds) * time.Second
	}
	return tools.WeatherConfig{
		BaseURL: c.Weather.BaseURL,
		APIKey:  c.Weather.APIKey,
		Timeout: timeout,
	}
}
