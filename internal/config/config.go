package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"focusaura/internal/domain"
)

type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

// MaxAttemptsLimit bounds max_attempts so retries stay inside a request.
const MaxAttemptsLimit = 10

// Config models focusaura.yml. Once loaded it is treated as a read-only
// snapshot shared by every request.
type Config struct {
	Mode        Mode          `yaml:"mode"`
	Credential  string        `yaml:"credential,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	Deadline    time.Duration `yaml:"deadline"`
	Cache       CacheConfig   `yaml:"cache"`
	Sessions    SessionConfig `yaml:"sessions"`
	Providers   Providers     `yaml:"providers"`
	Server      ServerConfig  `yaml:"server"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"`
}

type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// DedupWindow suppresses a repeated intervention for the same session and
	// category. Zero disables suppression.
	DedupWindow time.Duration `yaml:"dedup_window"`
}

type ProviderConfig struct {
	URL     string `yaml:"url"`
	Results int    `yaml:"results,omitempty"`
	Agent   string `yaml:"agent,omitempty"`
}

type Providers struct {
	Evidence  ProviderConfig `yaml:"evidence"`
	Recency   ProviderConfig `yaml:"recency"`
	Synthesis ProviderConfig `yaml:"synthesis"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	BasePath       string   `yaml:"base_path,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// For returns the provider settings for a role.
func (p Providers) For(role domain.ProviderRole) ProviderConfig {
	switch role {
	case domain.RoleEvidence:
		return p.Evidence
	case domain.RoleRecency:
		return p.Recency
	case domain.RoleSynthesis:
		return p.Synthesis
	default:
		return ProviderConfig{}
	}
}

// Default returns the built-in configuration: demo mode, no credential.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Load reads config from path, or returns Default when path is empty.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML overlays raw YAML on the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize canonicalizes free-form values in place.
func (c *Config) Normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.Credential = strings.TrimSpace(c.Credential)
	c.Server.BasePath = strings.TrimRight(strings.TrimSpace(c.Server.BasePath), "/")
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDemo, ModeLive:
	default:
		return fmt.Errorf("config.mode must be 'demo' or 'live', got %q", c.Mode)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config.timeout must be positive")
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("config.max_attempts must be between 1 and %d, got %d", MaxAttemptsLimit, c.MaxAttempts)
	}
	if c.BaseBackoff < 0 {
		return fmt.Errorf("config.base_backoff must not be negative")
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("config.deadline must be positive")
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("config.cache.ttl must be positive when cache is enabled")
		}
		if c.Cache.Size < 1 {
			return fmt.Errorf("config.cache.size must be at least 1 when cache is enabled")
		}
	}
	if c.Sessions.DedupWindow < 0 {
		return fmt.Errorf("config.sessions.dedup_window must not be negative")
	}
	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("config.sessions.idle_timeout must be positive")
	}
	for _, role := range domain.Roles() {
		p := c.Providers.For(role)
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("config.providers.%s.url is required", role)
		}
		if p.Results < 0 {
			return fmt.Errorf("config.providers.%s.results must not be negative", role)
		}
	}
	return nil
}

func (c *Config) HasCredential() bool {
	return c != nil && c.Credential != ""
}

// LiveReady reports whether providers should be called for real.
func (c *Config) LiveReady() bool {
	return c != nil && c.Mode == ModeLive && c.HasCredential()
}

func (c *Config) ModeDescription() string {
	switch {
	case c.Mode == ModeDemo:
		return "Demo Mode (Template Responses)"
	case c.LiveReady():
		return "Live Mode (Real Provider APIs)"
	default:
		return "Live Mode (No Credential - Fallback to Templates)"
	}
}

// Warnings lists configuration combinations worth surfacing on /health.
func (c *Config) Warnings() []string {
	warnings := []string{}
	if c.Mode == ModeLive && !c.HasCredential() {
		warnings = append(warnings, "live mode enabled but no credential configured; falling back to templates")
	}
	if c.Mode == ModeDemo && c.HasCredential() {
		warnings = append(warnings, "credential configured but running in demo mode; not making live calls")
	}
	return warnings
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Credential != "" {
		cp.Credential = "********"
	}
	cp.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &cp
}

// ToYAML renders the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `mode: demo
timeout: 10s
max_attempts: 3
base_backoff: 1s
deadline: 2500ms

cache:
  enabled: true
  ttl: 5m
  size: 256

sessions:
  idle_timeout: 60m
  dedup_window: 5s

providers:
  evidence:
    url: https://api.ydc-index.io/search
    results: 3
  recency:
    url: https://api.ydc-index.io/news
    results: 3
  synthesis:
    url: https://api.you.com/v1/agents/runs
    agent: express

server:
  addr: 127.0.0.1:8000
  allowed_origins:
    - http://localhost:3000
    - http://localhost:5173
    - chrome-extension://*
`
