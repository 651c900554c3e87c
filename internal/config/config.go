// Package config handles YAML configuration parsing, defaults, and
// validation for the passgate authorization gateway.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for passgate.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Cache       CacheConfig       `yaml:"cache"`
	Identity    IdentityConfig    `yaml:"identity"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Logging     LoggingConfig     `yaml:"logging"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
	Reload      ReloadConfig      `yaml:"reload"`
}

// ListenConfig defines the listener address.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DirectoryConfig points at the passport directory API and tunes the
// client's reliability machinery.
type DirectoryConfig struct {
	BaseURL         string   `yaml:"base_url"`
	APIKey          string   `yaml:"api_key"`
	Timeout         Duration `yaml:"timeout"`
	RetryAttempts   int      `yaml:"retry_attempts"`
	RequestsPerSec  float64  `yaml:"requests_per_sec"`
	BreakerFailures int      `yaml:"breaker_failures"`
}

// CacheConfig selects the decision-cache store and the cache TTLs.
type CacheConfig struct {
	Store       string   `yaml:"store"` // "memory" or "redis"
	RedisURL    string   `yaml:"redis_url"`
	PassportTTL Duration `yaml:"passport_ttl"`
	PolicyTTL   Duration `yaml:"policy_ttl"`
	DecisionTTL Duration `yaml:"decision_ttl"`
	MaxEntries  int      `yaml:"max_entries"`
}

// IdentityConfig controls agent-id extraction from requests.
type IdentityConfig struct {
	Header         string    `yaml:"header"`
	FallbackHeader string    `yaml:"fallback_header"`
	JWT            JWTConfig `yaml:"jwt"`
}

// JWTConfig holds Bearer token validation parameters.
type JWTConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwks_url"`
}

// EnforcementConfig holds the gateway-wide evaluator tables and the
// fail-mode switch.
type EnforcementConfig struct {
	// FailClosed controls behavior when the directory is unreachable.
	// Defaults to true; set fail_closed: false explicitly to fail open.
	FailClosed *bool `yaml:"fail_closed"`

	DenyUnmappedRoutes bool `yaml:"deny_unmapped_routes"`

	// Routes maps path prefixes to capability and assurance requirements.
	Routes []RouteConfig `yaml:"routes"`

	// Operations maps path prefixes to operation types for limit
	// classification. Empty uses the built-in table.
	Operations []OperationConfig `yaml:"operations"`

	// LimitRules maps operation types to limit-key/data-field bindings.
	// Empty uses the built-in rules.
	LimitRules map[string][]LimitRuleConfig `yaml:"limit_rules"`

	MCP MCPHeadersConfig `yaml:"mcp"`
}

// RouteConfig binds a path prefix to its enforcement requirements.
type RouteConfig struct {
	Prefix       string   `yaml:"prefix"`
	Capabilities []string `yaml:"capabilities"`
	MinAssurance string   `yaml:"min_assurance"`
}

// OperationConfig classifies a path prefix as an operation type.
type OperationConfig struct {
	Prefix string `yaml:"prefix"`
	Type   string `yaml:"type"`
}

// LimitRuleConfig binds a passport limit key to an operation-data field.
type LimitRuleConfig struct {
	Key   string `yaml:"key"`
	Field string `yaml:"field"`
}

// MCPHeadersConfig names the headers identifying tool/bridge calls.
type MCPHeadersConfig struct {
	ServerHeader string `yaml:"server_header"`
	ToolHeader   string `yaml:"tool_header"`
}

// LoggingConfig defines log output format and audit sampling.
type LoggingConfig struct {
	Level  string      `yaml:"level"`
	Format string      `yaml:"format"`
	Output string      `yaml:"output"`
	Audit  AuditConfig `yaml:"audit"`
}

// AuditConfig controls audit log sampling rates.
type AuditConfig struct {
	SamplingRate      float64 `yaml:"sampling_rate"`
	ErrorSamplingRate float64 `yaml:"error_sampling_rate"`
}

// ShutdownConfig defines the graceful shutdown timeout.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ReloadConfig controls config hot-reload behavior (SIGHUP and file watching).
// Enabled and WatchFile default to true; set them to false explicitly to
// opt out.
type ReloadConfig struct {
	Enabled   *bool    `yaml:"enabled"`
	WatchFile *bool    `yaml:"watch_file"`
	Debounce  Duration `yaml:"debounce"` // default 2s
}

// IsEnabled reports whether hot reload is on.
func (r *ReloadConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// WatchesFile reports whether the config file is watched for changes.
func (r *ReloadConfig) WatchesFile() bool {
	return r.WatchFile == nil || *r.WatchFile
}

// IsFailClosed reports the effective fail mode.
func (e *EnforcementConfig) IsFailClosed() bool {
	return e.FailClosed == nil || *e.FailClosed
}

// Duration is a time.Duration that supports YAML string parsing (e.g., "60s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration, parsing strings like "60s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads, parses, applies defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
