package config

import "time"

// ApplyDefaults fills zero-valued fields with the documented defaults.
// It is called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	// ── Listen ──
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8080
	}

	// ── Directory ──
	if cfg.Directory.Timeout.Duration == 0 {
		cfg.Directory.Timeout.Duration = 5 * time.Second
	}
	if cfg.Directory.RetryAttempts == 0 {
		cfg.Directory.RetryAttempts = 3
	}
	if cfg.Directory.BreakerFailures == 0 {
		cfg.Directory.BreakerFailures = 5
	}

	// ── Cache ──
	if cfg.Cache.Store == "" {
		cfg.Cache.Store = "memory"
	}
	if cfg.Cache.PassportTTL.Duration == 0 {
		cfg.Cache.PassportTTL.Duration = 60 * time.Second
	}
	if cfg.Cache.PolicyTTL.Duration == 0 {
		cfg.Cache.PolicyTTL.Duration = 60 * time.Second
	}
	if cfg.Cache.DecisionTTL.Duration == 0 {
		cfg.Cache.DecisionTTL.Duration = 60 * time.Second
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10000
	}

	// ── Identity ──
	if cfg.Identity.Header == "" {
		cfg.Identity.Header = "X-Agent-Passport-Id"
	}
	if cfg.Identity.FallbackHeader == "" {
		cfg.Identity.FallbackHeader = "X-Agent-Id"
	}

	// ── Enforcement ──
	if cfg.Enforcement.FailClosed == nil {
		failClosed := true
		cfg.Enforcement.FailClosed = &failClosed
	}
	if cfg.Enforcement.MCP.ServerHeader == "" {
		cfg.Enforcement.MCP.ServerHeader = "X-MCP-Server"
	}
	if cfg.Enforcement.MCP.ToolHeader == "" {
		cfg.Enforcement.MCP.ToolHeader = "X-MCP-Tool"
	}

	// ── Logging ──
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Audit.SamplingRate == 0 {
		cfg.Logging.Audit.SamplingRate = 1.0
	}
	if cfg.Logging.Audit.ErrorSamplingRate == 0 {
		cfg.Logging.Audit.ErrorSamplingRate = 1.0
	}

	// ── Shutdown ──
	if cfg.Shutdown.Timeout.Duration == 0 {
		cfg.Shutdown.Timeout.Duration = 30 * time.Second
	}

	// ── Reload ──
	if cfg.Reload.Enabled == nil {
		enabled := true
		cfg.Reload.Enabled = &enabled
	}
	if cfg.Reload.WatchFile == nil {
		watch := true
		cfg.Reload.WatchFile = &watch
	}
	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = 2 * time.Second
	}
}
