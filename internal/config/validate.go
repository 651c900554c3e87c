package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/agentpassport/passgate/internal/passport"
)

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	// ── Directory ──
	if cfg.Directory.BaseURL == "" {
		errs = append(errs, "directory.base_url is required")
	} else if u, err := url.Parse(cfg.Directory.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("directory.base_url must be a valid http(s) URL (got %q)", cfg.Directory.BaseURL))
	}
	if cfg.Directory.Timeout.Duration < 0 {
		errs = append(errs, "directory.timeout must be positive")
	}
	if cfg.Directory.RetryAttempts < 1 {
		errs = append(errs, fmt.Sprintf("directory.retry_attempts must be at least 1 (got %d)", cfg.Directory.RetryAttempts))
	}
	if cfg.Directory.RequestsPerSec < 0 {
		errs = append(errs, fmt.Sprintf("directory.requests_per_sec must not be negative (got %f)", cfg.Directory.RequestsPerSec))
	}
	if cfg.Directory.BreakerFailures < 1 {
		errs = append(errs, fmt.Sprintf("directory.breaker_failures must be at least 1 (got %d)", cfg.Directory.BreakerFailures))
	}

	// ── Listen ──
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535 (got %d)", cfg.Listen.Port))
	}

	// ── Cache ──
	if !isValidCacheStore(cfg.Cache.Store) {
		errs = append(errs, fmt.Sprintf("cache.store must be one of: memory, redis (got %q)", cfg.Cache.Store))
	}
	if cfg.Cache.Store == "redis" && cfg.Cache.RedisURL == "" {
		errs = append(errs, "cache.redis_url is required when cache.store is redis")
	}
	if cfg.Cache.PassportTTL.Duration < 0 {
		errs = append(errs, "cache.passport_ttl must be positive")
	}
	if cfg.Cache.PolicyTTL.Duration < 0 {
		errs = append(errs, "cache.policy_ttl must be positive")
	}
	if cfg.Cache.DecisionTTL.Duration < 0 {
		errs = append(errs, "cache.decision_ttl must be positive")
	}
	if cfg.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.max_entries must be positive (got %d)", cfg.Cache.MaxEntries))
	}

	// ── Enforcement routes ──
	for i, route := range cfg.Enforcement.Routes {
		if route.Prefix == "" || !strings.HasPrefix(route.Prefix, "/") {
			errs = append(errs, fmt.Sprintf("enforcement.routes[%d]: prefix must start with / (got %q)", i, route.Prefix))
		}
		if route.MinAssurance != "" && !passport.AssuranceLevel(route.MinAssurance).Valid() {
			errs = append(errs, fmt.Sprintf("enforcement.routes[%d]: min_assurance must be one of L0, L1, L2, L3, L4KYC (got %q)", i, route.MinAssurance))
		}
	}
	for i, op := range cfg.Enforcement.Operations {
		if op.Prefix == "" || !strings.HasPrefix(op.Prefix, "/") {
			errs = append(errs, fmt.Sprintf("enforcement.operations[%d]: prefix must start with / (got %q)", i, op.Prefix))
		}
		if op.Type == "" {
			errs = append(errs, fmt.Sprintf("enforcement.operations[%d]: type is required", i))
		}
	}
	for opType, rules := range cfg.Enforcement.LimitRules {
		for i, rule := range rules {
			if rule.Key == "" || rule.Field == "" {
				errs = append(errs, fmt.Sprintf("enforcement.limit_rules[%s][%d]: key and field are required", opType, i))
			}
		}
	}

	// ── Logging ──
	if !isValidLogLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if !isValidLogFormat(cfg.Logging.Format) {
		errs = append(errs, fmt.Sprintf("logging.format must be one of: json, text (got %q)", cfg.Logging.Format))
	}
	if cfg.Logging.Audit.SamplingRate < 0 || cfg.Logging.Audit.SamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.audit.sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Audit.SamplingRate))
	}
	if cfg.Logging.Audit.ErrorSamplingRate < 0 || cfg.Logging.Audit.ErrorSamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.audit.error_sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Audit.ErrorSamplingRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidCacheStore(s string) bool {
	switch s {
	case "memory", "redis":
		return true
	}
	return false
}

func isValidLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidLogFormat(f string) bool {
	switch f {
	case "json", "text":
		return true
	}
	return false
}
