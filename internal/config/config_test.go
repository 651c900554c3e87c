package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
directory:
  base_url: https://directory.example.com
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Host != "0.0.0.0" || cfg.Listen.Port != 8080 {
		t.Errorf("listen = %s:%d, want 0.0.0.0:8080", cfg.Listen.Host, cfg.Listen.Port)
	}
	if cfg.Directory.Timeout.Duration != 5*time.Second {
		t.Errorf("directory.timeout = %v, want 5s", cfg.Directory.Timeout.Duration)
	}
	if cfg.Directory.RetryAttempts != 3 {
		t.Errorf("directory.retry_attempts = %d, want 3", cfg.Directory.RetryAttempts)
	}
	if cfg.Directory.BreakerFailures != 5 {
		t.Errorf("directory.breaker_failures = %d, want 5", cfg.Directory.BreakerFailures)
	}
	if cfg.Cache.Store != "memory" {
		t.Errorf("cache.store = %q, want memory", cfg.Cache.Store)
	}
	if cfg.Cache.PassportTTL.Duration != 60*time.Second || cfg.Cache.DecisionTTL.Duration != 60*time.Second {
		t.Errorf("cache TTLs = %v/%v, want 60s/60s", cfg.Cache.PassportTTL.Duration, cfg.Cache.DecisionTTL.Duration)
	}
	if cfg.Cache.PolicyTTL.Duration != 60*time.Second {
		t.Errorf("cache.policy_ttl = %v, want 60s", cfg.Cache.PolicyTTL.Duration)
	}
	if !cfg.Enforcement.IsFailClosed() {
		t.Error("fail_closed should default to true")
	}
	if cfg.Identity.Header != "X-Agent-Passport-Id" || cfg.Identity.FallbackHeader != "X-Agent-Id" {
		t.Errorf("identity headers = %q/%q", cfg.Identity.Header, cfg.Identity.FallbackHeader)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %q/%q, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Logging.Audit.SamplingRate != 1.0 || cfg.Logging.Audit.ErrorSamplingRate != 1.0 {
		t.Errorf("audit sampling = %f/%f, want 1.0/1.0", cfg.Logging.Audit.SamplingRate, cfg.Logging.Audit.ErrorSamplingRate)
	}
	if cfg.Shutdown.Timeout.Duration != 30*time.Second {
		t.Errorf("shutdown.timeout = %v, want 30s", cfg.Shutdown.Timeout.Duration)
	}
	if cfg.Reload.Debounce.Duration != 2*time.Second {
		t.Errorf("reload.debounce = %v, want 2s", cfg.Reload.Debounce.Duration)
	}
	if !cfg.Reload.IsEnabled() {
		t.Error("reload.enabled should default to true")
	}
	if !cfg.Reload.WatchesFile() {
		t.Error("reload.watch_file should default to true")
	}
}

func TestLoadReloadOptOut(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
reload:
  enabled: false
  watch_file: false
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reload.IsEnabled() {
		t.Error("reload.enabled=false should disable reload")
	}
	if cfg.Reload.WatchesFile() {
		t.Error("reload.watch_file=false should disable the watcher")
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
listen:
  host: 127.0.0.1
  port: 9090
directory:
  base_url: https://directory.example.com
  api_key: test-key
  timeout: 10s
  retry_attempts: 5
cache:
  store: redis
  redis_url: redis://localhost:6379/0
  passport_ttl: 30s
  policy_ttl: 120s
  decision_ttl: 90s
enforcement:
  fail_closed: false
  routes:
    - prefix: /payments
      capabilities: [payments.refund]
      min_assurance: L2
  operations:
    - prefix: /payments
      type: refund
  limit_rules:
    refund:
      - key: refund_amount_max_per_tx
        field: amount_cents
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 9090 {
		t.Errorf("listen.port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Directory.Timeout.Duration != 10*time.Second {
		t.Errorf("directory.timeout = %v, want 10s", cfg.Directory.Timeout.Duration)
	}
	if cfg.Cache.Store != "redis" || cfg.Cache.DecisionTTL.Duration != 90*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.PolicyTTL.Duration != 120*time.Second {
		t.Errorf("cache.policy_ttl = %v, want 120s", cfg.Cache.PolicyTTL.Duration)
	}
	if cfg.Enforcement.IsFailClosed() {
		t.Error("explicit fail_closed: false was not honored")
	}
	if len(cfg.Enforcement.Routes) != 1 || cfg.Enforcement.Routes[0].MinAssurance != "L2" {
		t.Errorf("routes = %+v", cfg.Enforcement.Routes)
	}
	if len(cfg.Enforcement.LimitRules["refund"]) != 1 {
		t.Errorf("limit_rules = %+v", cfg.Enforcement.LimitRules)
	}
}

func TestLoadCollectsAllValidationErrors(t *testing.T) {
	_, err := Load(writeConfig(t, `
listen:
  port: 99999
directory:
  base_url: "not a url"
cache:
  store: cassandra
enforcement:
  routes:
    - prefix: payments
      min_assurance: L7
logging:
  level: verbose
`))
	if err == nil {
		t.Fatal("invalid config loaded without error")
	}
	for _, want := range []string{
		"listen.port",
		"directory.base_url",
		"cache.store",
		"enforcement.routes[0]: prefix",
		"min_assurance",
		"logging.level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoadRedisRequiresURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
directory:
  base_url: https://directory.example.com
cache:
  store: redis
`))
	if err == nil || !strings.Contains(err.Error(), "cache.redis_url") {
		t.Fatalf("err = %v, want redis_url requirement", err)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
directory:
  base_url: https://directory.example.com
  timeout: soon
`))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("err = %v, want duration parse error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file loaded without error")
	}
}
