package config

import (
	"fmt"
	"reflect"
)

// Change describes a single configuration field that differs between two configs.
type Change struct {
	Field      string      // dot-separated field path (e.g., "enforcement.fail_closed")
	OldValue   interface{} // previous value
	NewValue   interface{} // new value
	Reloadable bool        // whether this change can be applied without restart
}

// Diff compares two Config values and returns a list of changes.
// Each change is annotated with whether it is reloadable at runtime.
func Diff(old, new *Config) []Change {
	var changes []Change

	// ── Non-reloadable: listen ──
	diffField(&changes, "listen.host", old.Listen.Host, new.Listen.Host, false)
	diffField(&changes, "listen.port", old.Listen.Port, new.Listen.Port, false)

	// ── Non-reloadable: directory client wiring ──
	diffField(&changes, "directory.base_url", old.Directory.BaseURL, new.Directory.BaseURL, false)
	diffField(&changes, "directory.api_key", old.Directory.APIKey, new.Directory.APIKey, false)
	diffField(&changes, "directory.timeout", old.Directory.Timeout.Duration, new.Directory.Timeout.Duration, false)
	diffField(&changes, "directory.retry_attempts", old.Directory.RetryAttempts, new.Directory.RetryAttempts, false)
	diffField(&changes, "directory.requests_per_sec", old.Directory.RequestsPerSec, new.Directory.RequestsPerSec, false)
	diffField(&changes, "directory.breaker_failures", old.Directory.BreakerFailures, new.Directory.BreakerFailures, false)

	// ── Non-reloadable: cache store selection and sizing ──
	diffField(&changes, "cache.store", old.Cache.Store, new.Cache.Store, false)
	diffField(&changes, "cache.redis_url", old.Cache.RedisURL, new.Cache.RedisURL, false)
	diffField(&changes, "cache.passport_ttl", old.Cache.PassportTTL.Duration, new.Cache.PassportTTL.Duration, false)
	diffField(&changes, "cache.policy_ttl", old.Cache.PolicyTTL.Duration, new.Cache.PolicyTTL.Duration, false)
	diffField(&changes, "cache.decision_ttl", old.Cache.DecisionTTL.Duration, new.Cache.DecisionTTL.Duration, false)
	diffField(&changes, "cache.max_entries", old.Cache.MaxEntries, new.Cache.MaxEntries, false)

	// ── Non-reloadable: identity extraction ──
	diffField(&changes, "identity.header", old.Identity.Header, new.Identity.Header, false)
	diffField(&changes, "identity.fallback_header", old.Identity.FallbackHeader, new.Identity.FallbackHeader, false)
	diffField(&changes, "identity.jwt.issuer", old.Identity.JWT.Issuer, new.Identity.JWT.Issuer, false)
	diffField(&changes, "identity.jwt.audience", old.Identity.JWT.Audience, new.Identity.JWT.Audience, false)
	diffField(&changes, "identity.jwt.jwks_url", old.Identity.JWT.JWKSURL, new.Identity.JWT.JWKSURL, false)

	// ── Reloadable: enforcement tables and fail mode ──
	diffField(&changes, "enforcement.fail_closed", old.Enforcement.IsFailClosed(), new.Enforcement.IsFailClosed(), true)
	diffField(&changes, "enforcement.deny_unmapped_routes", old.Enforcement.DenyUnmappedRoutes, new.Enforcement.DenyUnmappedRoutes, true)
	diffRoutes(&changes, old.Enforcement.Routes, new.Enforcement.Routes)
	diffField(&changes, "enforcement.operations", old.Enforcement.Operations, new.Enforcement.Operations, true)
	diffField(&changes, "enforcement.limit_rules", old.Enforcement.LimitRules, new.Enforcement.LimitRules, true)
	diffField(&changes, "enforcement.mcp.server_header", old.Enforcement.MCP.ServerHeader, new.Enforcement.MCP.ServerHeader, true)
	diffField(&changes, "enforcement.mcp.tool_header", old.Enforcement.MCP.ToolHeader, new.Enforcement.MCP.ToolHeader, true)

	// ── Reloadable: logging and audit sampling ──
	diffField(&changes, "logging.level", old.Logging.Level, new.Logging.Level, true)
	diffField(&changes, "logging.format", old.Logging.Format, new.Logging.Format, true)
	diffField(&changes, "logging.audit.sampling_rate", old.Logging.Audit.SamplingRate, new.Logging.Audit.SamplingRate, true)
	diffField(&changes, "logging.audit.error_sampling_rate", old.Logging.Audit.ErrorSamplingRate, new.Logging.Audit.ErrorSamplingRate, true)

	// ── Non-reloadable: shutdown ──
	diffField(&changes, "shutdown.timeout", old.Shutdown.Timeout.Duration, new.Shutdown.Timeout.Duration, false)

	return changes
}

// diffField appends a Change if old != new using reflect.DeepEqual for comparison.
func diffField(changes *[]Change, field string, oldVal, newVal interface{}, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

// diffRoutes compares route lists keyed by prefix and produces per-route
// changes. Route additions, removals, and requirement changes are all
// reloadable.
func diffRoutes(changes *[]Change, oldRoutes, newRoutes []RouteConfig) {
	oldMap := make(map[string]RouteConfig, len(oldRoutes))
	for _, r := range oldRoutes {
		oldMap[r.Prefix] = r
	}
	newMap := make(map[string]RouteConfig, len(newRoutes))
	for _, r := range newRoutes {
		newMap[r.Prefix] = r
	}

	for prefix, oldRoute := range oldMap {
		newRoute, exists := newMap[prefix]
		if !exists {
			*changes = append(*changes, Change{
				Field:      fmt.Sprintf("enforcement.routes[%s]", prefix),
				OldValue:   oldRoute,
				NewValue:   nil,
				Reloadable: true,
			})
			continue
		}
		if !reflect.DeepEqual(oldRoute, newRoute) {
			*changes = append(*changes, Change{
				Field:      fmt.Sprintf("enforcement.routes[%s]", prefix),
				OldValue:   oldRoute,
				NewValue:   newRoute,
				Reloadable: true,
			})
		}
	}
	for prefix, newRoute := range newMap {
		if _, exists := oldMap[prefix]; !exists {
			*changes = append(*changes, Change{
				Field:      fmt.Sprintf("enforcement.routes[%s]", prefix),
				OldValue:   nil,
				NewValue:   newRoute,
				Reloadable: true,
			})
		}
	}
}
