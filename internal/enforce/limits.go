package enforce

import (
	"encoding/json"
	"strconv"

	"github.com/agentpassport/passgate/internal/passport"
)

// CodeLimitExceeded is the stable error code for limit denials.
const CodeLimitExceeded = "limit_exceeded"

// OperationGeneral is the classification for paths matching no rule.
const OperationGeneral = "general"

// LimitRule binds a limit key in the agent's passport to the operation-data
// field it constrains.
type LimitRule struct {
	Key   string `yaml:"key" json:"key"`
	Field string `yaml:"field" json:"field"`
}

// LimitsConfig holds the operation classification table and the limit
// rules per operation type.
type LimitsConfig struct {
	// Operations maps path prefixes to operation types (longest prefix
	// wins). Unmatched paths classify as "general".
	Operations *PrefixTable[string]

	// Rules maps operation types to the limit keys checked for them.
	Rules map[string][]LimitRule
}

// DefaultLimitRules returns the built-in limit bindings for the known
// operation types. Operators extend or replace these via configuration.
func DefaultLimitRules() map[string][]LimitRule {
	return map[string][]LimitRule{
		"refund": {
			{Key: "refund_amount_max_per_tx", Field: "amount_cents"},
			{Key: "refund_amount_daily_cap", Field: "daily_spent_cents"},
		},
		"export": {
			{Key: "max_export_rows", Field: "rows"},
			{Key: "max_export_daily_cap", Field: "daily_exported_rows"},
		},
		"deploy": {
			{Key: "max_deploys_per_day", Field: "deploys_today"},
		},
		"messaging": {
			{Key: "msgs_per_min", Field: "messages_per_min"},
			{Key: "msgs_per_day", Field: "messages_per_day"},
		},
	}
}

// DefaultOperationTable returns the built-in path-prefix classification.
func DefaultOperationTable() *PrefixTable[string] {
	return NewPrefixTable(map[string]string{
		"/deploy":  "deploy",
		"/infra":   "deploy",
		"/export":  "export",
		"/data":    "export",
		"/refund":  "refund",
		"/payment": "refund",
		"/message": "messaging",
		"/notify":  "messaging",
	})
}

// ClassifyOperation resolves the operation type for a path.
func ClassifyOperation(path string, cfg LimitsConfig) string {
	if cfg.Operations != nil {
		if op, ok := cfg.Operations.Resolve(path); ok {
			return op
		}
	}
	return OperationGeneral
}

// EvaluateLimits checks every limit key relevant to the operation type
// against the corresponding operation-data field. A limit key absent from
// the agent's passport means no limit is configured and passes. Unlike the
// cross-dimension engine, all violated limits are collected, never
// short-circuited.
func EvaluateLimits(operationType string, agentLimits passport.LimitMap, operationData map[string]any, cfg LimitsConfig) Verdict {
	rules := cfg.Rules[operationType]
	if len(rules) == 0 {
		return allow(DimensionLimits)
	}

	var violations []Violation
	for _, rule := range rules {
		threshold, configured := agentLimits.Get(rule.Key)
		if !configured {
			continue
		}
		actual, present := numericField(operationData, rule.Field)
		if !present {
			continue
		}
		if actual > threshold {
			violations = append(violations, Violation{
				Limit:     rule.Key,
				Field:     rule.Field,
				Threshold: threshold,
				Actual:    actual,
			})
		}
	}

	if len(violations) == 0 {
		return allow(DimensionLimits)
	}

	v := deny(DimensionLimits, CodeLimitExceeded, "request exceeds agent limits")
	v.Violations = violations
	return v
}

// numericField extracts a numeric value from decoded JSON operation data.
func numericField(data map[string]any, field string) (float64, bool) {
	raw, ok := data[field]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
