package enforce

import (
	"fmt"
	"strings"

	"github.com/agentpassport/passgate/internal/passport"
)

// CodeInsufficientAssurance is the stable error code for assurance denials.
const CodeInsufficientAssurance = "insufficient_assurance"

// assuranceDocsURL points at the upgrade documentation included in denials.
const assuranceDocsURL = "https://passgate.dev/docs/assurance"

// upgradeInstructions holds the static per-level upgrade pointer included
// in denial verdicts. The text is fixed, never computed.
var upgradeInstructions = map[passport.AssuranceLevel]string{
	passport.AssuranceL1:    "Verify an email address for the agent owner to reach L1",
	passport.AssuranceL2:    "Verify the controlling organization's domain to reach L2",
	passport.AssuranceL3:    "Complete business verification for the controlling organization to reach L3",
	passport.AssuranceL4KYC: "Complete KYC verification for the agent owner to reach L4KYC",
}

// AssuranceConfig holds the route→minimum-level table plus per-policy
// overrides consulted first.
type AssuranceConfig struct {
	// Routes maps path prefixes to required assurance levels. Unmapped
	// paths require L0, the lowest tier.
	Routes *PrefixTable[passport.AssuranceLevel]

	// Overrides are per-policy path-prefix overrides taking precedence
	// over the gateway-wide table. Longest prefix wins.
	Overrides map[string]passport.AssuranceLevel

	// Minimum is the policy pack's floor, applied whenever it is
	// stricter than the route requirement.
	Minimum passport.AssuranceLevel
}

// EvaluateAssurance compares the agent's level against the requirement for
// the route using the total order over assurance levels.
func EvaluateAssurance(agentLevel passport.AssuranceLevel, path string, cfg AssuranceConfig) Verdict {
	required := requiredAssurance(path, cfg)

	if agentLevel.AtLeast(required) {
		return allow(DimensionAssurance)
	}

	v := deny(DimensionAssurance, CodeInsufficientAssurance,
		fmt.Sprintf("this operation requires assurance level %s", required))
	v.RequiredLevel = string(required)
	v.CurrentLevel = string(agentLevel)
	v.UpgradeInstructions = upgradeInstructions[required]
	v.DocsURL = assuranceDocsURL
	return v
}

// requiredAssurance looks up the minimum level for the path: policy
// overrides first, then the gateway table, defaulting to L0.
func requiredAssurance(path string, cfg AssuranceConfig) passport.AssuranceLevel {
	if len(cfg.Overrides) > 0 {
		best := ""
		level := passport.AssuranceL0
		for prefix, l := range cfg.Overrides {
			if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
				best = prefix
				level = l
			}
		}
		if best != "" {
			return level
		}
	}
	required := passport.AssuranceL0
	if cfg.Routes != nil {
		if level, ok := cfg.Routes.Resolve(path); ok {
			required = level
		}
	}
	if cfg.Minimum != "" && !required.AtLeast(cfg.Minimum) {
		required = cfg.Minimum
	}
	return required
}
