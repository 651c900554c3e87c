package enforce

import (
	"fmt"

	"github.com/agentpassport/passgate/internal/passport"
)

// CodeInsufficientCapabilities is the stable error code for capability denials.
const CodeInsufficientCapabilities = "insufficient_capabilities"

// CapabilityConfig holds the route→capability mapping table and the policy
// for routes absent from it.
type CapabilityConfig struct {
	// Routes maps path prefixes to the capability set required for them.
	Routes *PrefixTable[[]string]

	// Required is the policy pack's capability set, demanded in full
	// regardless of the route.
	Required []string

	// DenyUnmapped switches unmapped routes from open-by-default (the
	// default, so unclassified routes keep working) to deny-by-default.
	DenyUnmapped bool
}

// EvaluateCapability checks the agent's capability set against the
// requirement for the route. The verdict lists every missing capability.
func EvaluateCapability(path string, agentCaps passport.CapabilityList, cfg CapabilityConfig) Verdict {
	required := append([]string(nil), cfg.Required...)
	if cfg.Routes != nil {
		if caps, ok := cfg.Routes.Resolve(path); ok {
			for _, cap := range caps {
				if !containsString(required, cap) {
					required = append(required, cap)
				}
			}
		} else if cfg.DenyUnmapped && len(cfg.Required) == 0 {
			v := deny(DimensionCapability, CodeInsufficientCapabilities,
				fmt.Sprintf("route %q has no capability mapping and unmapped routes are denied", path))
			v.Current = agentCaps
			return v
		}
	}

	if len(required) == 0 {
		return allow(DimensionCapability)
	}

	var missing []string
	for _, cap := range required {
		if !agentCaps.Contains(cap) {
			missing = append(missing, cap)
		}
	}
	if len(missing) == 0 {
		return allow(DimensionCapability)
	}

	v := deny(DimensionCapability, CodeInsufficientCapabilities,
		"agent does not have the required capabilities for this route")
	v.Required = required
	v.Missing = missing
	v.Current = agentCaps
	return v
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
