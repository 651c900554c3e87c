package enforce

// CodeRegionNotAllowed is the stable error code for region denials.
const CodeRegionNotAllowed = "region_not_allowed"

// EvaluateRegion checks that the agent is permitted in at least one of the
// required regions (OR semantics). An empty required set means no region
// restriction and always passes.
func EvaluateRegion(agentRegions, requiredRegions []string) Verdict {
	if len(requiredRegions) == 0 {
		return allow(DimensionRegion)
	}

	for _, required := range requiredRegions {
		for _, have := range agentRegions {
			if have == required {
				return allow(DimensionRegion)
			}
		}
	}

	v := deny(DimensionRegion, CodeRegionNotAllowed,
		"agent is not permitted in any of the required regions")
	v.AllowedRegions = requiredRegions
	v.AgentRegions = agentRegions
	return v
}
