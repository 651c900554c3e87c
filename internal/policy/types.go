// Package policy defines policy packs — named, versioned bundles of
// enforcement requirements — and a TTL-cached store that fetches them from
// the directory service.
package policy

import (
	"fmt"

	"github.com/agentpassport/passgate/internal/passport"
)

// Pack is a named bundle of enforcement requirements, versioned by id
// (e.g. "finance.payment.refund.v1"). Packs are defined externally and
// fetched read-only.
type Pack struct {
	ID                   string                  `json:"id"`
	Name                 string                  `json:"name,omitempty"`
	RequiresCapabilities []string                `json:"requires_capabilities"`
	MinAssurance         passport.AssuranceLevel `json:"min_assurance,omitempty"`
	LimitsRequired       []string                `json:"limits_required,omitempty"`
	Enforcement          Enforcement             `json:"enforcement,omitempty"`
}

// Enforcement holds dimension-specific knobs attached to a pack.
type Enforcement struct {
	// DenyUnmappedRoutes switches the capability evaluator from
	// open-by-default to deny-by-default for routes absent from the
	// route→capability table.
	DenyUnmappedRoutes bool `json:"deny_unmapped_routes,omitempty"`

	// AssuranceOverrides maps path prefixes to minimum assurance levels,
	// consulted before the gateway-wide assurance table.
	AssuranceOverrides map[string]passport.AssuranceLevel `json:"assurance_overrides,omitempty"`

	// Regions restricts the pack to agents permitted in at least one of
	// the listed regions. Empty means no restriction.
	Regions []string `json:"regions,omitempty"`

	// MCP is the allowlist for tool/bridge-mediated calls.
	MCP MCPAllowlist `json:"mcp,omitempty"`
}

// MCPAllowlist names the upstream tool servers and tool actions a pack
// permits. Empty lists permit everything for that field.
type MCPAllowlist struct {
	Servers []string `json:"servers,omitempty"`
	Tools   []string `json:"tools,omitempty"`
}

// HasDailyCap reports whether the pack requires any daily-cap limit key,
// which makes the aggregate decision carry remaining_daily_cap.
func (p *Pack) HasDailyCap() (string, bool) {
	for _, key := range p.LimitsRequired {
		if isDailyCapKey(key) {
			return key, true
		}
	}
	return "", false
}

func isDailyCapKey(key string) bool {
	const suffix = "_daily_cap"
	return len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix
}

// NotFoundError indicates the directory has no pack with the given id.
type NotFoundError struct {
	PolicyID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy: pack %q not found", e.PolicyID)
}
