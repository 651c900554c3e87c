// Package enforce implements the five stateless enforcement evaluators:
// capability, assurance, region, limits, and tool/bridge (MCP) gating.
// Evaluators are pure functions returning Verdict values; they never raise
// failures. The decision engine translates verdicts into the outward error
// vocabulary.
package enforce

// Dimension names an enforcement dimension. The decision engine invokes
// evaluators in a fixed dimension order for deterministic diagnostics.
type Dimension string

const (
	DimensionCapability Dimension = "capability"
	DimensionAssurance  Dimension = "assurance"
	DimensionMCP        Dimension = "mcp"
	DimensionRegion     Dimension = "region"
	DimensionLimits     Dimension = "limits"
)

// Violation describes one exceeded limit. All violated limits for an
// operation are collected, never short-circuited.
type Violation struct {
	Limit     string  `json:"limit"`
	Field     string  `json:"field"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
}

// Verdict is the structured outcome of a single enforcement dimension.
// Only the fields relevant to the dimension are populated; a Verdict is
// never persisted.
type Verdict struct {
	Dimension Dimension `json:"dimension"`
	Allowed   bool      `json:"allowed"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`

	// Capability fields.
	Required []string `json:"required,omitempty"`
	Current  []string `json:"current,omitempty"`
	Missing  []string `json:"missing,omitempty"`

	// Assurance fields.
	RequiredLevel       string `json:"required_level,omitempty"`
	CurrentLevel        string `json:"current_level,omitempty"`
	UpgradeInstructions string `json:"upgrade_instructions,omitempty"`
	DocsURL             string `json:"docs_url,omitempty"`

	// Region fields.
	AllowedRegions []string `json:"allowed_regions,omitempty"`
	AgentRegions   []string `json:"agent_regions,omitempty"`

	// Limits fields.
	Violations []Violation `json:"violations,omitempty"`
}

// allow returns a passing verdict for the dimension.
func allow(dim Dimension) Verdict {
	return Verdict{Dimension: dim, Allowed: true}
}

// deny returns a failing verdict with the given stable error code.
func deny(dim Dimension, code, message string) Verdict {
	return Verdict{Dimension: dim, Allowed: false, Code: code, Message: message}
}
