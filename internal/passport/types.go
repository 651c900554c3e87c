// Package passport defines the verified agent passport model and the
// resolver that fetches passports from the directory service through a
// short-TTL cache.
package passport

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is the lifecycle state of a passport. Only active passports
// may be used to authorize requests.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// AssuranceLevel is an ordered identity-verification tier. A higher level
// implies all permissions of the lower levels.
type AssuranceLevel string

const (
	AssuranceL0    AssuranceLevel = "L0"
	AssuranceL1    AssuranceLevel = "L1"
	AssuranceL2    AssuranceLevel = "L2"
	AssuranceL3    AssuranceLevel = "L3"
	AssuranceL4KYC AssuranceLevel = "L4KYC"
)

// assuranceRanks maps levels to their position in the total order.
// "L4" is accepted as a directory-side alias for L4KYC.
var assuranceRanks = map[AssuranceLevel]int{
	AssuranceL0:    0,
	AssuranceL1:    1,
	AssuranceL2:    2,
	AssuranceL3:    3,
	AssuranceL4KYC: 4,
	"L4":           4,
}

func (l AssuranceLevel) rank() (int, bool) {
	r, ok := assuranceRanks[l]
	return r, ok
}

// AtLeast reports whether l satisfies the required minimum level. Unknown
// levels never satisfy a requirement and are never satisfiable: a level the
// gateway cannot place in the order is treated as a denial, not as L0.
func (l AssuranceLevel) AtLeast(required AssuranceLevel) bool {
	lr, lok := l.rank()
	rr, rok := required.rank()
	if !lok || !rok {
		return false
	}
	return lr >= rr
}

// Valid reports whether the level is a known tier.
func (l AssuranceLevel) Valid() bool {
	_, ok := assuranceRanks[l]
	return ok
}

// CapabilityList is a normalized set of capability-id strings. The directory
// may serialize capabilities either as plain strings or as objects with an
// "id" field; both forms normalize to strings at the decode boundary and the
// union never leaks past this type.
type CapabilityList []string

// UnmarshalJSON accepts both string and {"id": "..."} capability entries.
func (c *CapabilityList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("capabilities must be an array: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for i, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			ids = append(ids, s)
			continue
		}
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil && obj.ID != "" {
			ids = append(ids, obj.ID)
			continue
		}
		return fmt.Errorf("capabilities[%d]: expected string or object with id field", i)
	}
	*c = ids
	return nil
}

// Contains reports whether the capability id is present.
func (c CapabilityList) Contains(id string) bool {
	for _, have := range c {
		if have == id {
			return true
		}
	}
	return false
}

// LimitMap maps limit keys to numeric thresholds. Values arrive as JSON
// numbers or numeric strings; non-numeric entries are dropped since the
// evaluators only compare numbers.
type LimitMap map[string]float64

// UnmarshalJSON decodes numeric and numeric-string limit values.
func (m *LimitMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("limits must be an object: %w", err)
	}

	limits := make(map[string]float64, len(raw))
	for key, entry := range raw {
		var n float64
		if err := json.Unmarshal(entry, &n); err == nil {
			limits[key] = n
			continue
		}
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				limits[key] = n
			}
		}
	}
	*m = limits
	return nil
}

// Get returns the threshold for a limit key and whether it is configured.
func (m LimitMap) Get(key string) (float64, bool) {
	v, ok := m[key]
	return v, ok
}

// MCPAttributes is the per-agent allowlist for tool/bridge-mediated calls.
// Empty lists permit everything for that field.
type MCPAttributes struct {
	Servers []string `json:"servers,omitempty"`
	Tools   []string `json:"tools,omitempty"`
}

// Passport is the verified snapshot of an agent's authorization attributes.
// Passports are fetched read-only from the directory and replaced wholesale
// on refresh, never mutated in place.
type Passport struct {
	AgentID        string         `json:"agent_id"`
	Name           string         `json:"name,omitempty"`
	Status         Status         `json:"status"`
	Capabilities   CapabilityList `json:"capabilities"`
	AssuranceLevel AssuranceLevel `json:"assurance_level"`
	Regions        []string       `json:"regions"`
	Limits         LimitMap       `json:"limits"`
	MCP            MCPAttributes  `json:"mcp,omitempty"`
}

// Active reports whether the passport may authorize requests.
func (p *Passport) Active() bool {
	return p.Status == StatusActive
}
