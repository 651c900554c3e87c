// Package decision implements the policy decision engine: it composes the
// passport resolver, the policy store, and the enforcement evaluators into
// a single authorization verdict, memoizing allow-decisions in a short-TTL
// cache keyed by agent, policy, and a digest of every evaluator input.
package decision

import (
	"net/http"
	"time"

	"github.com/agentpassport/passgate/internal/enforce"
	"github.com/agentpassport/passgate/internal/passport"
)

// Request carries everything one authorization check needs. Context holds
// the operation data evaluated against the agent's limits (amounts, row
// counts, consumed daily totals).
type Request struct {
	AgentID  string         `json:"agent_id"`
	PolicyID string         `json:"policy_id"`
	Path     string         `json:"path,omitempty"`
	Headers  http.Header    `json:"-"`
	Context  map[string]any `json:"context,omitempty"`
}

// Decision is the aggregate outcome of one authorization check. Denials
// carry the stable code of the first failing dimension plus the verdicts
// evaluated up to and including it; allows carry a synthesized decision id
// and expiry.
type Decision struct {
	DecisionID string `json:"decision_id"`
	Allowed    bool   `json:"allowed"`
	AgentID    string `json:"agent_id"`
	PolicyID   string `json:"policy_id"`

	Code     string            `json:"code,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Verdicts []enforce.Verdict `json:"verdicts,omitempty"`

	ExpiresIn         int64     `json:"expires_in,omitempty"`
	RemainingDailyCap *float64  `json:"remaining_daily_cap,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// Cached marks decisions served from the memoization cache. Not part
	// of the wire format.
	Cached bool `json:"-"`

	// Passport is the verified passport the decision was evaluated
	// against, for downstream handlers. Nil on fail-open allows and on
	// hits served from an external cache store.
	Passport *passport.Passport `json:"-"`
}

// DeniedBy returns the verdict of the dimension that caused the denial,
// or nil for allowed decisions.
func (d *Decision) DeniedBy() *enforce.Verdict {
	if d.Allowed {
		return nil
	}
	for i := range d.Verdicts {
		if !d.Verdicts[i].Allowed {
			return &d.Verdicts[i]
		}
	}
	return nil
}
