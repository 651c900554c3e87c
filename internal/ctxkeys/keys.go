// Package ctxkeys defines context keys for passing data through the request
// pipeline. All context keys are unexported to prevent collisions. Use the
// With*/From accessor pairs.
package ctxkeys

import (
	"context"
	"time"

	"github.com/agentpassport/passgate/internal/decision"
	"github.com/agentpassport/passgate/internal/passport"
)

// ── Key types (unexported, collision-proof) ──

type agentIDKey struct{}
type passportKey struct{}
type decisionKey struct{}
type auditEntryKey struct{}

// ── Data types ──

// AuditEntry holds audit log data accumulated during request processing.
type AuditEntry struct {
	AgentID    string
	PolicyID   string
	DecisionID string
	Path       string
	IDSource   string // "header", "fallback-header", "bearer", "option"
	Status     string // "allow", "deny", "error"
	Code       string
	Dimension  string
	CacheHit   bool
	StartTime  time.Time
}

// ── Getter/Setter (With*/From pattern) ──

// WithAgentID stores the resolved agent id in the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey{}, agentID)
}

// AgentIDFrom retrieves the agent id from the context.
func AgentIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(agentIDKey{}).(string)
	return id, ok
}

// WithPassport stores the verified passport in the context.
func WithPassport(ctx context.Context, p *passport.Passport) context.Context {
	return context.WithValue(ctx, passportKey{}, p)
}

// PassportFrom retrieves the verified passport from the context.
func PassportFrom(ctx context.Context) (*passport.Passport, bool) {
	p, ok := ctx.Value(passportKey{}).(*passport.Passport)
	return p, ok
}

// WithDecision stores the authorization decision in the context.
func WithDecision(ctx context.Context, d *decision.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFrom retrieves the authorization decision from the context.
func DecisionFrom(ctx context.Context) (*decision.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*decision.Decision)
	return d, ok
}

// WithAuditEntry stores an AuditEntry pointer in the context.
func WithAuditEntry(ctx context.Context, entry *AuditEntry) context.Context {
	return context.WithValue(ctx, auditEntryKey{}, entry)
}

// AuditEntryFrom retrieves the AuditEntry pointer from the context.
func AuditEntryFrom(ctx context.Context) (*AuditEntry, bool) {
	entry, ok := ctx.Value(auditEntryKey{}).(*AuditEntry)
	return entry, ok
}
