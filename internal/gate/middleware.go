package gate

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agentpassport/passgate/internal/ctxkeys"
	"github.com/agentpassport/passgate/internal/decision"
	gateerrors "github.com/agentpassport/passgate/internal/errors"
)

// maxContextBody bounds how much of a request body is decoded as operation
// context.
const maxContextBody = 1 << 20

// Decider runs one authorization check.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (*decision.Decision, error)
}

// AuditSink receives one entry per enforced request.
type AuditSink interface {
	Record(ctx context.Context, entry ctxkeys.AuditEntry)
}

// Middleware enforces policy packs on inbound requests.
type Middleware struct {
	decider  Decider
	identity IdentityConfig
	skip     map[string]bool
	audit    AuditSink
	logger   *slog.Logger
}

// Options configures the Middleware.
type Options struct {
	Identity IdentityConfig

	// SkipPaths are exact paths excluded from enforcement (health checks,
	// metrics).
	SkipPaths []string

	// Audit may be nil.
	Audit AuditSink
}

// NewMiddleware creates a Middleware around a decision engine.
func NewMiddleware(decider Decider, opts Options, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}
	return &Middleware{
		decider:  decider,
		identity: opts.Identity,
		skip:     skip,
		audit:    opts.Audit,
		logger:   logger,
	}
}

// RequirePolicy wraps a handler so it only runs when the calling agent is
// allowed under the given policy pack. Denials and verification failures
// are written as JSON error responses; allowed requests proceed with the
// agent id and decision attached to the request context.
func (m *Middleware) RequirePolicy(policyID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			entry := &ctxkeys.AuditEntry{
				PolicyID:  policyID,
				Path:      r.URL.Path,
				StartTime: time.Now(),
			}

			agentID, source, gerr := ExtractAgentID(r, m.identity)
			if gerr != nil {
				entry.Status = "error"
				entry.Code = gerr.Code
				m.record(r.Context(), entry)
				gateerrors.WriteHTTPError(w, gerr)
				return
			}
			entry.AgentID = agentID
			entry.IDSource = source

			opContext, gerr := operationContext(r)
			if gerr != nil {
				entry.Status = "error"
				entry.Code = gerr.Code
				m.record(r.Context(), entry)
				gateerrors.WriteHTTPError(w, gerr)
				return
			}

			d, err := m.decider.Decide(r.Context(), decision.Request{
				AgentID:  agentID,
				PolicyID: policyID,
				Path:     r.URL.Path,
				Headers:  r.Header,
				Context:  opContext,
			})
			if err != nil {
				entry.Status = "error"
				var gateErr *gateerrors.GateError
				if stderrors.As(err, &gateErr) {
					entry.Code = gateErr.Code
					m.record(r.Context(), entry)
					gateerrors.WriteHTTPError(w, gateErr)
					return
				}
				entry.Code = gateerrors.ErrInternal.Code
				m.record(r.Context(), entry)
				m.logger.Error("decision failed", "policy_id", policyID, "error", err)
				gateerrors.WriteHTTPError(w, gateerrors.ErrInternal)
				return
			}

			entry.DecisionID = d.DecisionID
			entry.CacheHit = d.Cached
			if !d.Allowed {
				entry.Status = "deny"
				entry.Code = d.Code
				if denied := d.DeniedBy(); denied != nil {
					entry.Dimension = string(denied.Dimension)
				}
				m.record(r.Context(), entry)
				writeDenial(w, d)
				return
			}

			entry.Status = "allow"
			ctx := ctxkeys.WithAgentID(r.Context(), agentID)
			ctx = ctxkeys.WithDecision(ctx, d)
			if d.Passport != nil {
				ctx = ctxkeys.WithPassport(ctx, d.Passport)
			}
			ctx = ctxkeys.WithAuditEntry(ctx, entry)
			m.record(ctx, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// operationContext decodes a JSON request body into the operation data map
// evaluated against the agent's limits. The body is restored so the next
// handler can still read it.
func operationContext(r *http.Request) (map[string]any, *gateerrors.GateError) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if ct := r.Header.Get("Content-Type"); !hasJSONContentType(ct) {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxContextBody))
	if err != nil {
		return nil, gateerrors.ErrMalformedContext
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, gateerrors.ErrMalformedContext
	}
	return data, nil
}

func hasJSONContentType(ct string) bool {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct) == "application/json"
}

func writeDenial(w http.ResponseWriter, d *decision.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(d)
}

func (m *Middleware) record(ctx context.Context, entry *ctxkeys.AuditEntry) {
	if m.audit != nil {
		m.audit.Record(ctx, *entry)
	}
}
