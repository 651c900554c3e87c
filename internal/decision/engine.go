package decision

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentpassport/passgate/internal/enforce"
	gateerrors "github.com/agentpassport/passgate/internal/errors"
	"github.com/agentpassport/passgate/internal/passport"
	"github.com/agentpassport/passgate/internal/policy"
)

// dailyConsumedField is the context key carrying the agent's consumed
// daily total, maintained by an external ledger.
const dailyConsumedField = "daily_consumed"

// PassportResolver yields the active passport for an agent.
type PassportResolver interface {
	Resolve(ctx context.Context, agentID string) (*passport.Passport, error)
}

// PolicySource yields policy packs by id.
type PolicySource interface {
	Get(ctx context.Context, policyID string) (*policy.Pack, error)
}

// Metrics records decision outcomes. All methods must be safe for
// concurrent use.
type Metrics interface {
	RecordDecision(policyID, outcome, code string)
	ObserveDecisionDuration(policyID string, seconds float64)
	RecordCacheLookup(cache string, hit bool)
	RecordEvaluatorDenial(dimension string)
}

// EnforcementConfig is the gateway-wide evaluator configuration. Policy
// packs layer their own requirements on top per decision. The engine holds
// it behind an atomic pointer so config reloads swap it without locking
// the decision path.
type EnforcementConfig struct {
	Capability enforce.CapabilityConfig
	Assurance  enforce.AssuranceConfig
	Limits     enforce.LimitsConfig
	MCP        enforce.MCPConfig

	// FailClosed denies with directory_unavailable when the directory
	// cannot be reached. When false the gateway fails open: the request
	// is allowed without verification and the decision is not cached.
	FailClosed bool
}

// Engine composes resolver, policy store, evaluators, and decision cache
// into the Decide operation.
type Engine struct {
	resolver PassportResolver
	policies PolicySource
	store    Store
	ttl      time.Duration
	cfg      atomic.Pointer[EnforcementConfig]
	metrics  Metrics
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// NewEngine creates an Engine. metrics may be nil; a nil logger is replaced
// with slog.Default().
func NewEngine(resolver PassportResolver, policies PolicySource, store Store, ttl time.Duration, cfg EnforcementConfig, metrics Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		resolver: resolver,
		policies: policies,
		store:    store,
		ttl:      ttl,
		metrics:  metrics,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	e.cfg.Store(&cfg)
	return e
}

// SetEnforcement replaces the evaluator configuration. In-flight decisions
// keep the snapshot they started with.
func (e *Engine) SetEnforcement(cfg EnforcementConfig) {
	e.cfg.Store(&cfg)
}

// Decide runs one authorization check. Denials by an enforcement dimension
// are returned as a Decision with Allowed=false; pre-evaluation failures
// (unknown agent, unknown policy, unreachable directory under fail-closed)
// are returned as *errors.GateError values.
func (e *Engine) Decide(ctx context.Context, req Request) (*Decision, error) {
	start := e.now()
	cfg := e.cfg.Load()

	if req.AgentID == "" {
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrMissingAgentID.Code)
		return nil, gateerrors.ErrMissingAgentID
	}

	mcpServer, mcpTool := cfg.MCP.HeaderValues(req.Headers)
	key := CacheKey(req.AgentID, req.PolicyID, req.Path, mcpServer, mcpTool, req.Context)
	if cached, ok := e.store.Get(ctx, key); ok {
		e.recordCacheLookup(true)
		e.recordDecision(req.PolicyID, "allow", "")
		e.observeDuration(req.PolicyID, start)
		hit := *cached
		hit.Cached = true
		return &hit, nil
	}
	e.recordCacheLookup(false)

	p, err := e.resolver.Resolve(ctx, req.AgentID)
	if err != nil {
		return e.resolveFailure(req, cfg, err, start)
	}

	pack, err := e.policies.Get(ctx, req.PolicyID)
	if err != nil {
		return e.policyFailure(req, cfg, err, start)
	}

	if !holdsAnyCapability(p.Capabilities, pack.RequiresCapabilities) {
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrPolicyAccess.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrPolicyAccess
	}

	d := e.evaluate(req, p, pack, cfg)
	d.DecisionID = e.newID()
	d.CreatedAt = e.now()

	if d.Allowed {
		d.ExpiresIn = int64(e.ttl.Seconds())
		e.attachRemainingCap(d, p, pack, req.Context)
		e.store.Put(ctx, key, d)
		e.recordDecision(req.PolicyID, "allow", "")
	} else {
		denied := d.DeniedBy()
		e.recordDecision(req.PolicyID, "deny", denied.Code)
		e.recordEvaluatorDenial(string(denied.Dimension))
		e.logger.Info("request denied",
			"agent_id", req.AgentID,
			"policy_id", req.PolicyID,
			"dimension", string(denied.Dimension),
			"code", denied.Code,
		)
	}
	e.observeDuration(req.PolicyID, start)
	return d, nil
}

// evaluate runs the five dimensions in fixed order, stopping at the first
// denial. The limits dimension internally collects every violated limit.
func (e *Engine) evaluate(req Request, p *passport.Passport, pack *policy.Pack, cfg *EnforcementConfig) *Decision {
	d := &Decision{
		Allowed:  true,
		AgentID:  req.AgentID,
		PolicyID: req.PolicyID,
		Passport: p,
	}

	capCfg := cfg.Capability
	capCfg.Required = pack.RequiresCapabilities
	capCfg.DenyUnmapped = capCfg.DenyUnmapped || pack.Enforcement.DenyUnmappedRoutes

	assuranceCfg := cfg.Assurance
	assuranceCfg.Minimum = pack.MinAssurance
	if len(pack.Enforcement.AssuranceOverrides) > 0 {
		assuranceCfg.Overrides = pack.Enforcement.AssuranceOverrides
	}

	servers, tools := mcpAllowlists(p, pack)

	steps := []func() enforce.Verdict{
		func() enforce.Verdict { return enforce.EvaluateCapability(req.Path, p.Capabilities, capCfg) },
		func() enforce.Verdict { return enforce.EvaluateAssurance(p.AssuranceLevel, req.Path, assuranceCfg) },
		func() enforce.Verdict { return enforce.EvaluateMCP(req.Headers, servers, tools, cfg.MCP) },
		func() enforce.Verdict { return enforce.EvaluateRegion(p.Regions, pack.Enforcement.Regions) },
		func() enforce.Verdict {
			op := enforce.ClassifyOperation(req.Path, cfg.Limits)
			return enforce.EvaluateLimits(op, p.Limits, req.Context, cfg.Limits)
		},
	}
	for _, step := range steps {
		v := step()
		d.Verdicts = append(d.Verdicts, v)
		if !v.Allowed {
			d.Allowed = false
			d.Code = v.Code
			d.Reason = v.Message
			break
		}
	}
	return d
}

// resolveFailure maps passport resolution errors to the outward taxonomy,
// honoring fail-open for directory outages.
func (e *Engine) resolveFailure(req Request, cfg *EnforcementConfig, err error, start time.Time) (*Decision, error) {
	var notFound *passport.NotFoundError
	var revoked *passport.RevokedError
	var dirErr *passport.DirectoryError

	switch {
	case stderrors.As(err, &notFound):
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrAgentVerification.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrAgentVerification
	case stderrors.As(err, &revoked):
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrAgentVerification.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrAgentVerification.WithMessage(
			"Agent passport is " + string(revoked.Status))
	case stderrors.As(err, &dirErr):
		return e.directoryOutage(req, cfg, err, start)
	default:
		e.logger.Error("passport resolution failed", "agent_id", req.AgentID, "error", err)
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrInternal.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrInternal
	}
}

// policyFailure maps policy fetch errors to the outward taxonomy.
func (e *Engine) policyFailure(req Request, cfg *EnforcementConfig, err error, start time.Time) (*Decision, error) {
	var notFound *policy.NotFoundError
	var dirErr *passport.DirectoryError

	switch {
	case stderrors.As(err, &notFound):
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrPolicyNotFound.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrPolicyNotFound
	case stderrors.As(err, &dirErr):
		return e.directoryOutage(req, cfg, err, start)
	default:
		e.logger.Error("policy fetch failed", "policy_id", req.PolicyID, "error", err)
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrInternal.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrInternal
	}
}

// directoryOutage applies fail-closed or fail-open when the directory
// cannot answer. Fail-open decisions are unverified and never cached.
func (e *Engine) directoryOutage(req Request, cfg *EnforcementConfig, err error, start time.Time) (*Decision, error) {
	if cfg.FailClosed {
		e.logger.Warn("directory unavailable, failing closed",
			"agent_id", req.AgentID,
			"policy_id", req.PolicyID,
			"error", err,
		)
		e.recordDecision(req.PolicyID, "error", gateerrors.ErrDirectoryUnavailable.Code)
		e.observeDuration(req.PolicyID, start)
		return nil, gateerrors.ErrDirectoryUnavailable
	}

	e.logger.Warn("directory unavailable, failing open",
		"agent_id", req.AgentID,
		"policy_id", req.PolicyID,
		"error", err,
	)
	e.recordDecision(req.PolicyID, "allow", "fail_open")
	e.observeDuration(req.PolicyID, start)
	return &Decision{
		DecisionID: e.newID(),
		Allowed:    true,
		AgentID:    req.AgentID,
		PolicyID:   req.PolicyID,
		Reason:     "directory unavailable; allowed by fail-open configuration",
		CreatedAt:  e.now(),
	}, nil
}

// attachRemainingCap computes remaining_daily_cap for packs that require a
// daily-cap limit: the passport's cap minus the consumed total supplied in
// the request context, floored at zero.
func (e *Engine) attachRemainingCap(d *Decision, p *passport.Passport, pack *policy.Pack, context map[string]any) {
	capKey, ok := pack.HasDailyCap()
	if !ok {
		return
	}
	capValue, ok := p.Limits.Get(capKey)
	if !ok {
		return
	}
	consumed, _ := contextNumber(context, dailyConsumedField)
	remaining := capValue - consumed
	if remaining < 0 {
		remaining = 0
	}
	d.RemainingDailyCap = &remaining
}

// holdsAnyCapability is the coarse access gate: the agent must hold at
// least one of the policy's required capabilities to be evaluated at all.
func holdsAnyCapability(agentCaps passport.CapabilityList, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, cap := range required {
		if agentCaps.Contains(cap) {
			return true
		}
	}
	return false
}

// mcpAllowlists selects the tool/bridge allowlists: the pack's when it
// defines any, the passport's attestation otherwise.
func mcpAllowlists(p *passport.Passport, pack *policy.Pack) (servers, tools []string) {
	mcp := pack.Enforcement.MCP
	if len(mcp.Servers) > 0 || len(mcp.Tools) > 0 {
		return mcp.Servers, mcp.Tools
	}
	return p.MCP.Servers, p.MCP.Tools
}

func contextNumber(data map[string]any, field string) (float64, bool) {
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
	}
	return 0, false
}

func (e *Engine) recordDecision(policyID, outcome, code string) {
	if e.metrics != nil {
		e.metrics.RecordDecision(policyID, outcome, code)
	}
}

func (e *Engine) observeDuration(policyID string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveDecisionDuration(policyID, e.now().Sub(start).Seconds())
	}
}

func (e *Engine) recordCacheLookup(hit bool) {
	if e.metrics != nil {
		e.metrics.RecordCacheLookup("decision", hit)
	}
}

func (e *Engine) recordEvaluatorDenial(dimension string) {
	if e.metrics != nil {
		e.metrics.RecordEvaluatorDenial(dimension)
	}
}
