// Package server integrates all components into the passgate HTTP server:
// the decision API, the passport debug view, health endpoints, and metrics.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentpassport/passgate/internal/audit"
	"github.com/agentpassport/passgate/internal/config"
	"github.com/agentpassport/passgate/internal/ctxkeys"
	"github.com/agentpassport/passgate/internal/decision"
	"github.com/agentpassport/passgate/internal/directory"
	"github.com/agentpassport/passgate/internal/enforce"
	gateerrors "github.com/agentpassport/passgate/internal/errors"
	"github.com/agentpassport/passgate/internal/gate"
	"github.com/agentpassport/passgate/internal/health"
	"github.com/agentpassport/passgate/internal/passport"
	"github.com/agentpassport/passgate/internal/policy"
)

// Server is the main passgate HTTP server assembling all components.
type Server struct {
	cfg           *config.Config
	mu            sync.Mutex
	httpServer    *http.Server
	directory     *directory.Client
	resolver      *passport.Resolver
	engine        *decision.Engine
	healthHandler *health.Handler
	auditLogger   atomic.Pointer[audit.Logger]
	failClosed    atomic.Bool
	metrics       *audit.Metrics
	identity      gate.IdentityConfig
	logger        *slog.Logger
	version       string
}

// New creates a new Server from configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	logger := buildLogger(cfg)
	metrics := audit.NewMetrics()

	dirClient := directory.NewClient(directory.Options{
		BaseURL:         cfg.Directory.BaseURL,
		APIKey:          cfg.Directory.APIKey,
		Timeout:         cfg.Directory.Timeout.Duration,
		RetryAttempts:   uint(cfg.Directory.RetryAttempts),
		RequestsPerSec:  cfg.Directory.RequestsPerSec,
		BreakerFailures: uint32(cfg.Directory.BreakerFailures),
	}, metrics, logger)

	passportCache := passport.NewCache(cfg.Cache.PassportTTL.Duration, cfg.Cache.MaxEntries)
	resolver := passport.NewResolver(passportCache, dirClient, metrics, logger)
	policyStore := policy.NewStore(dirClient, cfg.Cache.PolicyTTL.Duration, metrics, logger)

	decisionStore, err := buildDecisionStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := decision.NewEngine(
		resolver,
		policyStore,
		decisionStore,
		cfg.Cache.DecisionTTL.Duration,
		buildEnforcement(cfg),
		metrics,
		logger,
	)

	auditLogger := audit.NewLogger(logger, audit.SamplingConfig{
		Rate:      cfg.Logging.Audit.SamplingRate,
		ErrorRate: cfg.Logging.Audit.ErrorSamplingRate,
	})

	srv := &Server{
		cfg:       cfg,
		directory: dirClient,
		resolver:  resolver,
		engine:    engine,
		metrics:   metrics,
		identity: gate.IdentityConfig{
			Header:         cfg.Identity.Header,
			FallbackHeader: cfg.Identity.FallbackHeader,
			Issuer:         cfg.Identity.JWT.Issuer,
			Audience:       cfg.Identity.JWT.Audience,
			JWKSURL:        cfg.Identity.JWT.JWKSURL,
		},
		logger:  logger,
		version: version,
	}
	srv.auditLogger.Store(auditLogger)
	srv.failClosed.Store(cfg.Enforcement.IsFailClosed())
	srv.healthHandler = health.NewHandler(health.ReadinessFunc(srv.readiness), version)
	return srv, nil
}

// OnConfigReload applies reloadable enforcement and sampling changes.
// Implements config.Reloadable.
func (s *Server) OnConfigReload(newCfg *config.Config) error {
	s.engine.SetEnforcement(buildEnforcement(newCfg))
	s.auditLogger.Store(audit.NewLogger(s.logger, audit.SamplingConfig{
		Rate:      newCfg.Logging.Audit.SamplingRate,
		ErrorRate: newCfg.Logging.Audit.ErrorSamplingRate,
	}))
	s.failClosed.Store(newCfg.Enforcement.IsFailClosed())
	s.logger.Info("enforcement configuration reloaded")
	return nil
}

// OnReloadResult records the outcome of a reload attempt, successful or
// not. Wired to the reloader's result callback.
func (s *Server) OnReloadResult(success bool) {
	s.metrics.RecordConfigReload(success)
	if success {
		s.metrics.SetConfigReloadTime(time.Now())
	}
}

// Start begins listening and serving. It blocks until the context is
// canceled or an unrecoverable error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.metrics.SetBuildInfo(s.version, runtime.Version())

	listenAddr := fmt.Sprintf("%s:%d", s.cfg.Listen.Host, s.cfg.Listen.Port)
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}

	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.Timeout.Duration)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()

	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}
	return nil
}

// handler builds the complete HTTP handler.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/decide", s.handleDecide)
	mux.HandleFunc("GET /v1/passports/{id}", s.handlePassportView)
	mux.Handle("/healthz", s.healthHandler)
	mux.Handle("/readyz", s.healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// decideRequest is the wire form of POST /v1/decide.
type decideRequest struct {
	AgentID  string         `json:"agent_id"`
	PolicyID string         `json:"policy_id"`
	Path     string         `json:"path"`
	Context  map[string]any `json:"context"`
}

// handleDecide runs one authorization check. Denials return 200 with
// allowed=false: the caller asked a question and got an answer. Only
// pre-evaluation failures map to error statuses.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	auditor := s.auditLogger.Load()
	entry := &ctxkeys.AuditEntry{Path: "/v1/decide", StartTime: time.Now()}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		entry.Status = "error"
		entry.Code = gateerrors.ErrMalformedContext.Code
		auditor.Record(r.Context(), *entry)
		gateerrors.WriteHTTPError(w, gateerrors.ErrMalformedContext)
		return
	}
	if req.AgentID == "" {
		// Fall back to the caller's own identity headers or token.
		if id, source, gerr := gate.ExtractAgentID(r, s.identity); gerr == nil {
			req.AgentID = id
			entry.IDSource = source
		}
	}
	entry.AgentID = req.AgentID
	entry.PolicyID = req.PolicyID

	d, err := s.engine.Decide(r.Context(), decision.Request{
		AgentID:  req.AgentID,
		PolicyID: req.PolicyID,
		Path:     req.Path,
		Headers:  r.Header,
		Context:  req.Context,
	})
	if err != nil {
		entry.Status = "error"
		var gateErr *gateerrors.GateError
		if stderrors.As(err, &gateErr) {
			entry.Code = gateErr.Code
			auditor.Record(r.Context(), *entry)
			gateerrors.WriteHTTPError(w, gateErr)
			return
		}
		entry.Code = gateerrors.ErrInternal.Code
		auditor.Record(r.Context(), *entry)
		s.logger.Error("decide failed", "error", err)
		gateerrors.WriteHTTPError(w, gateerrors.ErrInternal)
		return
	}

	entry.DecisionID = d.DecisionID
	entry.CacheHit = d.Cached
	if d.Allowed {
		entry.Status = "allow"
	} else {
		entry.Status = "deny"
		entry.Code = d.Code
		if denied := d.DeniedBy(); denied != nil {
			entry.Dimension = string(denied.Dimension)
		}
	}
	auditor.Record(r.Context(), *entry)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(d)
}

// handlePassportView returns the resolver's view of an agent's passport.
// Debug endpoint; responses reflect the cache, not necessarily the
// directory's latest state.
func (s *Server) handlePassportView(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	p, err := s.resolver.Resolve(r.Context(), agentID)
	if err != nil {
		var notFound *passport.NotFoundError
		var revoked *passport.RevokedError
		var dirErr *passport.DirectoryError
		switch {
		case stderrors.As(err, &notFound):
			gateerrors.WriteHTTPError(w, gateerrors.ErrAgentVerification.WithMessage(
				"No passport found for agent "+agentID))
		case stderrors.As(err, &revoked):
			gateerrors.WriteHTTPError(w, gateerrors.ErrAgentVerification.WithMessage(
				"Agent passport is "+string(revoked.Status)))
		case stderrors.As(err, &dirErr):
			gateerrors.WriteHTTPError(w, gateerrors.ErrDirectoryUnavailable)
		default:
			s.logger.Error("passport view failed", "agent_id", agentID, "error", err)
			gateerrors.WriteHTTPError(w, gateerrors.ErrInternal)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(p)
}

// readiness reports not-ready while the directory breaker is open and the
// gateway would deny everything under fail-closed.
func (s *Server) readiness() (bool, string) {
	open := s.directory.BreakerOpen()
	s.metrics.SetBreakerOpen(open)
	if open && s.failClosed.Load() {
		return false, "directory breaker open"
	}
	return true, ""
}

// buildDecisionStore selects the memory or Redis decision store.
func buildDecisionStore(cfg *config.Config, logger *slog.Logger) (decision.Store, error) {
	switch cfg.Cache.Store {
	case "redis":
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing cache.redis_url: %w", err)
		}
		client := redis.NewClient(opts)
		return decision.NewRedisStore(client, cfg.Cache.DecisionTTL.Duration, logger), nil
	default:
		return decision.NewMemoryStore(cfg.Cache.DecisionTTL.Duration, cfg.Cache.MaxEntries), nil
	}
}

// buildEnforcement translates configuration tables into the engine's
// evaluator configuration. Empty operation and limit tables fall back to
// the built-in classification.
func buildEnforcement(cfg *config.Config) decision.EnforcementConfig {
	capRoutes := make(map[string][]string)
	assuranceRoutes := make(map[string]passport.AssuranceLevel)
	for _, route := range cfg.Enforcement.Routes {
		if len(route.Capabilities) > 0 {
			capRoutes[route.Prefix] = route.Capabilities
		}
		if route.MinAssurance != "" {
			assuranceRoutes[route.Prefix] = passport.AssuranceLevel(route.MinAssurance)
		}
	}

	operations := enforce.DefaultOperationTable()
	if len(cfg.Enforcement.Operations) > 0 {
		table := make(map[string]string, len(cfg.Enforcement.Operations))
		for _, op := range cfg.Enforcement.Operations {
			table[op.Prefix] = op.Type
		}
		operations = enforce.NewPrefixTable(table)
	}

	rules := enforce.DefaultLimitRules()
	for opType, configured := range cfg.Enforcement.LimitRules {
		bound := make([]enforce.LimitRule, 0, len(configured))
		for _, rule := range configured {
			bound = append(bound, enforce.LimitRule{Key: rule.Key, Field: rule.Field})
		}
		rules[opType] = bound
	}

	return decision.EnforcementConfig{
		Capability: enforce.CapabilityConfig{
			Routes:       enforce.NewPrefixTable(capRoutes),
			DenyUnmapped: cfg.Enforcement.DenyUnmappedRoutes,
		},
		Assurance: enforce.AssuranceConfig{
			Routes: enforce.NewPrefixTable(assuranceRoutes),
		},
		Limits: enforce.LimitsConfig{
			Operations: operations,
			Rules:      rules,
		},
		MCP: enforce.MCPConfig{
			ServerHeader: cfg.Enforcement.MCP.ServerHeader,
			ToolHeader:   cfg.Enforcement.MCP.ToolHeader,
		},
		FailClosed: cfg.Enforcement.IsFailClosed(),
	}
}

// buildLogger creates an slog.Logger based on configuration.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var output *os.File
	switch cfg.Logging.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}

