// Package audit provides structured decision audit logging with sampling
// and the gateway's Prometheus metrics collector.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentpassport/passgate/internal/ctxkeys"
)

// Logger writes one structured audit record per enforced request.
type Logger struct {
	slogger  *slog.Logger
	sampling SamplingConfig
}

// NewLogger creates an audit logger with the given sampling configuration.
func NewLogger(slogger *slog.Logger, sampling SamplingConfig) *Logger {
	if slogger == nil {
		slogger = slog.Default()
	}
	return &Logger{slogger: slogger, sampling: sampling}
}

// Record logs the audit entry, subject to sampling. Denied and errored
// requests are sampled on the error rate.
func (l *Logger) Record(ctx context.Context, entry ctxkeys.AuditEntry) {
	if !l.sampling.ShouldLog(entry.Status) {
		return
	}

	attrs := []slog.Attr{
		slog.Group("attributes",
			slog.String("gate.agent_id", entry.AgentID),
			slog.String("gate.policy_id", entry.PolicyID),
			slog.String("gate.decision_id", entry.DecisionID),
			slog.String("gate.path", entry.Path),
			slog.String("gate.id_source", entry.IDSource),
			slog.String("gate.status", entry.Status),
			slog.String("gate.code", entry.Code),
			slog.String("gate.dimension", entry.Dimension),
			slog.Bool("gate.cache_hit", entry.CacheHit),
			slog.Time("gate.start_time", entry.StartTime),
		),
	}
	if !entry.StartTime.IsZero() {
		attrs = append(attrs,
			slog.Int64("duration_ms", time.Since(entry.StartTime).Milliseconds()))
	}

	l.slogger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
