// Package gate is the HTTP glue: it extracts the calling agent's identity
// from a request and wraps handlers with policy enforcement backed by the
// decision engine.
package gate

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	gateerrors "github.com/agentpassport/passgate/internal/errors"
)

// Default identity headers.
const (
	DefaultIDHeader       = "X-Agent-Passport-Id"
	DefaultFallbackHeader = "X-Agent-Id"
)

// Identity source labels recorded in audit entries.
const (
	SourceOption   = "option"
	SourceHeader   = "header"
	SourceFallback = "fallback-header"
	SourceBearer   = "bearer"
)

const jwksFetchTimeout = 10 * time.Second

// IdentityConfig controls how the agent id is extracted from a request.
type IdentityConfig struct {
	// AgentID pins the identity, bypassing header and token extraction.
	// Used when the gateway fronts a single known agent.
	AgentID string

	// Header is the primary identity header. Defaults to
	// X-Agent-Passport-Id.
	Header string

	// FallbackHeader is consulted when the primary header is absent.
	// Defaults to X-Agent-Id.
	FallbackHeader string

	// Bearer JWT validation. When JWKSURL is empty the token signature
	// is not verified and the subject claim is taken as-is.
	Issuer   string
	Audience string
	JWKSURL  string
}

func (c IdentityConfig) headerNames() (primary, fallback string) {
	primary, fallback = c.Header, c.FallbackHeader
	if primary == "" {
		primary = DefaultIDHeader
	}
	if fallback == "" {
		fallback = DefaultFallbackHeader
	}
	return primary, fallback
}

// ExtractAgentID resolves the calling agent's id with fixed precedence:
// pinned option, primary header, fallback header, Bearer token subject.
func ExtractAgentID(r *http.Request, cfg IdentityConfig) (id, source string, err *gateerrors.GateError) {
	if cfg.AgentID != "" {
		return cfg.AgentID, SourceOption, nil
	}

	primary, fallback := cfg.headerNames()
	if v := r.Header.Get(primary); v != "" {
		return v, SourceHeader, nil
	}
	if v := r.Header.Get(fallback); v != "" {
		return v, SourceFallback, nil
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "", gateerrors.ErrMissingAgentID
	}
	scheme, tokenStr := splitAuthHeader(auth)
	if !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
		return "", "", gateerrors.ErrMissingAgentID
	}

	sub, err2 := bearerSubject(r.Context(), tokenStr, cfg)
	if err2 != nil {
		return "", "", gateerrors.ErrMissingAgentID.WithMessage(
			"Bearer token could not be parsed for an agent id")
	}
	if sub == "" {
		return "", "", gateerrors.ErrMissingAgentID
	}
	return sub, SourceBearer, nil
}

// bearerSubject parses the JWT and returns its subject claim, validating
// against the configured JWKS endpoint when one is set.
func bearerSubject(ctx context.Context, tokenStr string, cfg IdentityConfig) (string, error) {
	opts := []jwt.ParseOption{jwt.WithValidate(true)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.JWKSURL != "" {
		fetchCtx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
		defer cancel()
		keySet, err := jwk.Fetch(fetchCtx, cfg.JWKSURL)
		if err != nil {
			return "", err
		}
		opts = append(opts, jwt.WithKeySet(keySet))
	} else {
		opts = append(opts, jwt.WithVerify(false))
	}

	token, err := jwt.Parse([]byte(tokenStr), opts...)
	if err != nil {
		return "", err
	}
	return token.Subject(), nil
}

func splitAuthHeader(header string) (scheme, token string) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", header
}
