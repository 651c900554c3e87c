// Package errors defines the stable outward error vocabulary of the gateway.
// Every error carries a snake_case code consumed by machine callers, plus a
// Hint and DocsURL for developer guidance.
package errors

import "fmt"

// GateError is the base error type for all gateway errors.
type GateError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	DocsURL string `json:"docs_url,omitempty"`
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%s] %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithMessage returns a copy of the error with the message replaced.
// The predefined sentinel values are never mutated.
func (e *GateError) WithMessage(msg string) *GateError {
	clone := *e
	clone.Message = msg
	return &clone
}

// Predefined errors — codes are part of the public contract and must not change.
var (
	ErrMissingAgentID       = &GateError{Status: 400, Code: "missing_agent_id", Message: "Agent ID is required", Hint: "Provide it as the X-Agent-Passport-Id header or a Bearer token", DocsURL: "https://passgate.dev/docs/identity"}
	ErrMalformedContext     = &GateError{Status: 400, Code: "malformed_context", Message: "Request context could not be parsed", Hint: "Context must be a JSON object of operation fields", DocsURL: "https://passgate.dev/docs/context"}
	ErrAgentVerification    = &GateError{Status: 401, Code: "agent_verification_failed", Message: "Agent passport could not be verified", Hint: "Check that the agent exists and its passport status is active", DocsURL: "https://passgate.dev/docs/passports"}
	ErrPolicyNotFound       = &GateError{Status: 404, Code: "policy_not_found", Message: "Policy pack not found", Hint: "Check the policy id including its version suffix (e.g. finance.payment.refund.v1)", DocsURL: "https://passgate.dev/docs/policies"}
	ErrPolicyAccess         = &GateError{Status: 403, Code: "policy_access_denied", Message: "Agent does not hold any capability required by this policy", Hint: "Grant one of the policy's required capabilities to the agent", DocsURL: "https://passgate.dev/docs/capabilities"}
	ErrDirectoryUnavailable = &GateError{Status: 503, Code: "directory_unavailable", Message: "Passport directory is unreachable", Hint: "Check directory.base_url and network connectivity; see enforcement.fail_closed", DocsURL: "https://passgate.dev/docs/directory"}
	ErrInternal             = &GateError{Status: 500, Code: "internal_error", Message: "Internal server error"}
)
