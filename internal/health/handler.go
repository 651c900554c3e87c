// Package health provides the liveness and readiness endpoints.
package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessChecker reports whether the gateway can currently decide
// requests. This avoids a direct dependency on the directory client.
type ReadinessChecker interface {
	Ready() (ok bool, detail string)
}

// ReadinessFunc adapts a function to the ReadinessChecker interface.
type ReadinessFunc func() (bool, string)

// Ready calls the wrapped function.
func (f ReadinessFunc) Ready() (bool, string) { return f() }

// Handler provides HTTP health check endpoints.
type Handler struct {
	checker ReadinessChecker
	version string
}

// NewHandler creates a health check handler. A nil checker always reports
// ready.
func NewHandler(checker ReadinessChecker, version string) *Handler {
	return &Handler{checker: checker, version: version}
}

// ServeHTTP routes to the appropriate health endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		h.handleLiveness(w, r)
	case "/readyz":
		h.handleReadiness(w, r)
	default:
		http.NotFound(w, r)
	}
}

// LivenessResponse is the JSON response for /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse is the JSON response for /readyz.
type ReadinessResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{
		Status:  "ok",
		Version: h.version,
	})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	ready, detail := true, ""
	if h.checker != nil {
		ready, detail = h.checker.Ready()
	}

	w.Header().Set("Content-Type", "application/json")

	resp := ReadinessResponse{Detail: detail}
	if ready {
		resp.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
