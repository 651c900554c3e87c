package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentpassport/passgate/internal/config"
	"github.com/agentpassport/passgate/internal/decision"
)

// fakeDirectory serves the minimal passport and policy API surface the
// gateway needs.
func fakeDirectory(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/passports/agt_1":
			json.NewEncoder(w).Encode(map[string]any{
				"agent_id":        "agt_1",
				"status":          "active",
				"capabilities":    []string{"finance.payment.refund"},
				"assurance_level": "L2",
				"regions":         []string{"US"},
				"limits": map[string]any{
					"refund_amount_max_per_tx": 100000,
					"refund_amount_daily_cap":  500000,
				},
			})
		case "/api/policies/finance.payment.refund.v1":
			json.NewEncoder(w).Encode(map[string]any{
				"id":                    "finance.payment.refund.v1",
				"requires_capabilities": []string{"finance.payment.refund"},
				"min_assurance":         "L2",
				"limits_required":       []string{"refund_amount_max_per_tx", "refund_amount_daily_cap"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestServer(t *testing.T, dirURL string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Directory.BaseURL = dirURL

	srv, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postDecide(t *testing.T, url string, body map[string]any, headers map[string]string) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url+"/v1/decide", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeDecision(t *testing.T, resp *http.Response) decision.Decision {
	t.Helper()
	defer resp.Body.Close()
	var d decision.Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decoding decision: %v", err)
	}
	return d
}

func TestServer_DecideAllow(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp := postDecide(t, ts.URL, map[string]any{
		"agent_id":  "agt_1",
		"policy_id": "finance.payment.refund.v1",
		"path":      "/refund",
		"context":   map[string]any{"amount_cents": 500, "daily_consumed": 100000},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if !d.Allowed {
		t.Fatalf("allowed = false, code = %s reason = %s", d.Code, d.Reason)
	}
	if d.DecisionID == "" {
		t.Error("decision_id is empty")
	}
	if d.RemainingDailyCap == nil || *d.RemainingDailyCap != 400000 {
		t.Errorf("remaining_daily_cap = %v, want 400000", d.RemainingDailyCap)
	}
}

func TestServer_DecideDenyIsStillOK(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp := postDecide(t, ts.URL, map[string]any{
		"agent_id":  "agt_1",
		"policy_id": "finance.payment.refund.v1",
		"path":      "/refund",
		"context":   map[string]any{"amount_cents": 150000},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a denial", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if d.Allowed {
		t.Fatal("allowed = true, want denial")
	}
	if d.Code != "limit_exceeded" {
		t.Errorf("code = %s, want limit_exceeded", d.Code)
	}
}

func TestServer_DecideIdentityFallback(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp := postDecide(t, ts.URL, map[string]any{
		"policy_id": "finance.payment.refund.v1",
		"path":      "/refund",
		"context":   map[string]any{"amount_cents": 500},
	}, map[string]string{"X-Agent-Passport-Id": "agt_1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if d := decodeDecision(t, resp); !d.Allowed {
		t.Errorf("allowed = false, code = %s", d.Code)
	}
}

func TestServer_DecideMissingAgentID(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp := postDecide(t, ts.URL, map[string]any{
		"policy_id": "finance.payment.refund.v1",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != "missing_agent_id" {
		t.Errorf("code = %v, want missing_agent_id", body["code"])
	}
}

func TestServer_DecideUnknownAgent(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp := postDecide(t, ts.URL, map[string]any{
		"agent_id":  "agt_ghost",
		"policy_id": "finance.payment.refund.v1",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestServer_DecideUnknownPolicy(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp := postDecide(t, ts.URL, map[string]any{
		"agent_id":  "agt_1",
		"policy_id": "no.such.pack.v1",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_DecideMalformedBody(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp, err := http.Post(ts.URL+"/v1/decide", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_PassportView(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	resp, err := http.Get(ts.URL + "/v1/passports/agt_1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["agent_id"] != "agt_1" {
		t.Errorf("agent_id = %v", body["agent_id"])
	}

	resp, err = http.Get(ts.URL + "/v1/passports/agt_ghost")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown agent status = %d, want 401", resp.StatusCode)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	_, ts := newTestServer(t, dir.URL)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}

	postDecide(t, ts.URL, map[string]any{
		"agent_id":  "agt_1",
		"policy_id": "finance.payment.refund.v1",
		"path":      "/refund",
		"context":   map[string]any{"amount_cents": 500},
	}, nil).Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `passgate_decisions_total{code="",outcome="allow",policy="finance.payment.refund.v1"} 1`) {
		t.Errorf("metrics missing decision counter:\n%s", raw)
	}
}

func TestServer_OnConfigReload(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	srv, ts := newTestServer(t, dir.URL)

	// Require a capability the agent lacks on /refund; the next decision
	// must pick up the new table.
	newCfg := &config.Config{}
	config.ApplyDefaults(newCfg)
	newCfg.Directory.BaseURL = dir.URL
	newCfg.Enforcement.Routes = []config.RouteConfig{
		{Prefix: "/refund", Capabilities: []string{"finance.payment.capture"}},
	}
	if err := srv.OnConfigReload(newCfg); err != nil {
		t.Fatalf("OnConfigReload: %v", err)
	}

	resp := postDecide(t, ts.URL, map[string]any{
		"agent_id":  "agt_1",
		"policy_id": "finance.payment.refund.v1",
		"path":      "/refund",
		"context":   map[string]any{"amount_cents": 500},
	}, nil)
	d := decodeDecision(t, resp)
	if d.Allowed || d.Code != "insufficient_capabilities" {
		t.Errorf("decision = allowed %t code %s, want capability denial", d.Allowed, d.Code)
	}
}

func TestServer_OnReloadResult(t *testing.T) {
	dir := fakeDirectory(t)
	defer dir.Close()
	srv, ts := newTestServer(t, dir.URL)

	srv.OnReloadResult(true)
	srv.OnReloadResult(false)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`passgate_config_reloads_total{result="success"} 1`,
		`passgate_config_reloads_total{result="failure"} 1`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("metrics missing %s:\n%s", want, raw)
		}
	}
}

func TestBuildEnforcement_Defaults(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	ec := buildEnforcement(cfg)
	if !ec.FailClosed {
		t.Error("FailClosed = false, want true by default")
	}
	if ec.Limits.Operations == nil || ec.Limits.Rules == nil {
		t.Error("limit classification tables should default, not be nil")
	}
	if got, ok := ec.Limits.Operations.Resolve("/refund/123"); !ok || got != "refund" {
		t.Errorf("operation for /refund/123 = %q (%t), want refund", got, ok)
	}
}

func TestBuildEnforcement_ConfiguredTables(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Enforcement.Operations = []config.OperationConfig{
		{Prefix: "/v2/payouts", Type: "payout"},
	}
	cfg.Enforcement.LimitRules = map[string][]config.LimitRuleConfig{
		"payout": {{Key: "payout_amount_max_per_tx", Field: "amount_cents"}},
	}

	ec := buildEnforcement(cfg)
	if got, ok := ec.Limits.Operations.Resolve("/v2/payouts/55"); !ok || got != "payout" {
		t.Errorf("operation = %q (%t), want payout", got, ok)
	}
	rules := ec.Limits.Rules["payout"]
	if len(rules) != 1 || rules[0].Key != "payout_amount_max_per_tx" {
		t.Errorf("payout rules = %+v", rules)
	}
	// Built-in rules survive alongside configured ones.
	if _, ok := ec.Limits.Rules["refund"]; !ok {
		t.Error("default refund rules were dropped")
	}
}

func TestServer_ReadinessFollowsBreaker(t *testing.T) {
	// A directory that always fails eventually opens the breaker; under
	// fail-closed the gateway should then report not ready.
	dir := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dir.Close()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Directory.BaseURL = dir.URL
	cfg.Directory.BreakerFailures = 1
	cfg.Directory.RetryAttempts = 1

	srv, err := New(cfg, "test")
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	// Trip the breaker with failing decisions.
	for i := 0; i < 4; i++ {
		resp := postDecide(t, ts.URL, map[string]any{
			"agent_id":  "agt_1",
			"policy_id": "finance.payment.refund.v1",
		}, nil)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("readyz status = %d, want 503; body: %s", resp.StatusCode, body)
	}
}
