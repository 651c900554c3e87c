// Package directory implements the HTTP client for the external passport
// and policy directory service. All calls are idempotent reads except
// VerifyPolicy, which the directory documents as safely retryable.
//
// The client layers three protections around every call: a rate limiter
// bounding directory load on repeated cache misses, retries with
// exponential backoff for transient transport failures, and a circuit
// breaker that fails fast while the directory is down. Only transport
// failures count against the breaker; HTTP status codes of any kind are
// successful round trips.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/agentpassport/passgate/internal/passport"
	"github.com/agentpassport/passgate/internal/policy"
)

// userAgent identifies the gateway to the directory service.
const userAgent = "passgate/1.0"

// Metrics records directory call outcomes.
type Metrics interface {
	RecordDirectoryRequest(op, outcome string)
	ObserveDirectoryLatency(op string, seconds float64)
}

// Options configures the directory client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration // per-attempt deadline, default 5s
	RetryAttempts uint          // total attempts per call, default 3
	RequestsPerSec float64      // rate limit on directory calls, 0 disables
	BreakerFailures uint32      // consecutive failures that open the breaker, default 5
}

// Client talks to the directory over HTTP/JSON. It implements
// passport.Fetcher and policy.Fetcher.
type Client struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	attempts uint
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	metrics  Metrics
	logger   *slog.Logger
}

// NewClient creates a directory client. A nil logger is replaced with
// slog.Default(); metrics may be nil.
func NewClient(opts Options, metrics Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "passport-directory",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("directory breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	var limiter *rate.Limiter
	if opts.RequestsPerSec > 0 {
		// Fractional rates truncate to burst 0, which admits nothing.
		burst := int(opts.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		attempts: opts.RetryAttempts,
		http:     &http.Client{},
		breaker:  breaker,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
}

// FetchPassport retrieves the passport for an agent.
// Implements passport.Fetcher.
func (c *Client) FetchPassport(ctx context.Context, agentID string) (*passport.Passport, error) {
	var p passport.Passport
	err := c.getJSON(ctx, "fetch_passport", "/api/passports/"+url.PathEscape(agentID), &p,
		func() error { return &passport.NotFoundError{AgentID: agentID} })
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// BreakerOpen reports whether the circuit breaker is currently open,
// meaning the directory has been failing and calls are short-circuited.
func (c *Client) BreakerOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// FetchPolicy retrieves a policy pack by id. Implements policy.Fetcher.
func (c *Client) FetchPolicy(ctx context.Context, policyID string) (*policy.Pack, error) {
	var pack policy.Pack
	err := c.getJSON(ctx, "fetch_policy", "/api/policies/"+url.PathEscape(policyID), &pack,
		func() error { return &policy.NotFoundError{PolicyID: policyID} })
	if err != nil {
		return nil, err
	}
	return &pack, nil
}

// VerifyResult is the directory's server-side policy verification response.
type VerifyResult struct {
	DecisionID string         `json:"decision_id,omitempty"`
	Allow      bool           `json:"allow"`
	Reason     string         `json:"reason,omitempty"`
	Violations []string       `json:"violations,omitempty"`
	Evaluation map[string]any `json:"evaluation,omitempty"`
}

// VerifyPolicy asks the directory to evaluate a policy server-side. The
// call has no server-side effects beyond logging, so it is retried like
// the idempotent reads.
func (c *Client) VerifyPolicy(ctx context.Context, agentID, policyID string, reqContext map[string]any) (*VerifyResult, error) {
	body, err := json.Marshal(map[string]any{
		"agent_id": agentID,
		"context":  reqContext,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding verify request: %w", err)
	}

	var result VerifyResult
	err = c.call(ctx, "verify_policy", http.MethodPost, "/api/verify/policy/"+url.PathEscape(policyID), body, &result,
		func() error { return &policy.NotFoundError{PolicyID: policyID} })
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// getJSON performs a retried GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, op, path string, out any, notFound func() error) error {
	return c.call(ctx, op, http.MethodGet, path, nil, out, notFound)
}

// call runs one directory request through the limiter, retry loop, and
// breaker, then maps the HTTP status to a typed error.
func (c *Client) call(ctx context.Context, op, method, path string, body []byte, out any, notFound func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fail(op, &passport.DirectoryError{Err: err, Timeout: isTimeout(err)})
		}
	}

	start := time.Now()
	var status int
	var respBody []byte

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(c.attempts),
	)
	err := r.Do(func() error {
		st, rb, err := c.once(ctx, method, path, body)
		if err != nil {
			return err
		}
		if st >= 500 {
			return fmt.Errorf("directory returned %d", st)
		}
		status = st
		respBody = rb
		return nil
	})

	c.observe(op, time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("directory call failed",
			"op", op,
			"path", path,
			"error", err,
		)
		return c.fail(op, &passport.DirectoryError{Err: err, Timeout: isTimeout(err)})
	}

	switch {
	case status == http.StatusNotFound:
		return c.fail(op, notFound())
	case status >= 400:
		return c.fail(op, &passport.DirectoryError{Err: fmt.Errorf("directory returned %d: %s", status, truncate(respBody, 256))})
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return c.fail(op, &passport.DirectoryError{Err: fmt.Errorf("decoding directory response: %w", err)})
	}

	c.record(op, "ok")
	return nil
}

// once performs a single HTTP round trip through the breaker. The returned
// error is transport-level only; any HTTP status is a successful round trip
// from the breaker's point of view.
func (c *Client) once(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	type roundTrip struct {
		status int
		body   []byte
	}

	result, err := c.breaker.Execute(func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		rb, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		return roundTrip{status: resp.StatusCode, body: rb}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	rt := result.(roundTrip)
	return rt.status, rt.body, nil
}

func (c *Client) fail(op string, err error) error {
	var de *passport.DirectoryError
	switch {
	case errors.As(err, &de):
		c.record(op, "unavailable")
	default:
		c.record(op, "rejected")
	}
	return err
}

func (c *Client) record(op, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordDirectoryRequest(op, outcome)
	}
}

func (c *Client) observe(op string, seconds float64) {
	if c.metrics != nil {
		c.metrics.ObserveDirectoryLatency(op, seconds)
	}
}

// isTimeout reports whether the error chain contains a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
