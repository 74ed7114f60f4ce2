// Package httpclient is the single HTTP transport every migration phase that
// talks to the target n8n instance shares: auth injection, timeouts, retry
// with backoff, and rate limiting all live here once instead of being
// reimplemented per phase, the way the teacher's common/clients.Client
// centralizes transport concerns for the coordinator and workers.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/n8n-migrator/migrator/common/logger"
)

// AuthMode selects how credentials are attached to outgoing requests.
type AuthMode int

const (
	AuthAPIKey AuthMode = iota
	AuthBasic
)

// Config configures a Client. Zero-value RatePerMinute or MaxRetries get
// sane defaults in New.
type Config struct {
	BaseURL      string
	AuthMode     AuthMode
	APIKey       string
	BasicUser    string
	BasicPass    string
	Timeout      time.Duration
	RatePerMinute int
	MaxRetries   int
}

// Client is a rate-limited, retrying HTTP client bound to one target n8n
// instance for the lifetime of a single migration run. It is not persisted
// across runs and carries no state beyond the current run's limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger

	// updateMethod is discovered lazily by ProbeUpdateMethod and cached for
	// the rest of the run, per SPEC_FULL.md Open Question 2.
	updateMethod string
}

// New builds a Client from cfg. A nil logger falls back to a quiet default.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = logger.New("error", "console")
	}

	interval := time.Minute / time.Duration(cfg.RatePerMinute)
	return &Client{
		cfg:          cfg,
		http:         &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Every(interval), 1),
		log:          log,
		updateMethod: "PUT",
	}
}

// Request is one call to the target API. Method/Path/Body are the caller's
// concern; auth, request-id, and retry/backoff are ours.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   interface{}
}

// Do sends req, retrying on network failure and 5xx responses, and decodes
// a JSON response body into out (ignored if out is nil).
func (c *Client) Do(ctx context.Context, req Request, out interface{}) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyBytes = b
	}

	// Every method this client sends is retried on network failure and 5xx:
	// GET/PUT/DELETE because they're naturally idempotent, and POST/PATCH
	// because Phase 4a/4b only ever use them for create-or-update calls the
	// target instance itself makes idempotent (create fails loudly on a
	// duplicate name instead of silently duplicating; patch reapplies the
	// same merge patch). 4xx is never retried regardless of method.
	retryable := req.Method == http.MethodGet || req.Method == http.MethodPut || req.Method == http.MethodDelete ||
		req.Method == http.MethodPost || req.Method == http.MethodPatch

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			c.log.Debug("retrying request", "method", req.Method, "path", req.Path, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, respBody, err := c.doOnce(ctx, req, bodyBytes)
		if err != nil {
			lastErr = err
			if !retryable {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return resp, &AuthError{Status: resp.StatusCode}
		}

		if resp.StatusCode >= 500 {
			lastErr = &RemoteError{Status: resp.StatusCode, Body: string(respBody)}
			if !retryable {
				return resp, lastErr
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return resp, &RemoteError{Status: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return resp, fmt.Errorf("decode response body: %w", err)
			}
		}
		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, req Request, bodyBytes []byte) (*http.Response, []byte, error) {
	url := c.cfg.BaseURL + req.Path
	if len(req.Query) > 0 {
		q := "?"
		first := true
		for k, v := range req.Query {
			if !first {
				q += "&"
			}
			q += k + "=" + v
			first = false
		}
		url += q
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if bodyBytes != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-ID", newRequestID())
	c.applyAuth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp, respBody, nil
}

func (c *Client) applyAuth(req *http.Request) {
	switch c.cfg.AuthMode {
	case AuthBasic:
		req.SetBasicAuth(c.cfg.BasicUser, c.cfg.BasicPass)
	default:
		req.Header.Set("X-N8N-API-KEY", c.cfg.APIKey)
	}
}

func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) / 2 + 1))
	return base + jitter
}

func newRequestID() string {
	return uuid.NewString()
}
