// Package upstream is the client for the store's catalog API: a GraphQL
// endpoint for product content and a REST endpoint for channel assignments.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JonMunkholm/catalogxlate/internal/clock"
)

// Rate-limit response headers.
const (
	HeaderResetMs       = "X-Rate-Limit-Time-Reset-Ms"
	HeaderRequestsLeft  = "X-Rate-Limit-Requests-Left"
	HeaderRequestsQuota = "X-Rate-Limit-Requests-Quota"
)

// DefaultRetryAfter is used when a 429 carries no reset header.
const DefaultRetryAfter = 30 * time.Second

// DefaultBaseURL is the API host; store paths are appended to it.
const DefaultBaseURL = "https://api.bigcommerce.com"

// Policy decides what happens when the API answers 429.
type Policy struct {
	// MaxRetries is how many times a throttled request is re-sent.
	MaxRetries int
	// FailFast returns a *RateLimitError on the first 429 instead of waiting.
	FailFast bool
	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// Config describes one store-scoped client.
type Config struct {
	BaseURL     string
	StoreHash   string
	AccessToken string
	Timeout     time.Duration
	Policy      Policy
}

// Client talks to one store. It is safe for concurrent use.
type Client struct {
	http       *resty.Client
	graphqlURL string
	restURL    string
	policy     Policy
	logger     *slog.Logger
}

// New builds a client for cfg.StoreHash.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := cfg.Policy
	if policy.Clock == nil {
		policy.Clock = clock.Real()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	storeBase := base + "/stores/" + cfg.StoreHash
	hc := resty.New().
		SetTimeout(timeout).
		SetHeader("X-Auth-Token", cfg.AccessToken).
		SetHeader("Accept", "application/json")

	return &Client{
		http:       hc,
		graphqlURL: storeBase + "/graphql",
		restURL:    storeBase + "/v3",
		policy:     policy,
		logger:     slog.Default().With("component", "upstream", "store_hash", cfg.StoreHash),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// Do executes a GraphQL operation and decodes its data into out, which may
// be nil. A response with an errors payload fails with *APIError carrying
// the first error's message.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any) error {
	body := graphqlRequest{Query: query, Variables: variables}

	resp, err := c.send(ctx, http.MethodPost, c.graphqlURL, body)
	if err != nil {
		return err
	}

	var gr graphqlResponse
	if err := json.Unmarshal(resp.Body(), &gr); err != nil {
		if resp.IsError() {
			return &APIError{StatusCode: resp.StatusCode(), Message: abbreviate(resp.String(), 500)}
		}
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return &APIError{StatusCode: statusIfError(resp), Message: gr.Errors[0].Message}
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: abbreviate(resp.String(), 500)}
	}
	if out == nil || len(gr.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// getREST issues a GET against the REST API and decodes the body into out.
func (c *Client) getREST(ctx context.Context, path string, out any) error {
	resp, err := c.send(ctx, http.MethodGet, c.restURL+path, nil)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: abbreviate(resp.String(), 500)}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// send performs the request, handling 429 according to the policy. Every
// retry re-sends the identical request.
func (c *Client) send(ctx context.Context, method, url string, body any) (*resty.Response, error) {
	for attempt := 1; ; attempt++ {
		req := c.http.R().SetContext(ctx)
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		resp, err := req.Execute(method, url)
		if err != nil {
			return nil, fmt.Errorf("upstream %s %s: %w", method, url, err)
		}
		c.logQuota(resp)

		if resp.StatusCode() != http.StatusTooManyRequests {
			return resp, nil
		}

		wait := retryAfter(resp.Header())
		if c.policy.FailFast {
			return nil, &RateLimitError{RetryAfter: wait, Attempts: attempt}
		}
		if attempt > c.policy.MaxRetries {
			return nil, &RateLimitError{RetryAfter: wait, Attempts: attempt, Exhausted: true}
		}

		c.logger.Warn("rate limited, backing off",
			"retry_after_ms", wait.Milliseconds(),
			"attempt", attempt,
			"max_retries", c.policy.MaxRetries,
		)
		if err := c.policy.Clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// logQuota reports the advisory quota headers. They never affect control flow.
func (c *Client) logQuota(resp *resty.Response) {
	left := resp.Header().Get(HeaderRequestsLeft)
	if left == "" {
		return
	}
	c.logger.Debug("upstream quota",
		"requests_left", left,
		"requests_quota", resp.Header().Get(HeaderRequestsQuota),
	)
}

func retryAfter(h http.Header) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(h.Get(HeaderResetMs)), 10, 64)
	if err != nil || ms < 0 {
		return DefaultRetryAfter
	}
	return time.Duration(ms) * time.Millisecond
}

func statusIfError(resp *resty.Response) int {
	if resp.IsError() {
		return resp.StatusCode()
	}
	return 0
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
