// Package backend is the HTTP client of the EJAAR backend API. Every call
// carries the bearer token found in the context.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/metrics"
)

type tokenKey struct{}

// WithToken returns a context whose backend calls are authenticated with token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token set by WithToken.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// Client calls the backend API.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.Timeout = d } }

// WithRateLimit bounds outgoing calls. A non-positive rate disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

// send performs the request and returns the response when the status is 2xx.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("backend %s: %w", r.op, err)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if tok := TokenFromContext(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpx.RequestIDHeader, id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordBackendCall(r.op, 0, elapsed)
		c.log.WithFields(logrus.Fields{"op": r.op, "error": err.Error()}).Warn("backend call failed")
		return nil, fmt.Errorf("backend %s: %w: %w", r.op, ErrUnavailable, err)
	}
	metrics.RecordBackendCall(r.op, resp.StatusCode, elapsed)
	c.log.WithFields(logrus.Fields{
		"op":          r.op,
		"status":      resp.StatusCode,
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("backend call")

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(r.op, resp)
	}
	return resp, nil
}

// do sends a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	r := request{op: op, method: method, path: path, query: query}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend %s: encode: %w", op, err)
		}
		r.body = bytes.NewReader(b)
		r.contentType = "application/json"
	}
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(op, resp, out)
}

// raw sends a bodiless request and returns the response body as received.
func (c *Client) raw(ctx context.Context, op, method, path string, query url.Values) ([]byte, error) {
	resp, err := c.send(ctx, request{op: op, method: method, path: path, query: query})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend %s: read: %w", op, err)
	}
	return bytes.TrimSpace(body), nil
}

// decodeBody decodes the response, unwrapping a {"data": ...} envelope
// when the backend uses one.
func decodeBody(op string, resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend %s: read: %w", op, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if data := gjson.GetBytes(body, "data"); data.IsObject() || data.IsArray() {
		body = []byte(data.Raw)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend %s: decode: %w", op, err)
	}
	return nil
}
