package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"riskpulse/internal/cache"
	"riskpulse/internal/domain"
	"riskpulse/internal/ratelimit"
)

// apiClient is the request layer shared by all adapters: every call goes
// through the rate limiter under the adapter's service name, and GET
// responses are cached under a deterministic key so repeated polls do not
// hit the upstream.
type apiClient struct {
	http     *http.Client
	limiter  *ratelimit.Limiter
	cache    cache.Store
	service  string
	baseURL  string
	headers  map[string]string
	cacheTTL time.Duration
}

func newAPIClient(service, baseURL string, limiter *ratelimit.Limiter, store cache.Store, cacheTTL time.Duration) *apiClient {
	return &apiClient{
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  limiter,
		cache:    store,
		service:  service,
		baseURL:  baseURL,
		cacheTTL: cacheTTL,
	}
}

// getJSON fetches endpoint with params, read-through the cache, and decodes
// the body into out.
func (c *apiClient) getJSON(ctx context.Context, endpoint string, params map[string]string, out any) error {
	key := cache.Key(c.service, endpoint, params)
	body, err := cache.Fetch(ctx, c.cache, key, c.cacheTTL, func(ctx context.Context) ([]byte, error) {
		return c.execute(ctx, http.MethodGet, endpoint, params, nil)
	})
	if err != nil {
		return err
	}
	return c.decode(body, out)
}

// postJSON sends a JSON payload and decodes the response. POST results are
// not cached; the only POSTing provider serves fast-moving funding data.
func (c *apiClient) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := c.execute(ctx, http.MethodPost, endpoint, nil, encoded)
	if err != nil {
		return err
	}
	return c.decode(body, out)
}

func (c *apiClient) execute(ctx context.Context, method, endpoint string, params map[string]string, payload []byte) ([]byte, error) {
	var body []byte
	err := c.limiter.Execute(ctx, c.service, func(ctx context.Context) error {
		b, err := c.doRequest(ctx, method, endpoint, params, payload)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

func (c *apiClient) doRequest(ctx context.Context, method, endpoint string, params map[string]string, payload []byte) ([]byte, error) {
	u := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	if len(params) > 0 {
		values := url.Values{}
		for name, value := range params {
			values.Set(name, value)
		}
		u += "?" + values.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientError{Service: c.service, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	if domain.RetryableStatus(resp.StatusCode) {
		return nil, &domain.TransientError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("upstream status %d: %s", resp.StatusCode, excerpt(body)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error %d: %s", c.service, resp.StatusCode, excerpt(body))
	}
	if readErr != nil {
		return nil, &domain.TransientError{Service: c.service, Err: readErr}
	}
	return body, nil
}

func (c *apiClient) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.MalformedResponseError{Service: c.service, Excerpt: excerpt(body), Err: err}
	}
	return nil
}

// parseRetryAfter handles the delay-seconds form of the header. The HTTP-date
// form is rare on the providers we talk to and falls back to zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func excerpt(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
