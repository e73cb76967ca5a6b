// Package gateway is the HTTP access layer for every scrape source. Each
// source gets its own Gateway carrying that source's politeness settings:
// a concurrency cap, a token-bucket rate limit, transport-level retry for
// transient network errors, block classification, and a circuit breaker
// that stops hammering a source once it starts refusing us.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/metrics"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

const (
	// breakerThreshold is the consecutive-failure count that opens a
	// source's circuit
	breakerThreshold = 10
	// breakerCooldown is how long an open circuit waits before allowing
	// a half-open probe
	breakerCooldown = 60 * time.Second

	retryWaitMin = 2 * time.Second
	retryWaitMax = 15 * time.Second
)

// Stats are the per-source request counters
type Stats struct {
	Requests  int64 `json:"requests"`
	Successes int64 `json:"successes"`
	Blocks    int64 `json:"blocks"`
}

// Response is a successful (non-blocked) fetch. Adapters decide what a
// non-200 status means for their source; a 404 on a detail page is a miss,
// not a failure. URL is the final URL after redirects.
type Response struct {
	Status int
	Body   []byte
	URL    string
}

// OK reports whether the response carried a 200
func (r *Response) OK() bool {
	return r.Status == http.StatusOK
}

// Gateway performs rate-limited, retried, block-classified GETs against a
// single source
type Gateway struct {
	cfg     config.SourceConfig
	client  *retryablehttp.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *reporting.Logger
	metrics *metrics.Metrics

	requests  atomic.Int64
	successes atomic.Int64
	blocks    atomic.Int64
}

// New creates a Gateway for one source. The http.Client is shared across
// all gateways so they draw from one connection pool; per-source limits
// are layered on top of it here.
func New(cfg config.SourceConfig, client *http.Client, logger *reporting.Logger, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger.WithField("source", cfg.Name),
		metrics: m,
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = client
	rc.Logger = nil
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.CheckRetry = g.checkRetry
	g.client = rc

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit state changed", "from", from.String(), "to", to.String())
			if m != nil {
				open := 0.0
				if to == gobreaker.StateOpen {
					open = 1.0
				}
				m.CircuitOpen.WithLabelValues(name).Set(open)
			}
		},
	})

	return g
}

// Name returns the source name this gateway serves
func (g *Gateway) Name() string {
	return g.cfg.Name
}

// Stats returns a snapshot of the request counters
func (g *Gateway) Stats() Stats {
	return Stats{
		Requests:  g.requests.Load(),
		Successes: g.successes.Load(),
		Blocks:    g.blocks.Load(),
	}
}

// checkRetry retries only transient network failures: connection errors
// and timeouts. Status-level failures (403, 429, 5xx) are never retried at
// the transport layer; the engine decides what to do with a blocked source.
func (g *Gateway) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	if retryableNetError(err) {
		if g.metrics != nil {
			g.metrics.RetriesTotal.WithLabelValues(g.cfg.Name).Inc()
		}
		return true, nil
	}
	return false, err
}

func retryableNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

// Get fetches a URL with browser headers
func (g *Gateway) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	return g.get(ctx, rawURL, params, BrowserHeaders())
}

// GetAPI fetches a URL with JSON API headers
func (g *Gateway) GetAPI(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	return g.get(ctx, rawURL, params, APIHeaders())
}

// GetWithHeaders fetches a URL with caller-supplied headers merged over
// the rotated browser set
func (g *Gateway) GetWithHeaders(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*Response, error) {
	merged := BrowserHeaders()
	for k, v := range headers {
		merged[k] = v
	}
	return g.get(ctx, rawURL, params, merged)
}

// GetAPIWithHeaders fetches a URL with caller-supplied headers merged over
// the JSON API set
func (g *Gateway) GetAPIWithHeaders(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*Response, error) {
	merged := APIHeaders()
	for k, v := range headers {
		merged[k] = v
	}
	return g.get(ctx, rawURL, params, merged)
}

func (g *Gateway) get(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*Response, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	g.requests.Add(1)
	start := time.Now()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.fetch(ctx, rawURL, params, headers)
	})

	if g.metrics != nil {
		g.metrics.RequestDuration.WithLabelValues(g.cfg.Name).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &FetchError{Source: g.cfg.Name, URL: rawURL, Kind: ErrCircuitOpen}
		}
		if g.metrics != nil {
			g.metrics.RequestsTotal.WithLabelValues(g.cfg.Name, "error").Inc()
		}
		return nil, err
	}

	g.successes.Add(1)
	if g.metrics != nil {
		g.metrics.RequestsTotal.WithLabelValues(g.cfg.Name, "success").Inc()
	}
	return result.(*Response), nil
}

func (g *Gateway) fetch(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*Response, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout())
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		return nil, g.block(rawURL, resp.StatusCode, ErrBlocked)
	case http.StatusTooManyRequests:
		return nil, g.block(rawURL, resp.StatusCode, ErrRateLimited)
	}

	if DetectCaptcha(string(body)) {
		return nil, g.block(rawURL, resp.StatusCode, ErrCaptcha)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{Status: resp.StatusCode, Body: body, URL: finalURL}, nil
}

func (g *Gateway) block(rawURL string, status int, kind error) error {
	g.blocks.Add(1)
	if g.metrics != nil {
		g.metrics.BlocksTotal.WithLabelValues(g.cfg.Name, kind.Error()).Inc()
	}
	g.logger.Warn("source blocked request", "url", rawURL, "status", status, "kind", kind.Error())
	return &FetchError{Source: g.cfg.Name, URL: rawURL, Status: status, Kind: kind}
}

// SharedClient builds the http.Client shared by all gateways
func SharedClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport}
}
