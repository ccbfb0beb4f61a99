package transports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/models"

	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of an upstream reply is read.
const maxBodyBytes = 8 << 20

// ErrHTTPStatus is wrapped by every error caused by a non-2xx reply.
var ErrHTTPStatus = errors.New("unexpected http status")

// -----------------------------------------------------------------------------

// HTTPFetcher performs provider requests, liveness probes and poll requests
// over one shared HTTP/2 capable client. Each endpoint gets its own token
// bucket sized from rate_limit and burst.
type HTTPFetcher struct {
	name   string
	logger *logger.Logger
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var (
	_ interfaces.IFetcher = (*HTTPFetcher)(nil)
	_ interfaces.IProber  = (*HTTPFetcher)(nil)
	_ interfaces.IPoller  = (*HTTPFetcher)(nil)
)

// -----------------------------------------------------------------------------

// NewHTTPFetcher builds the fetcher with an HTTP/2 enabled transport.
func NewHTTPFetcher(log *logger.Logger) (*HTTPFetcher, error) {
	client, err := BuildHTTP2Client()
	if err != nil {
		return nil, err
	}
	return NewHTTPFetcherWithClient(client, log), nil
}

// NewHTTPFetcherWithClient uses the given client as is.
func NewHTTPFetcherWithClient(client *http.Client, log *logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &HTTPFetcher{
		name:     "http",
		logger:   log,
		client:   client,
		limiters: make(map[string]*rate.Limiter),
	}
}

// -----------------------------------------------------------------------------

// BuildHTTP2Client returns a client that negotiates HTTP/2 over TLS and falls
// back to HTTP/1.1 for plain endpoints.
func BuildHTTP2Client() (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to enable http2: %w", err)
	}

	// Timeouts are carried by the request context
	return &http.Client{Transport: transport}, nil
}

// -----------------------------------------------------------------------------

// Fetch issues GET base_url/path?params against endpoint. The endpoint timeout
// covers the rate limiter wait and the whole exchange.
func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint models.MEndpointConfig, path string, params map[string]string) ([]byte, error) {
	if endpoint.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, endpoint.Timeout)
		defer cancel()
	}

	// 1. Respect the endpoint rate limit
	if err := f.limiter(endpoint).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", endpoint.Name, err)
	}

	// 2. Build the request
	target, err := joinURL(endpoint.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint.Name, err)
	}
	if len(params) > 0 {
		query := target.Query()
		for k, v := range params {
			query.Set(k, v)
		}
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", endpoint.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if endpoint.APIKey != "" {
		header := endpoint.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, endpoint.APIKey)
	}

	// 3. Execute and read
	body, err := f.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint.Name, err)
	}

	f.logger.Debug("%s : %s answered %d bytes", f.name, endpoint.Name, len(body))
	return body, nil
}

// -----------------------------------------------------------------------------

// Probe issues GET base_url/health_path. Probes bypass the rate limiter; the
// caller bounds them with ctx.
func (f *HTTPFetcher) Probe(ctx context.Context, endpoint models.MEndpointConfig) error {
	target, err := joinURL(endpoint.BaseURL, endpoint.HealthPath)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build probe: %w", endpoint.Name, err)
	}
	if endpoint.APIKey != "" && endpoint.APIKeyHeader != "" {
		req.Header.Set(endpoint.APIKeyHeader, endpoint.APIKey)
	}

	if _, err := f.do(req); err != nil {
		return fmt.Errorf("%s: %w", endpoint.Name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Poll issues GET url?symbols=a,b and returns the body.
func (f *HTTPFetcher) Poll(ctx context.Context, rawURL string, params []string) ([]byte, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid poll url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		query := target.Query()
		query.Set("symbols", strings.Join(params, ","))
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return f.do(req)
}

// -----------------------------------------------------------------------------

func (f *HTTPFetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return body, nil
}

// -----------------------------------------------------------------------------

func (f *HTTPFetcher) limiter(endpoint models.MEndpointConfig) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := endpoint.Name
	if key == "" {
		key = endpoint.BaseURL
	}

	limiter, ok := f.limiters[key]
	if !ok {
		limiter = newLimiter(endpoint.RateLimit, endpoint.Burst)
		f.limiters[key] = limiter
	}
	return limiter
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// -----------------------------------------------------------------------------

func joinURL(base, path string) (*url.URL, error) {
	if path == "" || path == "/" {
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", base, err)
		}
		return parsed, nil
	}

	joined := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	parsed, err := url.Parse(joined)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", joined, err)
	}
	return parsed, nil
}
