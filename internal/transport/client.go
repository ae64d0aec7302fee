package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/themis-db/shardcore/internal/logging"
	"github.com/themis-db/shardcore/internal/metrics"
	"github.com/themis-db/shardcore/internal/shardcoreerr"
)

var log = logging.MustGetLogger("transport")

// MTLSClient is one mTLS HTTP/1.1 client instance per shard process
// (spec.md §4.G). Pooling is per-endpoint and transparent to callers: each
// distinct host gets its own *http.Client and circuit breaker, built
// lazily on first use and reused afterward (spec.md §5: "one lock per
// endpoint's pool list, not a single global lock" — approximated here with
// a map guarded by a single mutex since Go's transport already pools
// connections internally per host).
type MTLSClient struct {
	cfg       Config
	tlsConfig *tls.Config

	mu       sync.Mutex
	perHost  map[string]*http.Client
	breakers map[string]*CircuitBreaker
}

// NewMTLSClient builds a client from cfg, loading the client certificate,
// key and CA trust once up front.
func NewMTLSClient(cfg Config) (*MTLSClient, error) {
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &MTLSClient{
		cfg:       cfg,
		tlsConfig: tlsCfg,
		perHost:   map[string]*http.Client{},
		breakers:  map[string]*CircuitBreaker{},
	}, nil
}

func (c *MTLSClient) newTransport() *http.Transport {
	t := &http.Transport{
		TLSClientConfig: c.tlsConfig,
		DialContext: (&net.Dialer{
			Timeout: time.Duration(c.cfg.ConnectTimeoutMs) * time.Millisecond,
		}).DialContext,
	}
	if c.cfg.EnablePooling {
		t.MaxConnsPerHost = c.cfg.MaxConnections
		t.MaxIdleConnsPerHost = c.cfg.MaxConnections
		t.IdleConnTimeout = time.Duration(c.cfg.IdleTimeoutMs) * time.Millisecond
	} else {
		t.DisableKeepAlives = true
	}
	return t
}

// clientFor returns (creating if necessary) the pooled client for host.
func (c *MTLSClient) clientFor(host string) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.perHost[host]; ok {
		return cl
	}
	cl := &http.Client{
		Transport: c.newTransport(),
		Timeout:   time.Duration(c.cfg.RequestTimeoutMs) * time.Millisecond,
	}
	c.perHost[host] = cl
	return cl
}

func (c *MTLSClient) breakerFor(host string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	cb := NewCircuitBreaker(host, DefaultCircuitBreakerConfig())
	c.breakers[host] = cb
	return cb
}

// Get issues an HTTP GET.
func (c *MTLSClient) Get(ctx context.Context, url string) Response {
	return c.do(ctx, http.MethodGet, url, nil)
}

// Post issues an HTTP POST with a JSON-encoded body.
func (c *MTLSClient) Post(ctx context.Context, url string, body interface{}) Response {
	return c.do(ctx, http.MethodPost, url, body)
}

// Put issues an HTTP PUT with a JSON-encoded body.
func (c *MTLSClient) Put(ctx context.Context, url string, body interface{}) Response {
	return c.do(ctx, http.MethodPut, url, body)
}

// Delete issues an HTTP DELETE.
func (c *MTLSClient) Delete(ctx context.Context, url string) Response {
	return c.do(ctx, http.MethodDelete, url, nil)
}

func (c *MTLSClient) do(ctx context.Context, method, rawURL string, body interface{}) Response {
	start := time.Now()

	var bodyBytes []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Response{Success: false, Err: shardcoreerr.Wrap(err, shardcoreerr.KindParse, shardcoreerr.ReasonArgumentsBad, "body marshal")}
		}
		bodyBytes = raw
	}

	host := hostOf(rawURL)
	client := c.clientFor(host)
	breaker := c.breakerFor(host)

	delay := time.Duration(c.cfg.RetryDelayMs) * time.Millisecond

	for attempt := 1; ; attempt++ {
		var resp Response
		err := breaker.Execute(func() error {
			r, doErr := c.attempt(ctx, client, method, rawURL, bodyBytes)
			resp = r
			return doErr
		})

		if err == nil {
			resp.ExecutionTimeMs = time.Since(start).Milliseconds()
			return resp
		}

		if retryErr, retryable := asRetryable(err); !retryable || attempt > c.cfg.MaxRetries {
			return Response{Success: false, Err: retryErr, ExecutionTimeMs: time.Since(start).Milliseconds()}
		}

		metrics.MTLSRetryTotal.WithLabelValues(host).Inc()
		log.Warnf("transport: retrying %s %s (attempt %d): %v", method, rawURL, attempt, err)

		select {
		case <-ctx.Done():
			return Response{
				Success:         false,
				Err:             shardcoreerr.Wrap(ctx.Err(), shardcoreerr.KindNetwork, shardcoreerr.ReasonTimeout, rawURL),
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			}
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *MTLSClient) attempt(ctx context.Context, client *http.Client, method, rawURL string, bodyBytes []byte) (Response, error) {
	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return Response{}, shardcoreerr.Wrap(err, shardcoreerr.KindNetwork, shardcoreerr.ReasonConnect, rawURL)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := client.Do(req)
	if err != nil {
		return Response{}, classifyNetworkError(err, rawURL)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, shardcoreerr.Wrap(err, shardcoreerr.KindNetwork, shardcoreerr.ReasonRead, rawURL)
	}

	resp := Response{
		StatusCode:    httpResp.StatusCode,
		StatusMessage: httpResp.Status,
		RawBody:       raw,
		Success:       httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
	}
	if json.Valid(raw) {
		resp.Body = json.RawMessage(raw)
	}
	// HTTP non-2xx is not a network error: it is reported via status_code,
	// never retried (spec.md §4.G).
	return resp, nil
}

func classifyNetworkError(err error, subject string) error {
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return shardcoreerr.Wrap(err, shardcoreerr.KindTLS, shardcoreerr.ReasonHostname, subject)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return shardcoreerr.Wrap(err, shardcoreerr.KindNetwork, shardcoreerr.ReasonTimeout, subject)
	}
	return shardcoreerr.Wrap(err, shardcoreerr.KindNetwork, shardcoreerr.ReasonConnect, subject)
}

// asRetryable reports whether err is a shardcoreerr.KindNetwork error, and
// therefore eligible for MTLSClient's own retry loop (spec.md §4.G: HTTP
// status is never retried here).
func asRetryable(err error) (error, bool) {
	if se, ok := err.(*shardcoreerr.Error); ok {
		return se, se.Retryable()
	}
	return err, false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
