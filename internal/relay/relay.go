// Package relay is the privileged process the capturing context cannot be:
// it performs binary fetches the page itself would be blocked from making
// (insecure schemes, private-network addresses) and exposes a generic
// request/response primitive with caller-supplied timeouts for all other
// cross-context calls.
package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxBodySize caps proxied response bodies at 25 MiB.
const DefaultMaxBodySize = 25 << 20

// FetchResult is a proxied binary fetch outcome.
type FetchResult struct {
	Data     []byte
	MIMEType string
}

// DataURL renders the result as a data: URL, the shape the page-side
// consumer expects.
func (r *FetchResult) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", r.MIMEType, base64.StdEncoding.EncodeToString(r.Data))
}

// HandlerFunc serves one registered action.
type HandlerFunc func(ctx context.Context, payload jsoniter.RawMessage) (any, error)

// Client is the narrow interface the engine consumes.
type Client interface {
	ProxyFetch(ctx context.Context, url string) (*FetchResult, error)
	Send(ctx context.Context, action string, payload any, timeout time.Duration) (jsoniter.RawMessage, error)
}

// Relay implements Client with an http.Client, deduplicating concurrent
// fetches of the same URL and rate limiting outbound requests.
type Relay struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	group       singleflight.Group
	maxBodySize int64
	logger      *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// Option customizes a Relay.
type Option func(*Relay)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) { r.httpClient = c }
}

// WithRateLimit bounds outbound fetches to n per second.
func WithRateLimit(n float64) Option {
	return func(r *Relay) { r.limiter = rate.NewLimiter(rate.Limit(n), int(n)+1) }
}

// WithMaxBodySize caps proxied response bodies.
func WithMaxBodySize(n int64) Option {
	return func(r *Relay) { r.maxBodySize = n }
}

// New builds a Relay with the builtin proxyFetch action registered.
func New(logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(4), 8),
		maxBodySize: DefaultMaxBodySize,
		logger:      logger.Named("relay"),
		handlers:    make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Register("proxyFetch", r.handleProxyFetch)
	return r
}

// Register installs a handler for an action name, replacing any previous
// registration.
func (r *Relay) Register(action string, h HandlerFunc) {
	r.mu.Lock()
	r.handlers[action] = h
	r.mu.Unlock()
}

// ProxyFetch retrieves url's bytes on the engine's behalf. Concurrent calls
// for the same URL collapse into one request.
func (r *Relay) ProxyFetch(ctx context.Context, url string) (*FetchResult, error) {
	v, err, _ := r.group.Do(url, func() (any, error) {
		// The flight is shared with later callers, so it must not inherit
		// the first caller's cancellation; the client timeout still bounds
		// it.
		return r.fetch(context.WithoutCancel(ctx), url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FetchResult), nil
}

func (r *Relay) fetch(ctx context.Context, url string) (*FetchResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxy fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read proxied body: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	r.logger.Debug("Proxied fetch complete.",
		zap.String("url", url), zap.Int("bytes", len(data)), zap.String("mime", mime))
	return &FetchResult{Data: data, MIMEType: mime}, nil
}

type fetchRequest struct {
	URL string `json:"url"`
}

type fetchResponse struct {
	Success bool   `json:"success"`
	DataURL string `json:"data_url,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r *Relay) handleProxyFetch(ctx context.Context, payload jsoniter.RawMessage) (any, error) {
	var req fetchRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode proxyFetch payload: %w", err)
	}
	res, err := r.ProxyFetch(ctx, req.URL)
	if err != nil {
		return fetchResponse{Success: false, Error: err.Error()}, nil
	}
	return fetchResponse{Success: true, DataURL: res.DataURL()}, nil
}

// Send dispatches a request to a registered action and waits up to timeout
// for its response. Every request carries a fresh correlation ID for
// logging; payloads are opaque to the relay itself.
func (r *Relay) Send(ctx context.Context, action string, payload any, timeout time.Duration) (jsoniter.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[action]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("relay: unknown action %q", action)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %q payload: %w", action, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqID := uuid.NewString()
	r.logger.Debug("Relay request.", zap.String("action", action), zap.String("request_id", reqID))

	type outcome struct {
		resp any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h(callCtx, raw)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			r.logger.Warn("Relay request failed.",
				zap.String("action", action), zap.String("request_id", reqID), zap.Error(o.err))
			return nil, o.err
		}
		out, err := json.Marshal(o.resp)
		if err != nil {
			return nil, fmt.Errorf("encode %q response: %w", action, err)
		}
		return out, nil
	case <-callCtx.Done():
		r.logger.Warn("Relay request timed out.",
			zap.String("action", action), zap.String("request_id", reqID), zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("relay: %q timed out after %v: %w", action, timeout, callCtx.Err())
	}
}
