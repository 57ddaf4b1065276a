// Package provider wraps the three upstream intelligence providers with
// per-attempt timeouts, classified retries and template fallback.
package provider

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"focusaura/internal/config"
	"focusaura/internal/domain"
	"focusaura/internal/mode"
	"focusaura/internal/templates"
)

const maxBodyBytes = 1 << 20

// Client invokes one provider. Invoke never returns an error: every failure
// is classified and folded into a LiveFallback result.
type Client struct {
	backend  Backend
	cfg      *config.Config
	resolver mode.Resolver
	http     *http.Client
	cache    *Cache
	logger   *zap.Logger
	sleep    func(context.Context, time.Duration) error
	jitter   func(time.Duration) time.Duration
	now      func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache enables the live-success cache.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithSleep replaces the backoff sleeper; it must return early with ctx.Err()
// when ctx is done.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithJitter replaces the jitter source; fn receives the base backoff.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.jitter = fn
		}
	}
}

func New(backend Backend, cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		backend:  backend,
		cfg:      cfg,
		resolver: mode.NewResolver(cfg),
		http:     &http.Client{},
		logger:   zap.NewNop(),
		sleep:    sleepContext,
		jitter:   halfJitter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("role", string(backend.Role())))
	return c
}

// NewClients builds the evidence, recency and synthesis clients from cfg.
func NewClients(cfg *config.Config, opts ...Option) (map[domain.ProviderRole]*Client, error) {
	if cfg.Cache.Enabled {
		opts = append([]Option{WithCache(NewCache(cfg.Cache.Size, cfg.Cache.TTL))}, opts...)
	}
	clients := make(map[domain.ProviderRole]*Client, len(domain.Roles()))
	for _, role := range domain.Roles() {
		b, err := NewBackend(role, cfg.Providers.For(role))
		if err != nil {
			return nil, err
		}
		clients[role] = New(b, cfg, opts...)
	}
	return clients, nil
}

func (c *Client) Role() domain.ProviderRole { return c.backend.Role() }

// Invoke produces this provider's result for ev.
func (c *Client) Invoke(ctx context.Context, ev domain.FocusEvent) domain.ProviderResult {
	role := c.backend.Role()
	if !c.resolver.ShouldCallLive(role) {
		return domain.ProviderResult{
			Role:    role,
			Origin:  domain.OriginDemoTemplate,
			Payload: templates.Template(role, ev.Category),
		}
	}

	start := c.now()
	query := c.backend.Query(ev)
	if hit, ok := c.cache.get(role, query); ok {
		c.logger.Debug("provider cache hit")
		return domain.ProviderResult{
			Role:    role,
			Origin:  domain.OriginLiveSuccess,
			Payload: hit.Payload,
			Source:  hit.Source,
			Latency: c.now().Sub(start),
			Cached:  true,
		}
	}

	maxAttempts := max(c.cfg.MaxAttempts, 1)
	var lastErr *Error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		out, err := c.attempt(ctx, query, attempt)
		if err == nil {
			c.cache.put(role, query, out)
			return domain.ProviderResult{
				Role:     role,
				Origin:   domain.OriginLiveSuccess,
				Payload:  out.Payload,
				Source:   out.Source,
				Latency:  c.now().Sub(start),
				Attempts: attempts,
			}
		}
		lastErr = err
		if !err.Kind.Retryable() || attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		if serr := c.sleep(ctx, c.backoff(attempt)); serr != nil {
			lastErr = &Error{Role: role, Kind: KindTimeout, Err: serr}
			break
		}
	}

	c.logger.Warn("provider exhausted; using template",
		zap.String("kind", string(lastErr.Kind)),
		zap.Int("attempts", attempts),
		zap.Duration("latency", c.now().Sub(start)),
	)
	return domain.ProviderResult{
		Role:     role,
		Origin:   domain.OriginLiveFallback,
		Payload:  templates.Template(role, ev.Category),
		Latency:  c.now().Sub(start),
		Attempts: attempts,
		Err:      lastErr,
	}
}

// maxBackoffShift caps the exponent so base<<shift cannot overflow.
const maxBackoffShift = 16

// backoff returns base * 2^(attempt-1) plus jitter, with the exponent
// clamped to maxBackoffShift.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.cfg.BaseBackoff
	shift := min(max(attempt-1, 0), maxBackoffShift)
	return base<<shift + c.jitter(base)
}

func (c *Client) attempt(ctx context.Context, query string, attempt int) (Extracted, *Error) {
	role := c.backend.Role()
	started := c.now()
	out, status, err := c.call(ctx, query)
	fields := []zap.Field{
		zap.Int("attempt", attempt),
		zap.Int("status", status),
		zap.Duration("latency", c.now().Sub(started)),
	}
	if err != nil {
		err.Role = role
		c.logger.Info("provider attempt", append(fields, zap.String("outcome", string(err.Kind)), zap.Error(err.Err))...)
		return Extracted{}, err
	}
	c.logger.Info("provider attempt", append(fields, zap.String("outcome", "ok"))...)
	return out, nil
}

func (c *Client) call(ctx context.Context, query string) (Extracted, int, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.backend.NewRequest(attemptCtx, query, c.cfg.Credential)
	if err != nil {
		return Extracted{}, 0, &Error{Kind: KindBadRequest, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Extracted{}, 0, &Error{Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Extracted{}, resp.StatusCode, &Error{Kind: classifyTransport(err), Status: resp.StatusCode, Err: err}
	}
	if kind := classifyStatus(resp.StatusCode); kind != "" {
		return Extracted{}, resp.StatusCode, &Error{Kind: kind, Status: resp.StatusCode}
	}
	out, err := c.backend.Extract(body)
	if err != nil {
		return Extracted{}, resp.StatusCode, &Error{Kind: KindParse, Status: resp.StatusCode, Err: err}
	}
	return out, resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// halfJitter returns a random duration in [0, base/2).
func halfJitter(base time.Duration) time.Duration {
	if base/2 <= 0 {
		return 0
	}
	return rand.N(base / 2)
}
