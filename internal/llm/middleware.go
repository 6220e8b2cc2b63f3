package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/ppiankov/claimledger/internal/cache"
	"github.com/ppiankov/claimledger/internal/metrics"
	"github.com/ppiankov/claimledger/internal/worker"
)

// CachedProvider serves Cacheable requests from a response cache
type CachedProvider struct {
	next  Provider
	cache cache.Cache
	ttl   time.Duration
	model string
}

// Cached wraps p with a response cache. Only requests marked Cacheable are
// stored. model is the model p answers with when a request names none; it
// keys the cache so answers from one model are never served for another.
func Cached(p Provider, c cache.Cache, ttl time.Duration, model string) *CachedProvider {
	return &CachedProvider{next: p, cache: c, ttl: ttl, model: model}
}

func (c *CachedProvider) Name() string { return c.next.Name() }

func (c *CachedProvider) IsAvailable(ctx context.Context) bool { return c.next.IsAvailable(ctx) }

func (c *CachedProvider) Generate(ctx context.Context, req Request, out any) error {
	return generateStructured(ctx, c, req, out)
}

func (c *CachedProvider) GenerateText(ctx context.Context, req Request) (*Response, error) {
	if !req.Cacheable || c.cache == nil {
		return c.next.GenerateText(ctx, req)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	key := cache.CacheKey(c.next.Name(), modelName, req.SystemPrompt, req.UserPrompt,
		strconv.FormatBool(req.JSON), strconv.FormatFloat(req.Temperature, 'f', -1, 64))

	if data, ok := c.cache.Get(key); ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			return &resp, nil
		}
	}

	resp, err := c.next.GenerateText(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		_ = c.cache.Set(key, data, c.ttl)
	}
	return resp, nil
}

// RateLimitedProvider waits on a per-provider token bucket before each call
type RateLimitedProvider struct {
	next    Provider
	limiter *worker.Limiter
}

// RateLimited wraps p so calls share limiter's bucket for p.Name()
func RateLimited(p Provider, limiter *worker.Limiter) *RateLimitedProvider {
	return &RateLimitedProvider{next: p, limiter: limiter}
}

func (r *RateLimitedProvider) Name() string { return r.next.Name() }

func (r *RateLimitedProvider) IsAvailable(ctx context.Context) bool { return r.next.IsAvailable(ctx) }

func (r *RateLimitedProvider) Generate(ctx context.Context, req Request, out any) error {
	return generateStructured(ctx, r, req, out)
}

func (r *RateLimitedProvider) GenerateText(ctx context.Context, req Request) (*Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, r.next.Name()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return r.next.GenerateText(ctx, req)
}

// ObservedProvider records request outcomes and latency
type ObservedProvider struct {
	next    Provider
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// Observed wraps p with metrics and debug logging. Both rec and logger may be nil.
func Observed(p Provider, rec *metrics.Recorder, logger *slog.Logger) *ObservedProvider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ObservedProvider{next: p, metrics: rec, logger: logger}
}

func (o *ObservedProvider) Name() string { return o.next.Name() }

func (o *ObservedProvider) IsAvailable(ctx context.Context) bool { return o.next.IsAvailable(ctx) }

func (o *ObservedProvider) Generate(ctx context.Context, req Request, out any) error {
	return generateStructured(ctx, o, req, out)
}

func (o *ObservedProvider) GenerateText(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := o.next.GenerateText(ctx, req)
	elapsed := time.Since(start)

	o.metrics.LLMRequest(o.next.Name(), req.Purpose, err, elapsed)
	if err != nil {
		o.logger.Warn("llm request failed", "provider", o.next.Name(), "purpose", req.Purpose, "error", err)
		return nil, err
	}
	o.logger.Debug("llm request", "provider", o.next.Name(), "purpose", req.Purpose,
		"model", resp.Model, "tokens", resp.TokensUsed, "elapsed", elapsed)
	return resp, nil
}
