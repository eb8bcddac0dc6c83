// Package health provides customer health-status lookups for churn scoring.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
)

const (
	// DefaultCacheTTL bounds how stale a cached status may be
	DefaultCacheTTL = 5 * time.Minute
	// DefaultLookupTimeout bounds a single lookup
	DefaultLookupTimeout = 500 * time.Millisecond

	keyPrefix = "feedback:health:"
	// unknownMarker caches "no status recorded" so misses are not repeated
	unknownMarker = "-"
)

// CachedProvider caches another provider's answers in Redis. Cache errors
// are logged and fall through to the wrapped provider.
type CachedProvider struct {
	next   analyzer.HealthStatusProvider
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProvider wraps next with a Redis cache
func NewCachedProvider(next analyzer.HealthStatusProvider, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{next: next, client: client, ttl: ttl, logger: logger}
}

// LatestHealthStatus returns the cached status or asks the wrapped provider
func (p *CachedProvider) LatestHealthStatus(ctx context.Context, customerID string) (analyzer.HealthStatus, error) {
	key := keyPrefix + customerID

	val, err := p.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == unknownMarker {
			return analyzer.HealthUnknown, nil
		}
		if status := analyzer.HealthStatus(val); status.Valid() {
			return status, nil
		}
	case !errors.Is(err, redis.Nil):
		p.logger.Warn("health cache read failed", "customer_id", customerID, "error", err)
	}

	status, err := p.next.LatestHealthStatus(ctx, customerID)
	if err != nil {
		return analyzer.HealthUnknown, err
	}

	cached := string(status)
	if status == analyzer.HealthUnknown {
		cached = unknownMarker
	}
	if err := p.client.Set(ctx, key, cached, p.ttl).Err(); err != nil {
		p.logger.Warn("health cache write failed", "customer_id", customerID, "error", err)
	}

	return status, nil
}

// Invalidate drops a customer's cached status, e.g. after a new health
// score is recorded
func (p *CachedProvider) Invalidate(ctx context.Context, customerID string) error {
	if err := p.client.Del(ctx, keyPrefix+customerID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate health cache: %w", err)
	}
	return nil
}

// TimeoutProvider bounds each lookup. A lookup that fails or times out
// reports no signal instead of an error.
type TimeoutProvider struct {
	next    analyzer.HealthStatusProvider
	timeout time.Duration
	logger  *slog.Logger
}

// NewTimeoutProvider wraps next with a per-lookup timeout
func NewTimeoutProvider(next analyzer.HealthStatusProvider, timeout time.Duration, logger *slog.Logger) *TimeoutProvider {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeoutProvider{next: next, timeout: timeout, logger: logger}
}

// LatestHealthStatus calls the wrapped provider within the timeout
func (p *TimeoutProvider) LatestHealthStatus(ctx context.Context, customerID string) (analyzer.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		status analyzer.HealthStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := p.next.LatestHealthStatus(ctx, customerID)
		done <- result{status, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			p.logger.Warn("health lookup failed", "customer_id", customerID, "error", r.err)
			return analyzer.HealthUnknown, nil
		}
		return r.status, nil
	case <-ctx.Done():
		p.logger.Warn("health lookup timed out", "customer_id", customerID, "timeout", p.timeout)
		return analyzer.HealthUnknown, nil
	}
}

// Invalidator is implemented by providers that cache statuses
type Invalidator interface {
	Invalidate(ctx context.Context, customerID string) error
}

// Invalidate drops a cached status held by the wrapped provider, if any
func (p *TimeoutProvider) Invalidate(ctx context.Context, customerID string) error {
	if inv, ok := p.next.(Invalidator); ok {
		return inv.Invalidate(ctx, customerID)
	}
	return nil
}
