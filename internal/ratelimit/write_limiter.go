package ratelimit

import (
	"context"
	"fmt"

	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyWriteBurst = "write:key:%s"

	// Per API key, across all mutating routes. Sized for a busy register,
	// not a bulk importer.
	writeRate  = 20.0
	writeBurst = 60
)

type WriteLimiterParams struct {
	fx.In

	Log     *zap.Logger
	Bucket  *TokenBucket        `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// WriteLimiter throttles mutating API calls per credential so one
// misbehaving integration cannot starve the rest of the shop's traffic.
// Without redis it allows everything.
type WriteLimiter struct {
	log     *zap.Logger
	bucket  *TokenBucket
	metrics *obsmetrics.Metrics
}

func NewWriteLimiter(p WriteLimiterParams) *WriteLimiter {
	return &WriteLimiter{
		log:     p.Log.Named("ratelimit.write"),
		bucket:  p.Bucket,
		metrics: p.Metrics,
	}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open on redis errors, same as the public-link limiter.
func (l *WriteLimiter) Allow(ctx context.Context, keyID string) bool {
	if !l.Enabled() || keyID == "" {
		return true
	}

	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWriteBurst, keyID), writeRate, writeBurst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "api_write", "key")
		return false
	}

	l.metrics.RecordRateLimitAllowed(ctx, "api_write")
	return true
}
