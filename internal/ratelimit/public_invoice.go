package ratelimit

import (
	"context"
	"fmt"
	"strings"

	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyPublicInvoiceToken = "public:invoice:token:%s"
	keyPublicInvoiceIP    = "public:invoice:ip:%s"

	// Per-link: enough for a customer reloading a PDF, not enough for
	// token scanning.
	publicTokenRate  = 1.0
	publicTokenBurst = 10

	publicIPRate  = 5.0
	publicIPBurst = 20
)

type PublicInvoiceLimiterParams struct {
	fx.In

	Log     *zap.Logger
	Bucket  *TokenBucket        `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// PublicInvoiceLimiter throttles the unauthenticated invoice-link
// endpoint per token and per client IP. Without redis it allows
// everything, which matches single-node dev setups.
type PublicInvoiceLimiter struct {
	log     *zap.Logger
	bucket  *TokenBucket
	metrics *obsmetrics.Metrics
}

func NewPublicInvoiceLimiter(p PublicInvoiceLimiterParams) *PublicInvoiceLimiter {
	return &PublicInvoiceLimiter{
		log:     p.Log.Named("ratelimit.public_invoice"),
		bucket:  p.Bucket,
		metrics: p.Metrics,
	}
}

func (l *PublicInvoiceLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open: a redis error logs a warning and lets the request
// through rather than taking the public endpoint down with it.
func (l *PublicInvoiceLimiter) Allow(ctx context.Context, token, clientIP string) (bool, string) {
	if !l.Enabled() {
		return true, ""
	}

	ipRes, err := l.bucket.Allow(ctx, fmt.Sprintf(keyPublicInvoiceIP, strings.TrimSpace(clientIP)), publicIPRate, publicIPBurst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err))
		return true, ""
	}
	if !ipRes.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "public_invoice", "ip")
		return false, "ip"
	}

	tokenRes, err := l.bucket.Allow(ctx, fmt.Sprintf(keyPublicInvoiceToken, strings.TrimSpace(token)), publicTokenRate, publicTokenBurst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err))
		return true, ""
	}
	if !tokenRes.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "public_invoice", "token")
		return false, "token"
	}

	l.metrics.RecordRateLimitAllowed(ctx, "public_invoice")
	return true, ""
}
