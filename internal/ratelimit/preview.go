package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrollengine/internal/config"
	"go.uber.org/zap"
)

const keyPreviewTenant = "payroll:preview:tenant:%s"

// PreviewLimiter throttles calculation previews per tenant. It is disabled
// when redis is not configured or the rate is zero.
type PreviewLimiter struct {
	bucket *bucket
}

func NewPreviewLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *PreviewLimiter {
	if client == nil {
		return nil
	}
	b, err := newBucket(client, cfg.PreviewRatePerSecond, cfg.PreviewBurst)
	if err != nil {
		log.Info("preview rate limit disabled",
			zap.Float64("rate_per_second", cfg.PreviewRatePerSecond),
			zap.Int("burst", cfg.PreviewBurst),
		)
		return nil
	}
	return &PreviewLimiter{bucket: b}
}

func (l *PreviewLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PreviewLimiter) AllowTenant(ctx context.Context, tenantID string) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	return l.bucket.take(ctx, fmt.Sprintf(keyPreviewTenant, strings.TrimSpace(tenantID)))
}
