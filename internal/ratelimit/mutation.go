package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/freya/internal/config"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyMutation = "freya:mutation:%s:%s"

// MutationLimiter throttles ledger mutations per caller account and endpoint.
type MutationLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

type MutationLimiterParams struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// NewMutationLimiter returns nil when rate limiting is disabled. A nil
// limiter allows everything.
func NewMutationLimiter(p MutationLimiterParams) (*MutationLimiter, error) {
	if !p.Config.RateLimitEnabled {
		return nil, nil
	}
	if p.Redis == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if p.Config.RateLimitRate <= 0 || p.Config.RateLimitBurst <= 0 {
		return nil, errors.New("mutation rate limit must be positive")
	}
	return &MutationLimiter{
		bucket:  NewTokenBucket(p.Redis),
		rate:    p.Config.RateLimitRate,
		burst:   p.Config.RateLimitBurst,
		log:     p.Log.Named("ratelimit.mutation"),
		metrics: p.ObsMetrics,
	}, nil
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token from the account's bucket for endpoint. Redis
// failures fail open.
func (l *MutationLimiter) Allow(ctx context.Context, account, endpoint string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}

	res, err := l.bucket.Allow(ctx, mutationKey(account, endpoint), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		if l.metrics != nil {
			l.metrics.RecordRateLimitAllowed(ctx, endpoint)
		}
		return Result{Allowed: true}, err
	}

	if l.metrics != nil {
		if res.Allowed {
			l.metrics.RecordRateLimitAllowed(ctx, endpoint)
		} else {
			l.metrics.RecordRateLimitDenied(ctx, endpoint, "account")
		}
	}
	return res, nil
}

func mutationKey(account, endpoint string) string {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		account = "anonymous"
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "default"
	}
	return fmt.Sprintf(keyMutation, account, endpoint)
}
