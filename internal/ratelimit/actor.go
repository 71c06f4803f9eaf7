package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/shoptok/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyActorWrites = "shoptok:ratelimit:actor:%s"

// ActorLimiter bounds mutating requests per caller identity. A nil
// *ActorLimiter allows everything.
type ActorLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewActorLimiter(bucket *TokenBucket, rate float64, burst int) (*ActorLimiter, error) {
	if bucket == nil {
		return nil, ErrNotConfigured
	}
	if rate <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &ActorLimiter{bucket: bucket, rate: rate, burst: burst}, nil
}

// Provide builds the limiter from config. It returns nil when rate limiting
// is disabled.
func Provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*ActorLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	limiter, err := NewActorLimiter(NewTokenBucket(client), limitCfg.Rate, limitCfg.Burst)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("actor rate limit enabled",
		zap.Float64("rate", limitCfg.Rate),
		zap.Int("burst", limitCfg.Burst),
	)
	return limiter, nil
}

func (l *ActorLimiter) Allow(ctx context.Context, actor string) (*RateLimitResult, error) {
	if l == nil {
		return &RateLimitResult{Allowed: true}, nil
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return &RateLimitResult{Allowed: false}, ErrEmptyKey
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyActorWrites, actor), l.rate, l.burst)
}
