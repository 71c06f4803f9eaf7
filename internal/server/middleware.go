package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/shoptok/internal/observability/context"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"github.com/smallbiznis/shoptok/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	// HeaderActor carries the caller identity asserted by the wallet layer.
	HeaderActor = "X-Actor-ID"

	contextActorKey = "actor_id"
)

// ActorRequired rejects requests without a caller identity.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor == "" || len(actor) > 128 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func actorFrom(c *gin.Context) string {
	return c.GetString(contextActorKey)
}

// RateLimitByActor applies the per-actor write budget. It runs after
// ActorRequired and fails open when the limiter backend errors.
func RateLimitByActor(limiter *ratelimit.ActorLimiter, m *obsmetrics.Metrics, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), actorFrom(c))
		if err != nil {
			log.Warn("rate limit check failed", zap.String("actor_id", actorFrom(c)), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			m.RecordRateLimited(c.FullPath())
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
