package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openbilling/credits/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyWriteSource = "credits:write:source:%s"

// WriteLimiter guards the ingest endpoint with one token bucket per
// source address.
type WriteLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewWriteLimiter builds the limiter from config. Returns (nil, nil)
// when rate limiting is disabled; callers treat a nil limiter as
// always-allow.
func NewWriteLimiter(cfg config.Config) (*WriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.WriteRate <= 0 || limitCfg.WriteBurst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &WriteLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.WriteRate,
		burst:   limitCfg.WriteBurst,
	}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowSource consumes one token from the source's bucket.
func (l *WriteLimiter) AllowSource(ctx context.Context, source string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWriteSource, strings.TrimSpace(source)), l.rate, l.burst)
}
