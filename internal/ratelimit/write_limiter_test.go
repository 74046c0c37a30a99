package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/openbilling/credits/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriteLimiterDisabled(t *testing.T) {
	limiter, err := NewWriteLimiter(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	allowed, err := limiter.AllowSource(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewWriteLimiterValidation(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}
	_, err := NewWriteLimiter(cfg)
	assert.Error(t, err)

	cfg.RateLimit.RedisAddr = "localhost:6379"
	cfg.RateLimit.WriteRate = -1
	_, err = NewWriteLimiter(cfg)
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 4*time.Second, bucketTTL(100, 200))
	assert.Equal(t, time.Second, bucketTTL(1000, 1))
}
