package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "credits", cfg.AppName)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, int32(2), cfg.Precision)
	assert.Equal(t, 120*time.Second, cfg.ShutdownGrace)
	assert.True(t, cfg.WarnThreshold.Equal(decimal.RequireFromString("0.5")))
	assert.Empty(t, cfg.Allowlist)
	assert.False(t, cfg.Mail.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CREDITS_WORKERS", "4")
	t.Setenv("CREDITS_PRECISION", "3")
	t.Setenv("CREDITS_WARN_THRESHOLD", "0.25")
	t.Setenv("CREDITS_SHUTDOWN_GRACE", "30")
	t.Setenv("CREDITS_PROJECT_ALLOWLIST", "alpha;beta; ;gamma")
	t.Setenv("MAIL_SMTP_HOST", "mail.example.com")

	cfg := Load()

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, int32(3), cfg.Precision)
	assert.True(t, cfg.WarnThreshold.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
	require.Len(t, cfg.Allowlist, 3)
	assert.Contains(t, cfg.Allowlist, "alpha")
	assert.Contains(t, cfg.Allowlist, "gamma")
	assert.True(t, cfg.Mail.Enabled())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CREDITS_WORKERS", "-2")
	t.Setenv("CREDITS_WARN_THRESHOLD", "half")
	t.Setenv("CREDITS_SHUTDOWN_GRACE", "soon")

	cfg := Load()

	assert.Equal(t, 10, cfg.Workers)
	assert.True(t, cfg.WarnThreshold.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 120*time.Second, cfg.ShutdownGrace)
}
