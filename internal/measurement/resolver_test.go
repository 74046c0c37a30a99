package measurement

import (
	"path/filepath"
	"testing"

	"github.com/openbilling/credits/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultRegistry(t *testing.T) *metric.Registry {
	t.Helper()
	reg, err := metric.Load(filepath.Join(t.TempDir(), "absent.yml"), zap.NewNop())
	require.NoError(t, err)
	return reg
}

func TestResolveBillableLine(t *testing.T) {
	r := NewResolver(defaultRegistry(t), nil, zap.NewNop())

	sample, err := r.Resolve("project_vcpu_usage,project_name=alpha value=3 1609459200000000000")
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, "alpha", sample.Entity)
	assert.Equal(t, "cpu", sample.Metric.FriendlyName)
}

func TestResolveUnknownMeasurementIsSilent(t *testing.T) {
	r := NewResolver(defaultRegistry(t), nil, zap.NewNop())

	sample, err := r.Resolve("instance_uptime,project_name=alpha value=3 1609459200000000000")
	require.NoError(t, err)
	assert.Nil(t, sample)
}

func TestResolveMalformedBillableLine(t *testing.T) {
	r := NewResolver(defaultRegistry(t), nil, zap.NewNop())

	_, err := r.Resolve("project_vcpu_usage,project_name=alpha novalue 1609459200000000000")
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestResolveAllowlist(t *testing.T) {
	allow := map[string]struct{}{"alpha": {}}
	r := NewResolver(defaultRegistry(t), allow, zap.NewNop())

	sample, err := r.Resolve("project_vcpu_usage,project_name=beta value=3 1609459200000000000")
	require.NoError(t, err)
	assert.Nil(t, sample)

	sample, err = r.Resolve("project_vcpu_usage,project_name=alpha value=3 1609459200000000000")
	require.NoError(t, err)
	assert.NotNil(t, sample)
}
