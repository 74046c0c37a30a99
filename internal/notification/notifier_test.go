package notification

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestShouldNotify(t *testing.T) {
	granted := d("200")
	half := d("0.5")

	// crossing from above to at-or-below fires
	assert.True(t, ShouldNotify(d("100.01"), d("100"), granted, half))
	assert.True(t, ShouldNotify(d("150"), d("99"), granted, half))

	// already below, no repeat
	assert.False(t, ShouldNotify(d("100"), d("95"), granted, half))
	assert.False(t, ShouldNotify(d("99"), d("98"), granted, half))

	// still above
	assert.False(t, ShouldNotify(d("150"), d("101"), granted, half))

	// no change
	assert.False(t, ShouldNotify(d("100"), d("100"), granted, half))
}

type captureProvider struct {
	to      []string
	cc      []string
	subject string
	body    string
	calls   int
}

func (c *captureProvider) Send(_ context.Context, to, cc []string, subject, body string) error {
	c.to = to
	c.cc = cc
	c.subject = subject
	c.body = body
	c.calls++
	return nil
}

func payload() Payload {
	return Payload{
		Project:  "alpha",
		Contacts: []string{"owner@example.com"},
		Granted:  d("200"),
		Balance:  d("100"),
	}
}

func TestNotifySendsToContactsWithGovernanceCc(t *testing.T) {
	provider := &captureProvider{}
	n := NewNotifier(provider, "governance@example.com", "", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), payload()))

	assert.Equal(t, []string{"owner@example.com"}, provider.to)
	assert.Equal(t, []string{"governance@example.com"}, provider.cc)
	assert.Contains(t, provider.subject, "alpha")
	assert.Contains(t, provider.body, "200")
	assert.Contains(t, provider.body, "100")
}

func TestNotifyFallsBackToGovernance(t *testing.T) {
	provider := &captureProvider{}
	n := NewNotifier(provider, "governance@example.com", "", zap.NewNop())

	p := payload()
	p.Contacts = nil
	require.NoError(t, n.Notify(context.Background(), p))

	assert.Equal(t, []string{"governance@example.com"}, provider.to)
	assert.Empty(t, provider.cc)
}

func TestNotifyOverwriteReplacesAllRecipients(t *testing.T) {
	provider := &captureProvider{}
	n := NewNotifier(provider, "governance@example.com", "staging@example.com", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), payload()))

	assert.Equal(t, []string{"staging@example.com"}, provider.to)
	assert.Empty(t, provider.cc)
}

func TestNotifyWithoutAnyRecipientFails(t *testing.T) {
	provider := &captureProvider{}
	n := NewNotifier(provider, "", "", zap.NewNop())

	p := payload()
	p.Contacts = nil
	err := n.Notify(context.Background(), p)
	assert.Error(t, err)
	assert.Zero(t, provider.calls)
}
