package billing

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	entitydomain "github.com/openbilling/credits/internal/entity/domain"
	entityrepo "github.com/openbilling/credits/internal/entity/repository"
	"github.com/openbilling/credits/internal/measurement"
	"github.com/openbilling/credits/internal/metric"
	"github.com/openbilling/credits/internal/notification"
	"github.com/openbilling/credits/internal/observability/metrics"
	tsdomain "github.com/openbilling/credits/internal/timeseries/domain"
	tsrepo "github.com/openbilling/credits/internal/timeseries/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type captureNotifier struct {
	payloads chan notification.Payload
}

func (c *captureNotifier) Notify(_ context.Context, p notification.Payload) error {
	c.payloads <- p
	return nil
}

type fixture struct {
	svc      *Service
	entities entitydomain.Store
	points   tsdomain.Store
	notifier *captureNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entitydomain.Entity{}, &tsdomain.UsagePoint{}, &tsdomain.HistoryEntry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry, err := metric.Load(filepath.Join(t.TempDir(), "absent.yml"), zap.NewNop())
	require.NoError(t, err)

	provider, err := metrics.NewProvider(nil, metrics.Config{}, nil)
	require.NoError(t, err)
	m, err := metrics.New(metrics.Config{}, provider)
	require.NoError(t, err)

	notifier := &captureNotifier{payloads: make(chan notification.Payload, 4)}
	entities := entityrepo.Provide(db, node)
	points := tsrepo.Provide(db, node)

	svc := NewService(Params{
		Entities:     entities,
		Points:       points,
		Resolver:     measurement.NewResolver(registry, nil, zap.NewNop()),
		Notifier:     notifier,
		Metrics:      m,
		Log:          zap.NewNop(),
		Precision:    2,
		WarnFraction: decimal.RequireFromString("0.5"),
	})

	return &fixture{svc: svc, entities: entities, points: points, notifier: notifier}
}

func (f *fixture) createEntity(t *testing.T, name string, granted int64) *entitydomain.Entity {
	t.Helper()
	e := &entitydomain.Entity{
		Name:           name,
		ContactEmails:  []string{name + "@example.com"},
		CreditsGranted: decimal.NewFromInt(granted),
	}
	require.NoError(t, f.entities.Create(context.Background(), e))
	return e
}

func (f *fixture) entity(t *testing.T, name string) *entitydomain.Entity {
	t.Helper()
	e, err := f.entities.Resolve(context.Background(), name)
	require.NoError(t, err)
	return e
}

func (f *fixture) history(t *testing.T, name string) []tsdomain.HistoryEntry {
	t.Helper()
	entries, err := f.points.QueryHistory(context.Background(), name, time.Time{}, time.Time{})
	require.NoError(t, err)
	return entries
}

func cpuLine(project, value string, ts time.Time) string {
	return fmt.Sprintf("project_vcpu_usage,project_name=%s value=%s %d", project, value, ts.UnixNano())
}

func day(n int) time.Time {
	return time.Date(2021, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestFirstSampleInitializesBalanceAndSeedsTimestamp(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)

	require.NoError(t, f.svc.Handle(context.Background(), cpuLine("alpha", "100", day(1))))

	e := f.entity(t, "alpha")
	require.True(t, e.CreditsCurrent.Valid)
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(200)))
	require.Contains(t, e.BilledTimestamps, "project_vcpu_usage")
	assert.True(t, e.BilledTimestamps["project_vcpu_usage"].Equal(day(1)))
	assert.Empty(t, f.history(t, "alpha"))
}

func TestSecondSampleBillsTheDelta(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "100", day(1))))
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "105", day(8))))

	e := f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(195)),
		"balance is %s", e.CreditsCurrent.Decimal)
	assert.True(t, e.BilledTimestamps["project_vcpu_usage"].Equal(day(8)))

	entries := f.history(t, "alpha")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Balance.Equal(decimal.NewFromInt(195)))
	assert.True(t, entries[0].Timestamp.Equal(day(8)))
	assert.Equal(t, "cpu", entries[0].MetricFriendlyName)
}

func TestStaleSampleIsDroppedWithoutMutation(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "100", day(1))))
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "105", day(8))))

	// replay of the already billed sample and an older one
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "105", day(8))))
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "103", day(5))))

	e := f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(195)))
	assert.True(t, e.BilledTimestamps["project_vcpu_usage"].Equal(day(8)))
	assert.Len(t, f.history(t, "alpha"), 1)
}

func TestEqualValueIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "100", day(1))))
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "100", day(2))))

	e := f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(200)))
	// timestamp not advanced so nothing is skipped once usage resumes
	assert.True(t, e.BilledTimestamps["project_vcpu_usage"].Equal(day(1)))
	assert.Empty(t, f.history(t, "alpha"))
}

func TestMissingHistoryReseedsAndDrops(t *testing.T) {
	f := newFixture(t)
	e := f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	// entity claims day 1 was billed, but no point at day 1 survives
	e.CreditsCurrent = decimal.NewNullDecimal(decimal.NewFromInt(200))
	e.BilledTimestamps = map[string]time.Time{"project_vcpu_usage": day(1)}
	require.NoError(t, f.entities.Save(ctx, e))
	require.NoError(t, f.points.AppendPoint(ctx, &tsdomain.UsagePoint{
		Entity: "alpha", MetricName: "project_vcpu_usage", Timestamp: day(3), Value: decimal.NewFromInt(110),
	}))

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "120", day(5))))

	got := f.entity(t, "alpha")
	assert.True(t, got.BilledTimestamps["project_vcpu_usage"].Equal(day(3)),
		"reseeded to %s", got.BilledTimestamps["project_vcpu_usage"])
	assert.True(t, got.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(200)))
	assert.Empty(t, f.history(t, "alpha"))

	// the chain works again from the reseeded point
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "115", day(6))))
	got = f.entity(t, "alpha")
	assert.True(t, got.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(195)))
}

func TestRoundingConservesSubPrecisionCharges(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "0", day(1))))

	// 0.004 credits rounds away at precision 2: no mutation at all
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "0.004", day(2))))
	e := f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(200)))
	assert.True(t, e.BilledTimestamps["project_vcpu_usage"].Equal(day(1)))
	assert.Empty(t, f.history(t, "alpha"))

	// the next sample is billed against the original point, so the
	// accumulated 0.008 is charged instead of being lost
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "0.008", day(3))))
	e = f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.RequireFromString("199.99")),
		"balance is %s", e.CreditsCurrent.Decimal)
	assert.True(t, e.BilledTimestamps["project_vcpu_usage"].Equal(day(3)))
}

func TestNegativeDeltaChargesNothing(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "100", day(1))))
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "50", day(2))))

	e := f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(200)))
	assert.Empty(t, f.history(t, "alpha"))
}

func TestUnknownEntityIsDropped(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Handle(context.Background(), cpuLine("ghost", "100", day(1)))
	assert.NoError(t, err)
}

func TestMalformedLineIsDropped(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Handle(context.Background(), "project_vcpu_usage,project_name=alpha novalue 123")
	assert.NoError(t, err)
}

func TestUnbillableMeasurementIsDropped(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)

	require.NoError(t, f.svc.Handle(context.Background(),
		fmt.Sprintf("instance_uptime,project_name=alpha value=1 %d", day(1).UnixNano())))

	e := f.entity(t, "alpha")
	assert.False(t, e.CreditsCurrent.Valid)
}

func TestNullBalanceWithBilledTimestampsIsFatal(t *testing.T) {
	f := newFixture(t)
	e := f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	e.BilledTimestamps = map[string]time.Time{"project_vcpu_usage": day(1)}
	require.NoError(t, f.entities.Save(ctx, e))

	err := f.svc.Handle(ctx, cpuLine("alpha", "100", day(2)))
	assert.ErrorIs(t, err, ErrBalanceMissing)
}

func TestThresholdNotificationFiresExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "0", day(1))))
	// crosses 100: 200 - 101 = 99
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "101", day(2))))

	select {
	case p := <-f.notifier.payloads:
		assert.Equal(t, "alpha", p.Project)
		assert.Equal(t, []string{"alpha@example.com"}, p.Contacts)
		assert.True(t, p.Balance.Equal(decimal.NewFromInt(99)))
		assert.True(t, p.Granted.Equal(decimal.NewFromInt(200)))
	case <-time.After(5 * time.Second):
		t.Fatal("expected a low-credits notification")
	}

	// further decrease below the threshold must not notify again
	require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", "102", day(3))))
	select {
	case <-f.notifier.payloads:
		t.Fatal("notification fired twice for one crossing")
	case <-time.After(100 * time.Millisecond):
	}

	e := f.entity(t, "alpha")
	assert.True(t, e.CreditsCurrent.Decimal.Equal(decimal.NewFromInt(98)))
}

func TestBalanceNeverIncreases(t *testing.T) {
	f := newFixture(t)
	f.createEntity(t, "alpha", 200)
	ctx := context.Background()

	values := []string{"10", "5", "12", "12", "11", "20"}
	prev := decimal.NewFromInt(200)
	for i, v := range values {
		require.NoError(t, f.svc.Handle(ctx, cpuLine("alpha", v, day(i+1))))
		e := f.entity(t, "alpha")
		require.True(t, e.CreditsCurrent.Valid)
		assert.True(t, e.CreditsCurrent.Decimal.LessThanOrEqual(prev),
			"balance increased from %s to %s at sample %d", prev, e.CreditsCurrent.Decimal, i)
		prev = e.CreditsCurrent.Decimal
	}
}
