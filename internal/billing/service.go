package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	entitydomain "github.com/openbilling/credits/internal/entity/domain"
	"github.com/openbilling/credits/internal/measurement"
	"github.com/openbilling/credits/internal/notification"
	"github.com/openbilling/credits/internal/observability/metrics"
	tsdomain "github.com/openbilling/credits/internal/timeseries/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrBalanceMissing reports an entity whose balance is null although it
// has already been billed. That state cannot be reached by this service;
// it means the stored attributes were tampered with or corrupted, so the
// sample must not be billed.
var ErrBalanceMissing = errors.New("entity has billed timestamps but no balance")

// Service drains the ingestion queue: each raw line is resolved, stored
// and billed against its entity's balance under the entity lock.
type Service struct {
	entities entitydomain.Store
	points   tsdomain.Store
	resolver *measurement.Resolver
	locks    *LockTable
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger

	precision    int32
	warnFraction decimal.Decimal
}

// Notifier is the notification surface the billing service needs.
type Notifier interface {
	Notify(ctx context.Context, p notification.Payload) error
}

type Params struct {
	Entities     entitydomain.Store
	Points       tsdomain.Store
	Resolver     *measurement.Resolver
	Notifier     Notifier
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Precision    int32
	WarnFraction decimal.Decimal
}

func NewService(p Params) *Service {
	s := &Service{
		entities:     p.Entities,
		points:       p.Points,
		resolver:     p.Resolver,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
		log:          p.Log,
		precision:    p.Precision,
		warnFraction: p.WarnFraction,
	}
	s.locks = NewLockTable(func(name string) {
		s.metrics.RecordEntityFirstSeen(context.Background())
		s.log.Info("entity seen for the first time", zap.String("entity", name))
	})
	return s
}

// Handle processes one raw line from the queue. Expected anomalies
// (unbillable lines, unknown entities, stale samples, billing gaps) are
// logged and dropped; only the fatal balance inconsistency and storage
// failures reach the caller.
func (s *Service) Handle(ctx context.Context, line string) error {
	sample, err := s.resolver.Resolve(line)
	if err != nil {
		s.log.Warn("dropping undecodable line", zap.Error(err))
		s.metrics.RecordSampleDropped(ctx, "malformed")
		return nil
	}
	if sample == nil {
		s.metrics.RecordSampleDropped(ctx, "not_billable")
		return nil
	}

	if err := s.points.AppendPoint(ctx, &tsdomain.UsagePoint{
		Entity:     sample.Entity,
		MetricName: sample.MetricName,
		Timestamp:  sample.Timestamp,
		Value:      sample.Value,
	}); err != nil {
		return fmt.Errorf("store usage point: %w", err)
	}

	lock := s.locks.Acquire(sample.Entity)
	lock.Lock()
	defer lock.Unlock()

	return s.update(ctx, sample)
}

// update applies one sample to the entity's balance. Caller holds the
// entity lock.
func (s *Service) update(ctx context.Context, sample *measurement.Sample) error {
	log := s.log.With(
		zap.String("entity", sample.Entity),
		zap.String("metric", sample.MetricName),
		zap.Time("sample_ts", sample.Timestamp),
	)

	e, err := s.entities.Resolve(ctx, sample.Entity)
	if errors.Is(err, entitydomain.ErrEntityNotFound) {
		log.Warn("sample for unknown entity")
		s.metrics.RecordSampleDropped(ctx, "unknown_entity")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve entity: %w", err)
	}

	if !e.CreditsCurrent.Valid {
		if len(e.BilledTimestamps) > 0 {
			return fmt.Errorf("%w: entity %s", ErrBalanceMissing, e.Name)
		}
		// First contact with this entity: the balance starts at the full
		// grant and the sample below only seeds the timestamp.
		e.CreditsCurrent = decimal.NewNullDecimal(e.CreditsGranted)
		log.Info("initialized balance", zap.String("granted", e.CreditsGranted.String()))
	}

	if e.BilledTimestamps == nil {
		e.BilledTimestamps = map[string]time.Time{}
	}

	last, seen := e.BilledTimestamps[sample.MetricName]
	if !seen {
		e.BilledTimestamps[sample.MetricName] = sample.Timestamp
		if err := s.entities.Save(ctx, e); err != nil {
			return fmt.Errorf("save entity: %w", err)
		}
		log.Info("seeded metric timestamp, sample not billed")
		return nil
	}

	if !sample.Timestamp.After(last) {
		log.Warn("stale sample", zap.Time("last_billed", last))
		s.metrics.RecordSampleDropped(ctx, "stale")
		return nil
	}

	points, err := s.points.QueryRange(ctx, sample.Entity, sample.MetricName, last)
	if err != nil {
		return fmt.Errorf("query usage range: %w", err)
	}
	if len(points) == 0 || !points[0].Timestamp.Equal(last) {
		// The previously billed point is gone from storage: the usage
		// between it and the oldest surviving point is permanently
		// unbillable. Restart the delta chain from what is left.
		oldest := sample.Timestamp
		if len(points) > 0 {
			oldest = points[0].Timestamp
		}
		e.BilledTimestamps[sample.MetricName] = oldest
		if err := s.entities.Save(ctx, e); err != nil {
			return fmt.Errorf("save entity: %w", err)
		}
		log.Warn("billed point missing from storage, reseeding",
			zap.Time("last_billed", last),
			zap.Time("reseeded_to", oldest),
		)
		s.metrics.RecordSampleDropped(ctx, "missing_history")
		return nil
	}
	prev := points[0]

	if sample.Value.Equal(prev.Value) {
		// nothing consumed since the last billing
		return nil
	}

	charge, err := Charge(sample.Metric, prev.Value, sample.Value, prev.Timestamp, sample.Timestamp)
	if err != nil {
		return fmt.Errorf("calculate charge: %w", err)
	}

	balance := e.CreditsCurrent.Decimal
	candidate := balance.Sub(charge).RoundBank(s.precision)
	if candidate.Equal(balance) {
		// The charge vanishes at the configured precision. Keep the
		// timestamp where it is so the delta accumulates into the next
		// sample instead of being lost.
		return nil
	}

	e.BilledTimestamps[sample.MetricName] = sample.Timestamp
	e.CreditsCurrent = decimal.NewNullDecimal(candidate)

	if err := s.points.AppendHistory(ctx, &tsdomain.HistoryEntry{
		Entity:             e.Name,
		Timestamp:          sample.Timestamp,
		Balance:            candidate,
		MetricName:         sample.Metric.Name,
		MetricFriendlyName: sample.Metric.FriendlyName,
	}); err != nil {
		return fmt.Errorf("append billing history: %w", err)
	}
	if err := s.entities.Save(ctx, e); err != nil {
		return fmt.Errorf("save entity: %w", err)
	}

	s.metrics.RecordBilling(ctx, sample.MetricName)
	log.Info("billed",
		zap.String("charge", charge.String()),
		zap.String("balance", candidate.String()),
	)

	if notification.ShouldNotify(balance, candidate, e.CreditsGranted, s.warnFraction) {
		s.dispatchNotification(e, candidate)
	}

	return nil
}

// dispatchNotification sends the low-credits warning without holding up
// or rolling back the billing that triggered it.
func (s *Service) dispatchNotification(e *entitydomain.Entity, balance decimal.Decimal) {
	payload := notification.Payload{
		Project:  e.Name,
		Contacts: append([]string{}, e.ContactEmails...),
		Granted:  e.CreditsGranted,
		Balance:  balance,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, payload); err != nil {
			s.log.Error("low-credits notification failed",
				zap.String("entity", payload.Project),
				zap.Error(err),
			)
			return
		}
		s.metrics.RecordNotification(ctx)
	}()
}
