package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	samplesEnqueued   metric.Int64Counter
	samplesDropped    metric.Int64Counter
	workerFailures    metric.Int64Counter
	billingsApplied   metric.Int64Counter
	notifications     metric.Int64Counter
	entitiesFirstSeen metric.Int64Counter

	queueDepthMu sync.Mutex
	queueDepth   func() int64
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "credits"
	}
	meter := provider.Meter(name)

	samplesEnqueued, err := meter.Int64Counter("credits_samples_enqueued_total")
	if err != nil {
		return nil, err
	}
	samplesDropped, err := meter.Int64Counter("credits_samples_dropped_total")
	if err != nil {
		return nil, err
	}
	workerFailures, err := meter.Int64Counter("credits_worker_failures_total")
	if err != nil {
		return nil, err
	}
	billingsApplied, err := meter.Int64Counter("credits_billings_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("credits_notifications_total")
	if err != nil {
		return nil, err
	}
	entitiesFirstSeen, err := meter.Int64Counter("credits_entities_first_seen_total")
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		samplesEnqueued:   samplesEnqueued,
		samplesDropped:    samplesDropped,
		workerFailures:    workerFailures,
		billingsApplied:   billingsApplied,
		notifications:     notifications,
		entitiesFirstSeen: entitiesFirstSeen,
	}

	_, err = meter.Int64ObservableGauge("credits_queue_depth",
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.queueDepthMu.Lock()
			fn := m.queueDepth
			m.queueDepthMu.Unlock()
			if fn != nil {
				obs.Observe(fn())
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterQueueDepth wires the queue depth gauge to the given reader.
func (m *Metrics) RegisterQueueDepth(fn func() int64) {
	if m == nil {
		return
	}
	m.queueDepthMu.Lock()
	m.queueDepth = fn
	m.queueDepthMu.Unlock()
}

// RecordSampleEnqueued increments ingest counts.
func (m *Metrics) RecordSampleEnqueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.samplesEnqueued.Add(ctx, 1)
}

// RecordSampleDropped increments drop counts by reason.
func (m *Metrics) RecordSampleDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.samplesDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWorkerFailure increments unexpected worker failure counts.
func (m *Metrics) RecordWorkerFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.workerFailures.Add(ctx, 1)
}

// RecordBilling increments applied billing counts per metric.
func (m *Metrics) RecordBilling(ctx context.Context, metricName string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("metric", strings.TrimSpace(metricName)))
	m.billingsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotification increments sent notification counts.
func (m *Metrics) RecordNotification(ctx context.Context) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1)
}

// RecordEntityFirstSeen increments the first-seen entity count.
func (m *Metrics) RecordEntityFirstSeen(ctx context.Context) {
	if m == nil {
		return
	}
	m.entitiesFirstSeen.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"reason":      {},
	"metric":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
