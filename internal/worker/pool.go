package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/openbilling/credits/internal/observability/logger"
	"github.com/openbilling/credits/internal/observability/metrics"
	"go.uber.org/zap"
)

// Handler processes one raw ingest line.
type Handler interface {
	Handle(ctx context.Context, line string) error
}

// Pool runs a fixed number of workers draining the queue. On shutdown it
// lets the queue drain within the grace period before cancelling the
// workers; a cancelled worker abandons its current line.
type Pool struct {
	queue   *Queue
	handler Handler
	metrics *metrics.Metrics
	log     *zap.Logger
	size    int
	grace   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(queue *Queue, handler Handler, m *metrics.Metrics, log *zap.Logger, size int, grace time.Duration) *Pool {
	return &Pool{
		queue:   queue,
		handler: handler,
		metrics: m,
		log:     log,
		size:    size,
		grace:   grace,
	}
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.log.Info("worker pool started", zap.Int("workers", p.size))
}

// Stop drains the queue within the grace period, then cancels whatever
// is still running.
func (p *Pool) Stop(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, p.grace)
	defer cancel()
	if err := p.queue.Join(drainCtx); err != nil {
		p.log.Warn("queue not drained before shutdown", zap.Int("remaining", p.queue.Len()))
	}
	p.cancel()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With(zap.Int("worker", id))
	for {
		line, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.process(ctx, log, line)
	}
}

func (p *Pool) process(ctx context.Context, log *zap.Logger, line string) {
	defer p.queue.Done()
	taskLog := logger.WithTask(log, TaskID(line))

	defer func() {
		if r := recover(); r != nil {
			taskLog.Error("panic while processing line",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			p.metrics.RecordWorkerFailure(ctx)
		}
	}()

	if err := p.handler.Handle(ctx, line); err != nil {
		taskLog.Error("processing line failed", zap.Error(err))
		p.metrics.RecordWorkerFailure(ctx)
	}
}

// TaskID derives a stable 12-digit correlation id from the raw line, so
// every log record of one sample's processing can be grepped together.
func TaskID(line string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(line))
	return fmt.Sprintf("%012d", h.Sum64())[:12]
}
