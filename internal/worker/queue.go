package worker

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of raw ingest lines. Enqueue never blocks;
// consumers must call Done once per dequeued item so Join can tell when
// every accepted line has been fully processed, not merely dequeued.
type Queue struct {
	mu         sync.Mutex
	items      []string
	unfinished int
	wake       chan struct{}
	drained    chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{})}
}

// Enqueue appends the line and wakes one blocked consumer.
func (q *Queue) Enqueue(line string) {
	q.mu.Lock()
	q.items = append(q.items, line)
	q.unfinished++
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

// Dequeue pops the oldest line, blocking until one is available or the
// context ends.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			line := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return line, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wake:
		}
	}
}

// Done marks one previously dequeued line as fully processed.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		panic("worker: Done called more often than Enqueue")
	}
	q.unfinished--
	if q.unfinished == 0 && q.drained != nil {
		close(q.drained)
		q.drained = nil
	}
}

// Join blocks until every enqueued line has been marked Done or the
// context ends.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	if q.drained == nil {
		q.drained = make(chan struct{})
	}
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-drained:
		return nil
	}
}

// Len reports the number of lines waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
