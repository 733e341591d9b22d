package signals

import (
	"context"
	"errors"
	"sync"

	"pumpfun-scanner/internal/logging"
)

const (
	queueCapacity = 256
	queueWorkers  = 2
)

// Queue deduplicates evaluation requests and feeds them to workers. A mint
// already pending is not enqueued twice.
type Queue struct {
	eval *Evaluator

	mu      sync.Mutex
	pending map[string]bool
	ch      chan string

	quit   chan struct{}
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewQueue creates an evaluation queue.
func NewQueue(eval *Evaluator) *Queue {
	return &Queue{
		eval:    eval,
		pending: make(map[string]bool),
		ch:      make(chan string, queueCapacity),
		quit:    make(chan struct{}),
		logger:  logging.WithComponent("eval-queue"),
	}
}

// EnqueueEvaluation requests an evaluation. Duplicate and overflow requests
// are dropped; the next AIM price tick re-enqueues.
func (q *Queue) EnqueueEvaluation(mint string) {
	q.mu.Lock()
	if q.pending[mint] {
		q.mu.Unlock()
		return
	}
	q.pending[mint] = true
	q.mu.Unlock()

	select {
	case q.ch <- mint:
	default:
		q.mu.Lock()
		delete(q.pending, mint)
		q.mu.Unlock()
		q.logger.Warn("Evaluation queue full, request dropped", "mint", mint)
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < queueWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop halts the workers; queued requests are dropped.
func (q *Queue) Stop() {
	close(q.quit)
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case <-ctx.Done():
			return
		case mint := <-q.ch:
			q.mu.Lock()
			delete(q.pending, mint)
			q.mu.Unlock()

			if _, err := q.eval.Evaluate(ctx, mint); err != nil && !errors.Is(err, ErrNotInAim) {
				q.logger.Error("Evaluation failed", "mint", mint, "error", err)
			}
		}
	}
}
