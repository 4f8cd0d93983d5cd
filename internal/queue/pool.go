package queue

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// WorkerPool drains an Async queue with prefetch=1 per worker: each worker
// takes one message, runs it to completion, and only deletes it afterward
// (ack_late). Retry is disabled at this level, matching §4.4 — a handler
// error is logged and the message is still deleted, because the failure has
// already been recorded as a Job/Step failure by the executor.
type WorkerPool struct {
	queue       *Async
	handler     HandlerFunc
	logger      arbor.ILogger
	concurrency int
	limiter     *rate.Limiter
	pollDelay   time.Duration
}

// NewWorkerPool builds a pool of concurrency workers pulling one message at
// a time, rate-limited to concurrency pickups per second so a burst of
// enqueued jobs doesn't all start GPU work in the same instant.
func NewWorkerPool(q *Async, handler HandlerFunc, logger arbor.ILogger, concurrency int) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		queue:       q,
		handler:     handler,
		logger:      logger,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(concurrency), concurrency),
		pollDelay:   250 * time.Millisecond,
	}
}

// Start launches concurrency worker goroutines. They run until ctx is
// cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		go p.runWorker(ctx, i)
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		msg, deleteFn, err := p.queue.receive(ctx)
		if err != nil {
			p.logger.Warn().Err(err).Int("worker", id).Msg("queue receive failed")
			time.Sleep(p.pollDelay)
			continue
		}
		if msg == nil {
			time.Sleep(p.pollDelay)
			continue
		}

		logMessage(p.logger, *msg, "picked up step")
		if err := p.handler(ctx, *msg); err != nil {
			p.logger.Error().Err(err).Str("job_id", msg.JobID).Str("step", string(msg.Step)).Msg("step handoff failed")
		}

		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := deleteFn(deleteCtx); err != nil {
			p.logger.Warn().Err(err).Str("job_id", msg.JobID).Msg("failed to delete processed queue message")
		}
		cancel()
	}
}
