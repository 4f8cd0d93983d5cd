// Package queue hands (jobId, stepName) pairs from the submission API to the
// step executor (C5). Two Queue implementations share one HandlerFunc: an
// eager queue that runs inline on the caller's goroutine (used by tests), and
// a goqite-backed async queue drained by a worker pool.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"maragu.dev/goqite"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/models"
)

// Message is the payload handed to a worker: which job, which step to run
// next. The executor looks up everything else from the repository.
type Message struct {
	JobID string          `json:"job_id"`
	Step  models.StepName `json:"step"`
}

// HandlerFunc executes one step to completion (including chaining into the
// next step, per the executor framework in §4.5). A non-nil error here means
// the hand-off itself failed (infra_unavailable); step/job failures are
// recorded by the executor and do not surface as an error from HandlerFunc.
type HandlerFunc func(ctx context.Context, msg Message) error

// Queue enqueues a step for execution, synchronously or asynchronously
// depending on the implementation.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	// Close releases resources held by the queue. Neither implementation
	// here owns a worker pool or the shared sqlite connection, so both
	// Close methods are no-ops.
	Close() error
}

// Eager runs the handler inline, on the Enqueue caller's goroutine. It is
// the queue used by eager-mode tests and by DF_CELERY_EAGER=true.
type Eager struct {
	handler HandlerFunc
}

func NewEager(handler HandlerFunc) *Eager {
	return &Eager{handler: handler}
}

func (e *Eager) Enqueue(ctx context.Context, msg Message) error {
	return e.handler(ctx, msg)
}

func (e *Eager) Close() error { return nil }

// Async enqueues onto a named goqite queue backed by the same sqlite
// database as the repository. A WorkerPool (see pool.go) drains it.
type Async struct {
	db   *sql.DB
	q    *goqite.Queue
	name string
}

// NewAsync bootstraps the goqite schema on db (idempotent: an "already
// exists" error from a prior run is not a failure) and wraps its queue by
// name. db is the same sqlite connection the repository uses, so enqueue
// and the repository write that produced it commit as one file's worth of
// durability without a second store to keep in sync.
func NewAsync(db *sql.DB, name string) (*Async, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := goqite.Setup(ctx, db); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, apperr.InfraUnavailable(fmt.Errorf("setup goqite schema: %w", err))
		}
	}

	return &Async{
		db:   db,
		q:    goqite.New(goqite.NewOpts{DB: db, Name: name}),
		name: name,
	}, nil
}

// Depth reports the number of undelivered-or-in-flight messages on this
// queue, backing the C10 queue-depth gauge.
func (a *Async) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goqite WHERE queue = ?`, a.name).Scan(&n)
	if err != nil {
		return 0, apperr.InfraUnavailable(fmt.Errorf("queue depth: %w", err))
	}
	return n, nil
}

func (a *Async) Enqueue(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return apperr.Internal(fmt.Errorf("marshal queue message: %w", err))
	}
	if err := a.q.Send(ctx, goqite.Message{Body: body}); err != nil {
		return apperr.InfraUnavailable(fmt.Errorf("enqueue to %s: %w", a.name, err))
	}
	return nil
}

func (a *Async) Close() error { return nil }

// receive pulls the next message (if any) and returns a delete func to ack
// it after processing. Returns a nil message when the queue is empty.
func (a *Async) receive(ctx context.Context) (*Message, func(context.Context) error, error) {
	gMsg, err := a.q.Receive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if gMsg == nil {
		return nil, nil, nil
	}

	var msg Message
	if err := json.Unmarshal(gMsg.Body, &msg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal queue message: %w", err)
	}

	deleteFn := func(ctx context.Context) error {
		return a.q.Delete(ctx, gMsg.ID)
	}
	return &msg, deleteFn, nil
}

// logMessage writes the one-line debug log pool.go emits when a worker
// picks up a message.
func logMessage(logger arbor.ILogger, msg Message, event string) {
	logger.Debug().Str("job_id", msg.JobID).Str("step", string(msg.Step)).Msg(event)
}
