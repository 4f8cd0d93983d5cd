// Package executor is the step executor framework (C6): it transitions a
// step and its job through running -> {succeeded, failed}, invokes the
// registered handler, persists artifacts and events in the order the
// invariants in §4.5 require, and chains into the next step of a job.
package executor

import (
	"context"

	"github.com/ternarybob/dreamforge/internal/models"
)

// Item is one produced output, as a handler hands it to the executor
// before it becomes a persisted Artifact + artifact.written event.
type Item struct {
	ItemIndex int
	Bytes     []byte
	Format    models.ArtifactFormat
	Width     int
	Height    int
	Seed      *int64
	Scale     int // 0 when not applicable (generate step)
	S3Key     string
	Metadata  map[string]interface{}
}

// EventFunc lets a handler append an observability event (e.g.
// model.selected) without reaching into the repository directly.
type EventFunc func(code string, level models.EventLevel, payload map[string]interface{}) error

// HandlerContext is everything a step handler needs beyond its own wiring.
type HandlerContext struct {
	Job        *models.Job
	Step       *models.Step
	AppendEvent EventFunc
}

// Handler produces N items for one step invocation (N = params.count,
// default 1). It is responsible for uploading bytes to the object store and
// choosing each item's key; the executor only persists the resulting
// metadata.
type Handler interface {
	Run(ctx context.Context, hctx *HandlerContext) ([]Item, error)
}
