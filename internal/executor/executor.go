package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/metrics"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/queue"
	"github.com/ternarybob/dreamforge/internal/store"
)

// Executor drives one step to completion and, on success, chains into the
// next step of the job (or finishes the job) by re-enqueueing — the same
// code path whether the queue is eager or async (§4.4/§4.5).
type Executor struct {
	Repo     store.Repository
	Handlers map[models.StepName]Handler
	Queue    queue.Queue
	Logger   arbor.ILogger
	Metrics  *metrics.Registry
}

// New builds an Executor. The Queue the executor re-enqueues chained steps
// onto (eager or async, per §4.4) is not a parameter: callers set it with
// SetQueue after constructing the Queue, which itself wraps this Executor's
// Execute method as its HandlerFunc.
func New(repo store.Repository, handlers map[models.StepName]Handler, logger arbor.ILogger) *Executor {
	return &Executor{Repo: repo, Handlers: handlers, Logger: logger}
}

// SetQueue wires the queue the Executor re-enqueues chained steps onto. It
// must be called before Execute runs any job with more than one step.
func (e *Executor) SetQueue(q queue.Queue) {
	e.Queue = q
}

// SetMetrics wires the Prometheus registry the Executor records step
// durations and job-terminal counts against. Optional: a nil Metrics is a
// no-op, which keeps the executor usable standalone in tests.
func (e *Executor) SetMetrics(m *metrics.Registry) {
	e.Metrics = m
}

// Execute implements queue.HandlerFunc. A non-nil return means the hand-off
// itself failed (infra_unavailable); step/job failures produced by the
// handler are recorded on the Job/Step and swallowed here (nil return) since
// they are not a hand-off failure.
func (e *Executor) Execute(ctx context.Context, msg queue.Message) error {
	log := common.NewJobLogger(e.Logger, msg.JobID)

	step, err := e.Repo.GetStepByName(ctx, msg.JobID, msg.Step)
	if err != nil {
		return err
	}
	job, err := e.Repo.GetJob(ctx, msg.JobID)
	if err != nil {
		return err
	}

	if err := e.Repo.MarkStepRunning(ctx, step.ID); err != nil {
		return err
	}
	if err := e.Repo.MarkJobStatus(ctx, msg.JobID, models.StatusRunning, "", ""); err != nil {
		return err
	}
	if _, err := e.Repo.AppendEvent(ctx, msg.JobID, step.ID, models.EventStepStart, models.LevelInfo, nil); err != nil {
		return err
	}
	log.LogStepStart(string(msg.Step))

	handler, ok := e.Handlers[msg.Step]
	if !ok {
		e.failStep(ctx, log, job, step, fmt.Errorf("no handler registered for step %q", msg.Step))
		return nil
	}

	hctx := &HandlerContext{
		Job:  job,
		Step: step,
		AppendEvent: func(code string, level models.EventLevel, payload map[string]interface{}) error {
			_, err := e.Repo.AppendEvent(ctx, msg.JobID, step.ID, code, level, payload)
			return err
		},
	}
	started := time.Now()
	items, err := handler.Run(ctx, hctx)
	if err != nil {
		e.recordStepDuration(msg.Step, models.StatusFailed, started)
		e.failStep(ctx, log, job, step, err)
		return nil
	}

	for _, it := range items {
		artifact := &models.Artifact{
			JobID:     msg.JobID,
			StepID:    step.ID,
			Format:    it.Format,
			Width:     it.Width,
			Height:    it.Height,
			Seed:      it.Seed,
			ItemIndex: it.ItemIndex,
			S3Key:     it.S3Key,
			Metadata:  it.Metadata,
		}
		if err := e.Repo.InsertArtifact(ctx, artifact); err != nil {
			e.failStep(ctx, log, job, step, err)
			return nil
		}

		payload := map[string]interface{}{"s3_key": it.S3Key, "item_index": it.ItemIndex}
		if it.Seed != nil {
			payload["seed"] = *it.Seed
		}
		if it.Scale != 0 {
			payload["scale"] = it.Scale
		}
		if _, err := e.Repo.AppendEvent(ctx, msg.JobID, step.ID, models.EventArtifactWritten, models.LevelInfo, payload); err != nil {
			e.failStep(ctx, log, job, step, err)
			return nil
		}
	}

	if err := e.Repo.MarkStepFinished(ctx, step.ID, models.StatusSucceeded); err != nil {
		return err
	}
	if _, err := e.Repo.AppendEvent(ctx, msg.JobID, step.ID, models.EventStepFinish, models.LevelInfo, nil); err != nil {
		return err
	}
	e.recordStepDuration(msg.Step, models.StatusSucceeded, started)
	log.LogStepFinish(string(msg.Step), time.Since(started))

	_, steps, err := e.Repo.GetJobWithSteps(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if next := nextStep(steps, msg.Step); next != "" {
		return e.Queue.Enqueue(ctx, queue.Message{JobID: msg.JobID, Step: next})
	}

	if err := e.Repo.MarkJobStatus(ctx, msg.JobID, models.StatusSucceeded, "", ""); err != nil {
		return err
	}
	_, err = e.Repo.AppendEvent(ctx, msg.JobID, "", models.EventJobFinish, models.LevelInfo, nil)
	if err == nil {
		log.LogJobFinish()
		e.recordJobTerminal(job.Type, models.StatusSucceeded)
	}
	return err
}

// recordStepDuration is a no-op when no metrics registry was wired (e.g.
// tests that construct an Executor directly).
func (e *Executor) recordStepDuration(step models.StepName, status models.Status, started time.Time) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.RecordStepDuration(string(step), string(status), time.Since(started).Seconds())
}

func (e *Executor) recordJobTerminal(jobType models.JobType, status models.Status) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.RecordJobTerminal(string(jobType), string(status))
}

// failStep records a handler failure as a terminal step/job failure plus an
// error event, per §7's propagation policy. It never returns an error
// itself: a failure to record a failure is logged and swallowed, since the
// job is already in its worst observable state.
func (e *Executor) failStep(ctx context.Context, log *common.JobLogger, job *models.Job, step *models.Step, cause error) {
	log.LogStepError(string(step.Name), cause)

	details, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if _, err := e.Repo.AppendEvent(ctx, job.ID, step.ID, models.EventError, models.LevelError, map[string]interface{}{"message": cause.Error()}); err != nil {
		log.Warn().Err(err).Msg("failed to record error event")
	}
	if err := e.Repo.MarkStepFinished(ctx, step.ID, models.StatusFailed); err != nil {
		log.Warn().Err(err).Msg("failed to mark step failed")
	}
	if err := e.Repo.MarkJobStatus(ctx, job.ID, models.StatusFailed, "internal", string(details)); err != nil {
		log.Warn().Err(err).Msg("failed to mark job failed")
	}
	e.recordJobTerminal(job.Type, models.StatusFailed)
}

// nextStep returns the step name immediately after current in chain order
// (steps is already ordered by created_at), or "" if current is terminal.
func nextStep(steps []models.Step, current models.StepName) models.StepName {
	for i, s := range steps {
		if s.Name == current && i+1 < len(steps) {
			return steps[i+1].Name
		}
	}
	return ""
}
