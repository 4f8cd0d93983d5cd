package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/queue"
	"github.com/ternarybob/dreamforge/internal/storage/sqlite"
	"github.com/ternarybob/dreamforge/internal/store"
)

func setupExecutorTestRepo(t *testing.T) store.Repository {
	t.Helper()
	config := &common.SQLiteConfig{Path: t.TempDir() + "/exec.db", Environment: "test"}
	db, err := sqlite.NewSQLiteDB(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewRepository(db)
}

type stubHandler struct {
	items []Item
	err   error
}

func (h *stubHandler) Run(ctx context.Context, hctx *HandlerContext) ([]Item, error) {
	return h.items, h.err
}

func TestExecute_SingleStepSucceeds(t *testing.T) {
	repo := setupExecutorTestRepo(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{"prompt": "x"}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)

	handlers := map[models.StepName]Handler{
		models.StepGenerate: &stubHandler{items: []Item{{ItemIndex: 0, Format: models.FormatPNG, Width: 64, Height: 64, S3Key: "k/0.png"}}},
	}
	exec := New(repo, handlers, arbor.NewLogger())
	exec.SetQueue(queue.NewEager(exec.Execute))

	require.NoError(t, exec.Execute(ctx, queue.Message{JobID: job.ID, Step: models.StepGenerate}))

	reloaded, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, reloaded.Status)

	artifacts, err := repo.ListArtifactsByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "k/0.png", artifacts[0].S3Key)

	events, err := repo.IterEvents(ctx, job.ID, 0, 20)
	require.NoError(t, err)
	var codes []string
	for _, e := range events {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, models.EventStepStart)
	assert.Contains(t, codes, models.EventArtifactWritten)
	assert.Contains(t, codes, models.EventStepFinish)
	assert.Contains(t, codes, models.EventJobFinish)
}

func TestExecute_ChainsIntoNextStep(t *testing.T) {
	repo := setupExecutorTestRepo(t)
	ctx := context.Background()

	chain := store.ChainSpec{{Name: models.StepGenerate}, {Name: models.StepUpscale}}
	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", chain)
	require.NoError(t, err)

	handlers := map[models.StepName]Handler{
		models.StepGenerate: &stubHandler{items: []Item{{ItemIndex: 0, Format: models.FormatPNG, S3Key: "g/0.png"}}},
		models.StepUpscale:  &stubHandler{items: []Item{{ItemIndex: 0, Format: models.FormatPNG, S3Key: "u/0.png", Scale: 2}}},
	}
	exec := New(repo, handlers, arbor.NewLogger())
	exec.SetQueue(queue.NewEager(exec.Execute))

	require.NoError(t, exec.Execute(ctx, queue.Message{JobID: job.ID, Step: models.StepGenerate}))

	reloaded, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, reloaded.Status)

	upscaleStep, err := repo.GetStepByName(ctx, job.ID, models.StepUpscale)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, upscaleStep.Status)

	artifacts, err := repo.ListArtifactsByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}

func TestExecute_HandlerFailureMarksJobFailed(t *testing.T) {
	repo := setupExecutorTestRepo(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)

	handlers := map[models.StepName]Handler{
		models.StepGenerate: &stubHandler{err: errors.New("engine exploded")},
	}
	exec := New(repo, handlers, arbor.NewLogger())
	exec.SetQueue(queue.NewEager(exec.Execute))

	// A handler failure is recorded, not surfaced: Execute itself returns nil.
	require.NoError(t, exec.Execute(ctx, queue.Message{JobID: job.ID, Step: models.StepGenerate}))

	reloaded, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reloaded.Status)
	assert.Equal(t, "internal", reloaded.ErrorCode)

	step, err := repo.GetStepByName(ctx, job.ID, models.StepGenerate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, step.Status)

	events, err := repo.IterEvents(ctx, job.ID, 0, 20)
	require.NoError(t, err)
	var sawError bool
	for _, e := range events {
		if e.Code == models.EventError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestExecute_UnknownStepNoHandler(t *testing.T) {
	repo := setupExecutorTestRepo(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)

	exec := New(repo, map[models.StepName]Handler{}, arbor.NewLogger())
	exec.SetQueue(queue.NewEager(exec.Execute))

	require.NoError(t, exec.Execute(ctx, queue.Message{JobID: job.ID, Step: models.StepGenerate}))

	reloaded, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reloaded.Status)
}
