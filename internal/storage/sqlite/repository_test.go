package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/store"
)

func setupRepoTestDB(t *testing.T) *Repository {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"

	config := &common.SQLiteConfig{
		Path:          dbPath,
		CacheSizeMB:   10,
		WALMode:       false,
		BusyTimeoutMS: 5000,
		Environment:   "test",
	}

	db, err := NewSQLiteDB(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func TestCreateJobWithChain_SingleStep(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	params := map[string]interface{}{"prompt": "a red fox", "count": float64(2)}
	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, params, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.StatusQueued, job.Status)

	step, err := repo.GetStepByName(ctx, job.ID, models.StepGenerate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, step.Status)
	assert.Empty(t, step.Metadata)
}

func TestCreateJobWithChain_UpscaleMetadataPersists(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	chain := store.ChainSpec{
		{Name: models.StepGenerate},
		{Name: models.StepUpscale, Metadata: map[string]interface{}{"scale": float64(2), "impl": "auto", "strict_scale": false}},
	}
	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{"prompt": "x"}, "", chain)
	require.NoError(t, err)

	step, err := repo.GetStepByName(ctx, job.ID, models.StepUpscale)
	require.NoError(t, err)
	assert.Equal(t, float64(2), step.Metadata["scale"])
	assert.Equal(t, "auto", step.Metadata["impl"])
	assert.Equal(t, false, step.Metadata["strict_scale"])
}

func TestCreateJobWithChain_IdempotencyConflict(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	chain := store.ChainSpec{{Name: models.StepGenerate}}
	first, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{"prompt": "a"}, "same-key", chain)
	require.NoError(t, err)

	_, err = repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{"prompt": "b"}, "same-key", chain)
	require.Error(t, err)
	ae := apperr.As(err)
	require.Equal(t, apperr.CodeConflict, ae.Code)
	assert.Equal(t, first.ID, ae.Details["job_id"])
}

func TestGetJob_NotFound(t *testing.T) {
	repo := setupRepoTestDB(t)
	_, err := repo.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

func TestMarkStepAndJobStatus(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)
	step, err := repo.GetStepByName(ctx, job.ID, models.StepGenerate)
	require.NoError(t, err)

	require.NoError(t, repo.MarkStepRunning(ctx, step.ID))
	running, err := repo.GetStepByName(ctx, job.ID, models.StepGenerate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)

	require.NoError(t, repo.MarkStepFinished(ctx, step.ID, models.StatusSucceeded))
	finished, err := repo.GetStepByName(ctx, job.ID, models.StepGenerate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, finished.Status)
	require.NotNil(t, finished.FinishedAt)

	require.NoError(t, repo.MarkJobStatus(ctx, job.ID, models.StatusFailed, "internal", "boom"))
	reloaded, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reloaded.Status)
	assert.Equal(t, "internal", reloaded.ErrorCode)
	assert.Equal(t, "boom", reloaded.ErrorMessage)
}

func TestListJobs_FilterByStatus(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()
	chain := store.ChainSpec{{Name: models.StepGenerate}}

	j1, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", chain)
	require.NoError(t, err)
	_, err = repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", chain)
	require.NoError(t, err)

	require.NoError(t, repo.MarkJobStatus(ctx, j1.ID, models.StatusSucceeded, "", ""))

	succeeded, err := repo.ListJobs(ctx, models.StatusSucceeded, 10)
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, j1.ID, succeeded[0].ID)

	all, err := repo.ListJobs(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppendEventAndIterEvents(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)

	_, err = repo.AppendEvent(ctx, job.ID, "", models.EventStepStart, models.LevelInfo, map[string]interface{}{"foo": "bar"})
	require.NoError(t, err)
	_, err = repo.AppendEvent(ctx, job.ID, "", models.EventStepFinish, "", nil)
	require.NoError(t, err)

	events, err := repo.IterEvents(ctx, job.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventStepStart, events[0].Code)
	assert.Equal(t, "bar", events[0].Payload["foo"])
	assert.Equal(t, models.EventStepFinish, events[1].Code)
	assert.Equal(t, models.LevelInfo, events[1].Level)
}

func TestIterEvents_TailLimit(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := repo.AppendEvent(ctx, job.ID, "", models.EventStepStart, models.LevelInfo, nil)
		require.NoError(t, err)
	}

	events, err := repo.IterEvents(ctx, job.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Ts.Before(events[1].Ts) || events[0].Ts.Equal(events[1].Ts))
}

func TestInsertArtifact_UniqueConflict(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	job, err := repo.CreateJobWithChain(ctx, models.JobTypeGenerate, map[string]interface{}{}, "", store.ChainSpec{{Name: models.StepGenerate}})
	require.NoError(t, err)
	step, err := repo.GetStepByName(ctx, job.ID, models.StepGenerate)
	require.NoError(t, err)

	seed := int64(42)
	a := &models.Artifact{
		JobID: job.ID, StepID: step.ID, Format: models.FormatPNG,
		Width: 512, Height: 512, Seed: &seed, ItemIndex: 0, S3Key: "jobs/x/0.png",
	}
	require.NoError(t, repo.InsertArtifact(ctx, a))

	dup := &models.Artifact{
		JobID: job.ID, StepID: step.ID, Format: models.FormatPNG,
		Width: 512, Height: 512, ItemIndex: 0, S3Key: "jobs/x/0-again.png",
	}
	err = repo.InsertArtifact(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.As(err).Code)

	list, err := repo.ListArtifactsByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(42), *list[0].Seed)

	byStep, err := repo.ListArtifactsByStep(ctx, step.ID)
	require.NoError(t, err)
	require.Len(t, byStep, 1)
}

func TestModelLifecycle(t *testing.T) {
	repo := setupRepoTestDB(t)
	ctx := context.Background()

	m := &models.Model{Name: "sdxl-base", Kind: "diffusion", Version: "1.0", SourceURI: "s3://models/sdxl-base"}
	require.NoError(t, repo.UpsertModel(ctx, m))
	assert.NotEmpty(t, m.ID)

	_, err := repo.GetDefaultModel(ctx, "diffusion")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)

	require.NoError(t, repo.MarkModelInstalled(ctx, m.ID, "/models/sdxl-base", []models.ModelFile{{Path: "model.safetensors", SHA256: "abc", Size: 123}}))
	require.NoError(t, repo.SetModelEnabled(ctx, m.ID, true))

	def, err := repo.GetDefaultModel(ctx, "diffusion")
	require.NoError(t, err)
	assert.Equal(t, m.ID, def.ID)
	assert.True(t, def.Eligible())
	require.Len(t, def.Files, 1)
	assert.Equal(t, "model.safetensors", def.Files[0].Path)

	byKey, err := repo.GetModelByKey(ctx, "sdxl-base", "1.0", "diffusion")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byKey.ID)

	require.NoError(t, repo.SetModelEnabled(ctx, m.ID, false))
	_, err = repo.GetDefaultModel(ctx, "diffusion")
	require.Error(t, err)

	list, err := repo.ListModels(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	enabledOnly, err := repo.ListModels(ctx, true)
	require.NoError(t, err)
	assert.Len(t, enabledOnly, 0)
}

func TestSetModelEnabled_NotFound(t *testing.T) {
	repo := setupRepoTestDB(t)
	err := repo.SetModelEnabled(context.Background(), "missing", true)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

func TestPing(t *testing.T) {
	repo := setupRepoTestDB(t)
	require.NoError(t, repo.Ping(context.Background()))
}
