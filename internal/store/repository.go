// Package store declares the Repository capability set the rest of the
// control plane is written against (C1). Concrete backings (sqlite today)
// live in subpackages; callers only ever see this interface, never a query
// builder.
package store

import (
	"context"

	"github.com/ternarybob/dreamforge/internal/models"
)

// ChainStep names one step a new Job should own, plus whatever per-step
// parameters that step's handler needs before it ever runs (e.g. the
// upscale step's scale/impl/strict_scale, carried in the submission's
// chain.upscale object since params.json stays generate-step-only).
type ChainStep struct {
	Name     models.StepName
	Metadata map[string]interface{}
}

// ChainSpec names the ordered steps a new Job should own, e.g.
// [{Name: "generate"}] or [{Name: "generate"}, {Name: "upscale", Metadata: ...}].
type ChainSpec []ChainStep

// Repository is the transactional persistence contract for Jobs, Steps,
// Events, Artifacts and Models. Every method commits or rolls back
// atomically; callers never see partial writes.
type Repository interface {
	CreateJobWithChain(ctx context.Context, jobType models.JobType, params map[string]interface{}, idempotencyKey string, chain ChainSpec) (*models.Job, error)

	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobWithSteps(ctx context.Context, id string) (*models.Job, []models.Step, error)
	ListJobs(ctx context.Context, status models.Status, limit int) ([]models.Job, error)
	GetStepByName(ctx context.Context, jobID string, name models.StepName) (*models.Step, error)

	MarkStepRunning(ctx context.Context, stepID string) error
	MarkStepFinished(ctx context.Context, stepID string, status models.Status) error
	MarkJobStatus(ctx context.Context, jobID string, status models.Status, errCode, errMessage string) error

	AppendEvent(ctx context.Context, jobID, stepID, code string, level models.EventLevel, payload map[string]interface{}) (*models.Event, error)
	IterEvents(ctx context.Context, jobID string, sinceTs int64, tail int) ([]models.Event, error)

	InsertArtifact(ctx context.Context, a *models.Artifact) error
	ListArtifactsByJob(ctx context.Context, jobID string) ([]models.Artifact, error)
	ListArtifactsByStep(ctx context.Context, stepID string) ([]models.Artifact, error)

	ListModels(ctx context.Context, enabledOnly bool) ([]models.Model, error)
	GetModel(ctx context.Context, id string) (*models.Model, error)
	GetModelByKey(ctx context.Context, name, version, kind string) (*models.Model, error)
	UpsertModel(ctx context.Context, m *models.Model) error
	MarkModelInstalled(ctx context.Context, id string, localPath string, files []models.ModelFile) error
	SetModelEnabled(ctx context.Context, id string, enabled bool) error
	GetDefaultModel(ctx context.Context, kind string) (*models.Model, error)

	Ping(ctx context.Context) error
	Close() error
}
