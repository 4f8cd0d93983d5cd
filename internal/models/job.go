// Package models defines the persisted entities of the job control plane:
// Job, Step, Event, Artifact and Model.
package models

import "time"

// JobType enumerates the kinds of work a Job can represent.
type JobType string

const (
	JobTypeGenerate      JobType = "generate"
	JobTypeModelDownload JobType = "model_download"
)

// Status is the shared lifecycle for Job and Step: queued -> running ->
// {succeeded, failed}. Both terminal states are final.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is the top-level unit of work; it owns an ordered sequence of Steps.
type Job struct {
	ID                 string
	Type               JobType
	Status             Status
	Params             map[string]interface{}
	SchemaVersion      int
	IdempotencyKeyHash []byte
	ErrorCode          string
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StepName identifies a phase of a job's chain.
type StepName string

const (
	StepGenerate StepName = "generate"
	StepUpscale  StepName = "upscale"
)

// Step is a named phase of a Job with its own lifecycle.
type Step struct {
	ID         string
	JobID      string
	Name       StepName
	Status     Status
	StartedAt  *time.Time
	FinishedAt *time.Time
	Metadata   map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventLevel is the severity of a logged Event.
type EventLevel string

const (
	LevelDebug EventLevel = "debug"
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// Well-known event codes. Consumers should not assume this list is closed.
const (
	EventStepStart       = "step.start"
	EventStepFinish      = "step.finish"
	EventArtifactWritten = "artifact.written"
	EventError           = "error"
	EventJobFinish       = "job.finish"
	EventModelSelected   = "model.selected"
)

// Event is an append-only, ordered log record attached to a Job and
// optionally a Step.
type Event struct {
	ID      string
	JobID   string
	StepID  string // empty when not step-scoped
	Ts      time.Time
	Code    string
	Level   EventLevel
	Payload map[string]interface{}
}

// ArtifactFormat is the encoding of a produced image.
type ArtifactFormat string

const (
	FormatPNG ArtifactFormat = "png"
	FormatJPG ArtifactFormat = "jpg"
)

// Artifact is a successfully produced output object bound to a Step and an
// item within its batch.
type Artifact struct {
	ID        string
	JobID     string
	StepID    string
	CreatedAt time.Time
	Format    ArtifactFormat
	Width     int
	Height    int
	Seed      *int64
	ItemIndex int
	S3Key     string
	Checksum  string
	Metadata  map[string]interface{}
}

// ModelFile describes one file belonging to an installed Model.
type ModelFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Model is a registered checkpoint/weights bundle eligible for selection
// when installed and enabled.
type Model struct {
	ID                string
	Name              string
	Kind              string
	Version           string
	CheckpointHash    string
	SourceURI         string
	LocalPath         string
	Installed         bool
	Enabled           bool
	ParametersSchema  map[string]interface{}
	Capabilities      []string
	Files             []ModelFile
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Eligible reports whether the model may be selected for generation.
func (m Model) Eligible() bool {
	return m.Installed && m.Enabled
}
