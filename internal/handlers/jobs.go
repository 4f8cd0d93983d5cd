// Package handlers implements the C10 read API plus the C4 submission
// endpoint: one struct per concern, following the teacher's
// one-handler-per-feature layout.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/api"
	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/metrics"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/objectstore"
	"github.com/ternarybob/dreamforge/internal/queue"
	"github.com/ternarybob/dreamforge/internal/store"
)

// JobsHandler serves POST /v1/jobs, GET /v1/jobs, GET /v1/jobs/{id} and
// GET /v1/jobs/{id}/artifacts.
type JobsHandler struct {
	Repo        store.Repository
	ObjectStore objectstore.ObjectStore
	Queue       queue.Queue
	Metrics     *metrics.Registry
	Config      *common.Config
	Logger      arbor.ILogger
}

func NewJobsHandler(repo store.Repository, objStore objectstore.ObjectStore, q queue.Queue, m *metrics.Registry, cfg *common.Config, logger arbor.ILogger) *JobsHandler {
	return &JobsHandler{Repo: repo, ObjectStore: objStore, Queue: q, Metrics: m, Config: cfg, Logger: logger}
}

// Submit handles POST /v1/jobs per spec §4.3/§6.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Invalid("malformed JSON body"))
		return
	}
	if err := api.ValidateSubmitJobRequest(&req); err != nil {
		writeError(w, err)
		return
	}

	params := submissionParams(req)
	chain := store.ChainSpec{{Name: models.StepGenerate}}
	if req.Chain != nil && req.Chain.Upscale != nil {
		chain = append(chain, store.ChainStep{
			Name: models.StepUpscale,
			Metadata: map[string]interface{}{
				"scale":        req.Chain.Upscale.Scale,
				"impl":         req.Chain.Upscale.Impl,
				"strict_scale": req.Chain.Upscale.StrictScale,
			},
		})
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	job, err := h.Repo.CreateJobWithChain(r.Context(), models.JobType(req.Type), params, idempotencyKey, chain)
	if err != nil {
		ae := apperr.As(err)
		if ae.Code == apperr.CodeConflict {
			if existingID, ok := ae.Details["job_id"].(string); ok {
				existing, getErr := h.Repo.GetJob(r.Context(), existingID)
				if getErr == nil {
					writeJSON(w, http.StatusOK, map[string]interface{}{"job": jobSummary(existing)})
					return
				}
			}
		}
		writeError(w, err)
		return
	}

	if err := h.Queue.Enqueue(r.Context(), queue.Message{JobID: job.ID, Step: chain[0].Name}); err != nil {
		h.Repo.MarkJobStatus(r.Context(), job.ID, models.StatusFailed, string(apperr.CodeInfraUnavailable), err.Error())
		writeError(w, apperr.InfraUnavailable(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"job": jobSummary(job)})
}

// Get handles GET /v1/jobs/{id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, steps, err := h.Repo.GetJobWithSteps(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	artifacts, err := h.Repo.ListArtifactsByJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	stepViews := make([]map[string]interface{}, 0, len(steps))
	for _, s := range steps {
		stepViews = append(stepViews, map[string]interface{}{"name": s.Name, "status": s.Status})
	}

	envelope := map[string]interface{}{
		"id":         job.ID,
		"type":       job.Type,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
		"steps":      stepViews,
		"summary": map[string]interface{}{
			"count":     paramCount(job.Params),
			"completed": len(artifacts),
		},
	}
	if job.ErrorCode != "" {
		envelope["error_code"] = job.ErrorCode
		envelope["error_message"] = job.ErrorMessage
	}

	writeJSON(w, http.StatusOK, envelope)
}

// List handles GET /v1/jobs?status=&limit=.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.Repo.ListJobs(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]map[string]interface{}, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, map[string]interface{}{
			"id": j.ID, "type": j.Type, "status": j.Status,
			"created_at": j.CreatedAt, "updated_at": j.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// Artifacts handles GET /v1/jobs/{id}/artifacts.
func (h *JobsHandler) Artifacts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Repo.GetJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	artifacts, err := h.Repo.ListArtifactsByJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	ttl := h.Config.ObjectStore.PresignTTLSeconds(0)
	now := time.Now().UTC()
	views := make([]map[string]interface{}, 0, len(artifacts))
	for _, a := range artifacts {
		url, err := h.ObjectStore.PresignGet(r.Context(), a.S3Key, secondsToDuration(ttl))
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, map[string]interface{}{
			"id": a.ID, "format": a.Format, "width": a.Width, "height": a.Height,
			"seed": a.Seed, "item_index": a.ItemIndex, "s3_key": a.S3Key,
			"url": url, "expires_at": now.Add(secondsToDuration(ttl)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artifacts": views})
}

func jobSummary(job *models.Job) map[string]interface{} {
	return map[string]interface{}{
		"id": job.ID, "status": job.Status, "type": job.Type, "created_at": job.CreatedAt,
	}
}

func submissionParams(req api.SubmitJobRequest) map[string]interface{} {
	params := map[string]interface{}{
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"width":           req.Width,
		"height":          req.Height,
		"steps":           req.Steps,
		"guidance":        req.Guidance,
		"scheduler":       req.Scheduler,
		"format":          req.Format,
		"embed_metadata":  *req.EmbedMetadata,
		"count":           *req.Count,
		"model_id":        req.ModelID,
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	return params
}

func paramCount(params map[string]interface{}) int {
	raw, ok := params["count"]
	if !ok {
		return 1
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}
