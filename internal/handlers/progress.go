package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/progress"
	"github.com/ternarybob/dreamforge/internal/store"
)

// ProgressHandler serves GET /v1/jobs/{id}/progress and its SSE variant,
// per §4.8/§4.9.
type ProgressHandler struct {
	Repo   store.Repository
	Config *common.Config
	Logger arbor.ILogger
}

func NewProgressHandler(repo store.Repository, cfg *common.Config, logger arbor.ILogger) *ProgressHandler {
	return &ProgressHandler{Repo: repo, Config: cfg, Logger: logger}
}

// Snapshot handles GET /v1/jobs/{id}/progress.
func (h *ProgressHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := h.compute(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ProgressHandler) compute(r *http.Request, id string) (progress.Snapshot, error) {
	job, steps, err := h.Repo.GetJobWithSteps(r.Context(), id)
	if err != nil {
		return progress.Snapshot{}, err
	}
	artifacts, err := h.Repo.ListArtifactsByJob(r.Context(), id)
	if err != nil {
		return progress.Snapshot{}, err
	}
	return progress.Compute(job, steps, artifacts), nil
}

// Stream handles GET /v1/jobs/{id}/progress/stream per §4.9: on each poll
// tick it emits any new events since the cursor, then a progress snapshot,
// with periodic heartbeat comments, closing once the job reaches terminal.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Repo.GetJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Internal(fmt.Errorf("streaming unsupported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	cursor := int64(0)
	if v := r.URL.Query().Get("since_ts"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cursor = n
		}
	}

	pollEvery := time.Duration(h.Config.Streaming.SSEPollMS) * time.Millisecond
	heartbeatEvery := time.Duration(h.Config.Streaming.SSEHeartbeatS) * time.Second

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	lastHeartbeat := time.Now()
	sent := map[string]struct{}{}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := h.Repo.GetJob(ctx, id)
			if err != nil {
				return
			}

			// IterEvents' since-cursor query is ts >= cursor (inclusive), so the
			// boundary event would otherwise be redelivered every tick until a
			// strictly newer one arrives; dedupe by ID instead of relying on ts.
			events, err := h.Repo.IterEvents(ctx, id, cursor, h.Config.Streaming.LogsTailMax)
			if err == nil {
				for _, e := range events {
					if _, dup := sent[e.ID]; dup {
						continue
					}
					sent[e.ID] = struct{}{}
					h.sendEvent(w, flusher, e)
					if e.Ts.UnixNano() > cursor {
						cursor = e.Ts.UnixNano()
					}
				}
			}

			snap, err := h.compute(r, id)
			if err == nil {
				h.sendSSE(w, flusher, "progress", snap)
			}

			if job.Status.Terminal() {
				return
			}

			if time.Since(lastHeartbeat) >= heartbeatEvery {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
				lastHeartbeat = time.Now()
			}
		}
	}
}

func (h *ProgressHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, e models.Event) {
	kind := "log"
	switch e.Code {
	case models.EventArtifactWritten:
		kind = "artifact"
	case models.EventError:
		kind = "error"
	}
	h.sendSSE(w, flusher, kind, map[string]interface{}{
		"ts": e.Ts.UnixNano(), "code": e.Code, "level": e.Level, "payload": e.Payload,
	})
}

func (h *ProgressHandler) sendSSE(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", body)
	flusher.Flush()
}
