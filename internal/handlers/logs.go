package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/store"
)

// LogsHandler serves GET /v1/jobs/{id}/logs, an NDJSON tail of a job's
// event log, per §4.9.
type LogsHandler struct {
	Repo   store.Repository
	Config *common.Config
	Logger arbor.ILogger
}

func NewLogsHandler(repo store.Repository, cfg *common.Config, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{Repo: repo, Config: cfg, Logger: logger}
}

type logLine struct {
	Ts        int64             `json:"ts"`
	Level     models.EventLevel `json:"level"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	JobID     string            `json:"job_id"`
	StepID    string            `json:"step_id,omitempty"`
	ItemIndex *int              `json:"item_index,omitempty"`
}

func (h *LogsHandler) Tail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Repo.GetJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	tail := h.Config.Streaming.LogsTailDefault
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.Config.Streaming.LogsTailMax {
			writeError(w, apperr.Invalid(fmt.Sprintf("tail must be in [1, %d]", h.Config.Streaming.LogsTailMax)))
			return
		}
		tail = n
	}

	sinceTs := int64(0)
	if v := r.URL.Query().Get("since_ts"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, apperr.Invalid("since_ts must be an integer unix nanosecond timestamp"))
			return
		}
		sinceTs = n
	}

	events, err := h.Repo.IterEvents(r.Context(), id, sinceTs, tail)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	for _, e := range events {
		enc.Encode(toLogLine(e))
	}
}

func toLogLine(e models.Event) logLine {
	msg := e.Code
	if e.Payload != nil {
		if m, ok := e.Payload["message"].(string); ok && m != "" {
			msg = m
		}
	}
	line := logLine{
		Ts: e.Ts.UnixNano(), Level: e.Level, Code: e.Code,
		Message: msg, JobID: e.JobID, StepID: e.StepID,
	}
	if e.Payload != nil {
		if idx, ok := e.Payload["item_index"]; ok {
			if n, ok := idx.(float64); ok {
				i := int(n)
				line.ItemIndex = &i
			} else if n, ok := idx.(int); ok {
				line.ItemIndex = &n
			}
		}
	}
	return line
}
