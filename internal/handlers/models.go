package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/registry"
	"github.com/ternarybob/dreamforge/internal/store"
)

// ModelsHandler serves GET /v1/models and GET /v1/models/{id}, per §4.9.
type ModelsHandler struct {
	Repo   store.Repository
	Logger arbor.ILogger
}

func NewModelsHandler(repo store.Repository, logger arbor.ILogger) *ModelsHandler {
	return &ModelsHandler{Repo: repo, Logger: logger}
}

// List returns installed+enabled model summaries.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	models, err := h.Repo.ListModels(r.Context(), true)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		views = append(views, map[string]interface{}{
			"id": m.ID, "name": m.Name, "kind": m.Kind, "version": m.Version,
			"capabilities": m.Capabilities,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": views})
}

// Get returns the full descriptor for a model.
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := h.Repo.GetModel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	descriptor, err := registry.LoadDescriptor(m.LocalPath)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": m.ID, "name": m.Name, "kind": m.Kind, "version": m.Version,
			"source_uri": m.SourceURI, "capabilities": m.Capabilities,
			"local_path": m.LocalPath, "installed": m.Installed, "enabled": m.Enabled,
		})
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}
