// Package registry implements the model registry (C11): resolving which
// checkpoint a generate job should use, and reading/writing the on-disk
// model.json sidecar described in §6.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/store"
)

const defaultKind = "sdxl-checkpoint"

// Descriptor mirrors the on-disk model.json sidecar.
type Descriptor struct {
	SchemaVersion    int                    `json:"schema_version"`
	Name             string                 `json:"name"`
	Kind             string                 `json:"kind"`
	Version          string                 `json:"version"`
	SourceURI        string                 `json:"source_uri"`
	CheckpointHash   string                 `json:"checkpoint_hash,omitempty"`
	Capabilities     []string               `json:"capabilities"`
	ParametersSchema map[string]interface{} `json:"parameters_schema"`
	Files            []models.ModelFile     `json:"files"`
	LocalPath        string                 `json:"local_path"`
}

// Registry resolves and tracks Model rows, plus their on-disk descriptors.
type Registry struct {
	repo         store.Repository
	installRoot  string
	fallbackPath string
}

func New(repo store.Repository, installRoot, fallbackPath string) *Registry {
	return &Registry{repo: repo, installRoot: installRoot, fallbackPath: fallbackPath}
}

// Resolution is what the generate handler needs to know about the chosen
// model, plus how it was chosen (for the model.selected event).
type Resolution struct {
	ModelID   string
	LocalPath string
	Source    string // "registry" | "env_fallback"
}

// Resolve implements the model-resolution order from §4.6: explicit
// model_id if installed+enabled, else the default sdxl-checkpoint, else the
// environment-configured fallback path.
func (r *Registry) Resolve(ctx context.Context, explicitModelID string) (*Resolution, error) {
	if explicitModelID != "" {
		m, err := r.repo.GetModel(ctx, explicitModelID)
		if err == nil && m.Eligible() && m.LocalPath != "" {
			return &Resolution{ModelID: m.ID, LocalPath: m.LocalPath, Source: "registry"}, nil
		}
	}

	if m, err := r.repo.GetDefaultModel(ctx, defaultKind); err == nil && m.LocalPath != "" {
		return &Resolution{ModelID: m.ID, LocalPath: m.LocalPath, Source: "registry"}, nil
	}

	if r.fallbackPath == "" {
		return nil, apperr.New(apperr.CodeInfraUnavailable, "no eligible model and no fallback path configured")
	}
	return &Resolution{ModelID: "", LocalPath: r.fallbackPath, Source: "env_fallback"}, nil
}

// modelDir returns the install-root-relative directory for a model key,
// matching the `{kind}/{name}@{version}/` layout.
func (r *Registry) modelDir(kind, name, version string) string {
	return filepath.Join(r.installRoot, kind, fmt.Sprintf("%s@%s", name, version))
}

// Install writes the model.json sidecar for a freshly installed model and
// upserts the corresponding row, marking it installed.
func (r *Registry) Install(ctx context.Context, d Descriptor) (*models.Model, error) {
	dir := r.modelDir(d.Kind, d.Name, d.Version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create model dir: %w", err))
	}
	d.LocalPath = dir
	if d.SchemaVersion == 0 {
		d.SchemaVersion = 1
	}

	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("marshal model.json: %w", err))
	}
	if err := os.WriteFile(filepath.Join(dir, "model.json"), raw, 0644); err != nil {
		return nil, apperr.Internal(fmt.Errorf("write model.json: %w", err))
	}

	m := &models.Model{
		Name:             d.Name,
		Kind:             d.Kind,
		Version:          d.Version,
		CheckpointHash:   d.CheckpointHash,
		SourceURI:        d.SourceURI,
		LocalPath:        dir,
		Installed:        true,
		Enabled:          true,
		ParametersSchema: d.ParametersSchema,
		Capabilities:     d.Capabilities,
		Files:            d.Files,
	}
	if err := r.repo.UpsertModel(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadDescriptor reads the model.json sidecar for an already-installed
// model's local_path, used by tooling that wants the full descriptor rather
// than the DB row's summary fields.
func LoadDescriptor(localPath string) (*Descriptor, error) {
	raw, err := os.ReadFile(filepath.Join(localPath, "model.json"))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("read model.json: %w", err))
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, apperr.Internal(fmt.Errorf("parse model.json: %w", err))
	}
	return &d, nil
}
