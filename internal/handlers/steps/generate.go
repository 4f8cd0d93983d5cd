// Package steps holds the concrete step handlers (C7 generate, C8 upscale)
// invoked by the step executor framework.
package steps

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/engine"
	"github.com/ternarybob/dreamforge/internal/executor"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/objectstore"
	"github.com/ternarybob/dreamforge/internal/registry"
)

// GenerateParams is job.params decoded for the generate step, per §4.6.
type GenerateParams struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	Guidance       float64 `json:"guidance"`
	Seed           *int64  `json:"seed"`
	Count          int     `json:"count"`
	ModelID        string  `json:"model_id"`
	Format         string  `json:"format"`
}

func decodeGenerateParams(raw map[string]interface{}) (GenerateParams, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return GenerateParams{}, err
	}
	p := GenerateParams{Guidance: 7.0, Count: 1, Format: "png"}
	if err := json.Unmarshal(b, &p); err != nil {
		return GenerateParams{}, err
	}
	if p.Count <= 0 {
		p.Count = 1
	}
	if p.Guidance == 0 {
		p.Guidance = 7.0
	}
	if p.Format == "" {
		p.Format = "png"
	}
	return p, nil
}

// GenerateHandler resolves a model, seeds per-item RNG, invokes the engine,
// names keys, and hands items back to the executor for persistence.
type GenerateHandler struct {
	Engine   engine.Engine
	Store    objectstore.ObjectStore
	Registry *registry.Registry
	Logger   arbor.ILogger
}

func (h *GenerateHandler) Run(ctx context.Context, hctx *executor.HandlerContext) ([]executor.Item, error) {
	params, err := decodeGenerateParams(hctx.Job.Params)
	if err != nil {
		return nil, apperr.Invalid(fmt.Sprintf("invalid generate params: %v", err))
	}

	resolution, err := h.Registry.Resolve(ctx, params.ModelID)
	if err != nil {
		return nil, err
	}
	if err := hctx.AppendEvent(models.EventModelSelected, models.LevelInfo, map[string]interface{}{
		"model_id":   resolution.ModelID,
		"local_path": resolution.LocalPath,
		"source":     resolution.Source,
	}); err != nil {
		return nil, err
	}

	items := make([]executor.Item, 0, params.Count)
	now := time.Now().UTC()

	for i := 0; i < params.Count; i++ {
		seed, err := seedForItem(params, i)
		if err != nil {
			return nil, apperr.Internal(err)
		}

		data, err := h.Engine.GenerateOne(ctx, engine.GenerateRequest{
			Prompt:         params.Prompt,
			NegativePrompt: params.NegativePrompt,
			Width:          params.Width,
			Height:         params.Height,
			Steps:          params.Steps,
			Guidance:       params.Guidance,
			Seed:           seed,
		})
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("engine.GenerateOne: %w", err))
		}

		if flat, err := engine.IsFlatGrayscale(data); err == nil && flat {
			return nil, apperr.Internal(fmt.Errorf("engine produced a flat grayscale image for item %d", i))
		}

		key := ArtifactKey(hctx.Job.ID, StepNameGenerate, now, i, params.Width, params.Height, seed, params.Format)
		contentType := "image/png"
		if params.Format == "jpg" {
			contentType = "image/jpeg"
		}
		if err := h.Store.Put(ctx, key, data, contentType); err != nil {
			return nil, err
		}

		items = append(items, executor.Item{
			ItemIndex: i,
			Bytes:     data,
			Format:    models.ArtifactFormat(params.Format),
			Width:     params.Width,
			Height:    params.Height,
			Seed:      &seed,
			S3Key:     key,
			Metadata:  map[string]interface{}{},
		})
	}

	return items, nil
}

// seedForItem implements §4.6's seeding rule: a single-item job with an
// explicit seed uses it verbatim; every other case draws a fresh seed per
// item, so batches always randomize observably even when a seed was given.
func seedForItem(p GenerateParams, index int) (int64, error) {
	if p.Count == 1 && p.Seed != nil {
		return *p.Seed, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1<<31-1))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 1, nil
}
