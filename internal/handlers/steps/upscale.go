package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/engine"
	"github.com/ternarybob/dreamforge/internal/executor"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/objectstore"
	"github.com/ternarybob/dreamforge/internal/store"
	"github.com/ternarybob/dreamforge/internal/upscaler"
)

// UpscaleHandler reads the preceding generate step's artifacts and writes a
// scaled derivative for each, at a mirrored key, per §4.7.
type UpscaleHandler struct {
	Repo     store.Repository
	Store    objectstore.ObjectStore
	Registry *upscaler.Registry
	Logger   arbor.ILogger
}

func decodeUpscaleParams(raw map[string]interface{}) (upscaler.Params, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return upscaler.Params{}, err
	}
	var p upscaler.Params
	if err := json.Unmarshal(b, &p); err != nil {
		return upscaler.Params{}, err
	}
	if p.Impl == "" {
		p.Impl = upscaler.ImplAuto
	}
	return p, nil
}

func (h *UpscaleHandler) Run(ctx context.Context, hctx *executor.HandlerContext) ([]executor.Item, error) {
	params, err := decodeUpscaleParams(hctx.Step.Metadata)
	if err != nil {
		return nil, apperr.Invalid(fmt.Sprintf("invalid upscale params: %v", err))
	}

	genStep, err := h.Repo.GetStepByName(ctx, hctx.Job.ID, models.StepName(StepNameGenerate))
	if err != nil {
		return nil, err
	}
	sources, err := h.Repo.ListArtifactsByStep(ctx, genStep.ID)
	if err != nil {
		return nil, err
	}

	items := make([]executor.Item, 0, len(sources))
	for _, src := range sources {
		data, err := h.Store.Get(ctx, src.S3Key)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("decode source artifact %s: %w", src.S3Key, err))
		}

		itemParams := params
		itemParams.Scale = params.Scale
		scaled, effective, err := h.Registry.Run(ctx, img, itemParams)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("upscale item %d: %w", src.ItemIndex, err))
		}

		encoded, err := engine.EncodePNG(scaled)
		if err != nil {
			return nil, err
		}

		key := MirrorToUpscale(src.S3Key)
		if err := h.Store.Put(ctx, key, encoded, "image/png"); err != nil {
			return nil, err
		}

		bounds := scaled.Bounds()
		metaJSON, _ := json.Marshal(effective)
		var metadata map[string]interface{}
		_ = json.Unmarshal(metaJSON, &metadata)

		items = append(items, executor.Item{
			ItemIndex: src.ItemIndex,
			Bytes:     encoded,
			Format:    models.FormatPNG,
			Width:     bounds.Dx(),
			Height:    bounds.Dy(),
			Seed:      src.Seed,
			Scale:     effective.Scale,
			S3Key:     key,
			Metadata:  metadata,
		})
	}

	return items, nil
}
