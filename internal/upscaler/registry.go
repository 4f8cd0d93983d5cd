package upscaler

import (
	"context"
	"fmt"
	"image"
)

// Registry resolves an implementation name (including "auto") to a concrete
// Upscaler and applies the one-shot fallback policy from §4.7.
type Registry struct {
	gan       Upscaler
	diffusion Upscaler
	fallback  Upscaler
}

func NewRegistry() *Registry {
	return &Registry{gan: Gan{}, diffusion: Diffusion{}, fallback: Fallback{}}
}

// Resolve implements the auto policy: 2x -> gan, 4x -> diffusion.
func (r *Registry) Resolve(impl string, scale int) (Upscaler, error) {
	switch impl {
	case ImplAuto:
		if scale == 2 {
			return r.gan, nil
		}
		return r.diffusion, nil
	case ImplGan:
		return r.gan, nil
	case ImplDiffusion:
		return r.diffusion, nil
	default:
		return nil, fmt.Errorf("unknown upscaler impl %q", impl)
	}
}

// alternate returns the other of {diffusion, gan} for the one-shot fallback
// policy. Fallback itself has no alternate.
func (r *Registry) alternate(u Upscaler) Upscaler {
	switch u.Name() {
	case ImplGan:
		return r.diffusion
	case ImplDiffusion:
		return r.gan
	default:
		return nil
	}
}

// Run resolves params.Impl (defaulting "auto"), runs it, and on failure
// falls back to the alternate implementation once when StrictScale is
// false. It returns the produced image and the effective Params actually
// used (what gets persisted on the output artifact's metadata).
func (r *Registry) Run(ctx context.Context, src image.Image, params Params) (image.Image, Params, error) {
	impl := params.Impl
	if impl == "" {
		impl = ImplAuto
	}

	primary, err := r.Resolve(impl, params.Scale)
	if err != nil {
		return nil, params, err
	}

	out, err := primary.Run(ctx, src, params.Scale)
	if err == nil {
		return out, effective(params, primary.Name()), nil
	}
	if params.StrictScale {
		return nil, params, err
	}

	if alt := r.alternate(primary); alt != nil {
		if out, altErr := alt.Run(ctx, src, params.Scale); altErr == nil {
			return out, effective(params, alt.Name()), nil
		}
	}

	out, err = r.fallback.Run(ctx, src, params.Scale)
	if err != nil {
		return nil, params, err
	}
	return out, effective(params, r.fallback.Name()), nil
}

func effective(p Params, impl string) Params {
	p.Impl = impl
	return p
}
