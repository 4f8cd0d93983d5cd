package upscaler

import (
	"context"
	"image"

	"golang.org/x/image/draw"
)

// Fallback is the last-resort implementation: a plain bilinear resize with
// no model dependency, used when both Diffusion and Gan have failed and
// strict_scale permits a substitution. It realizes any positive integer
// scale, so it can never itself be the reason an upscale step fails.
type Fallback struct{}

func (Fallback) Name() string { return "fallback" }

func (Fallback) Run(ctx context.Context, src image.Image, scale int) (image.Image, error) {
	return resize(src, scale, draw.BiLinear), nil
}
