package upscaler

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Diffusion stands in for a diffusion-based super-resolution model whose
// native output is 4x. A 2x request is realized by rendering at 4x and
// downsampling, per §4.7, unless the caller already rejected that
// combination via strict_scale at submission time.
type Diffusion struct{}

func (Diffusion) Name() string { return ImplDiffusion }

func (Diffusion) Run(ctx context.Context, src image.Image, scale int) (image.Image, error) {
	switch scale {
	case 4:
		return resize(src, 4, draw.CatmullRom), nil
	case 2:
		rendered := resize(src, 4, draw.CatmullRom)
		b := src.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*2, b.Dy()*2))
		draw.BiLinear.Scale(dst, dst.Bounds(), rendered, rendered.Bounds(), draw.Over, nil)
		return dst, nil
	default:
		return nil, fmt.Errorf("diffusion: unsupported scale %d", scale)
	}
}
