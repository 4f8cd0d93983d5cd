package upscaler

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Gan realizes the requested scale directly with a sharp, detail-preserving
// resampler, standing in for a GAN super-resolution model's native output
// resolution.
type Gan struct{}

func (Gan) Name() string { return ImplGan }

func (Gan) Run(ctx context.Context, src image.Image, scale int) (image.Image, error) {
	if scale != 2 && scale != 4 {
		return nil, fmt.Errorf("gan: unsupported scale %d", scale)
	}
	return resize(src, scale, draw.CatmullRom), nil
}

func resize(src image.Image, scale int, scaler draw.Scaler) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
