package engine

import (
	"context"
	"image"
)

// Fake produces a deterministic solid-color PNG from the request's seed,
// per §8: "a fake engine that writes a deterministic solid-color PNG from
// the seed". Used by eager-mode tests so the whole chain can be exercised
// without a GPU or a subprocess.
type Fake struct{}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) GenerateOne(ctx context.Context, req GenerateRequest) ([]byte, error) {
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := seedColor(req.Seed)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return EncodePNG(img)
}
