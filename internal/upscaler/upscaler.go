// Package upscaler implements the sum-type of upscale implementations
// (Diffusion, Gan, Fallback) called for in the Design Notes, behind one
// Run capability, selected by the registry's auto/diffusion/gan policy
// (§4.7).
package upscaler

import (
	"context"
	"image"
)

// Upscaler produces a scaled image from src. Implementations never mutate
// src.
type Upscaler interface {
	Name() string
	Run(ctx context.Context, src image.Image, scale int) (image.Image, error)
}

// Params is the metadata persisted on a Step and echoed onto each output
// artifact (effective values, after any fallback).
type Params struct {
	Scale       int    `json:"scale"`
	Impl        string `json:"impl"`
	StrictScale bool   `json:"strict_scale"`
}

const (
	ImplAuto      = "auto"
	ImplDiffusion = "diffusion"
	ImplGan       = "gan"
)
