// Package api declares the HTTP request/response payloads for the job
// submission endpoint (C4), validated with go-playground/validator before
// anything is persisted.
package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/dreamforge/internal/apperr"
)

// UpscaleChainOptions is the optional chained upscale step a submission can
// request alongside generate.
type UpscaleChainOptions struct {
	Scale       int    `json:"scale" validate:"required,oneof=2 4"`
	Impl        string `json:"impl" validate:"omitempty,oneof=auto diffusion gan"`
	StrictScale bool   `json:"strict_scale"`
}

// ChainOptions wraps the steps chained after generate.
type ChainOptions struct {
	Upscale *UpscaleChainOptions `json:"upscale" validate:"omitempty"`
}

// SubmitJobRequest is the body of POST /v1/jobs, per spec §6.
type SubmitJobRequest struct {
	Type           string        `json:"type" validate:"required,oneof=generate"`
	Prompt         string        `json:"prompt" validate:"required"`
	NegativePrompt string        `json:"negative_prompt"`
	Width          int           `json:"width" validate:"required,gt=0"`
	Height         int           `json:"height" validate:"required,gt=0"`
	Steps          int           `json:"steps" validate:"required,gt=0"`
	Guidance       float64       `json:"guidance"`
	Scheduler      string        `json:"scheduler"`
	Format         string        `json:"format" validate:"omitempty,oneof=png jpg"`
	EmbedMetadata  *bool         `json:"embed_metadata"`
	Seed           *int64        `json:"seed"`
	// Count is a pointer so an explicit count:0 (invalid) is distinguishable
	// from an omitted count (defaults to 1) — both decode an int field to
	// the same zero value otherwise, and omitempty would wrongly let the
	// explicit zero skip validation.
	Count   *int          `json:"count" validate:"omitempty,gte=1,lte=100"`
	ModelID string        `json:"model_id" validate:"omitempty,uuid"`
	Chain   *ChainOptions `json:"chain" validate:"omitempty"`
}

var validate = validator.New()

// ValidateSubmitJobRequest applies struct-tag validation and the one
// cross-field rule the tags can't express: a strict-scale 2x upscale cannot
// be satisfied by the diffusion implementation, whose native output is 4x
// (spec §7's "impossible strict_scale+diffusion+2x").
func ValidateSubmitJobRequest(req *SubmitJobRequest) error {
	if req.Format == "" {
		req.Format = "png"
	}
	if req.Count == nil {
		one := 1
		req.Count = &one
	}
	if req.Guidance == 0 {
		req.Guidance = 7.0
	}
	if req.EmbedMetadata == nil {
		t := true
		req.EmbedMetadata = &t
	}

	if err := validate.Struct(req); err != nil {
		return apperr.Invalid(err.Error())
	}

	if req.Chain != nil && req.Chain.Upscale != nil {
		u := req.Chain.Upscale
		if u.StrictScale && u.Impl == "diffusion" && u.Scale == 2 {
			return apperr.Invalid("strict_scale=true is unsatisfiable for impl=diffusion at scale=2")
		}
	}

	return nil
}
