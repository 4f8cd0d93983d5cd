package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/dreamforge/internal/models"
)

func TestCompute_SingleStepPartialProgress(t *testing.T) {
	job := &models.Job{Status: models.StatusRunning, Params: map[string]interface{}{"count": float64(4)}}
	steps := []models.Step{{Name: models.StepGenerate, ID: "s1"}}
	artifacts := []models.Artifact{
		{StepID: "s1", ItemIndex: 0},
		{StepID: "s1", ItemIndex: 1},
	}

	snap := Compute(job, steps, artifacts)
	assert.Equal(t, 0.5, snap.Progress)
	assert.Equal(t, singleStepStages, snap.Stages)
	assert.Len(t, snap.Items, 4)
	assert.Equal(t, 1.0, snap.Items[0].Progress)
	assert.Equal(t, 1.0, snap.Items[1].Progress)
	assert.Equal(t, 0.0, snap.Items[2].Progress)
}

func TestCompute_ChainedStepsAverage(t *testing.T) {
	job := &models.Job{Status: models.StatusRunning, Params: map[string]interface{}{"count": float64(2)}}
	steps := []models.Step{
		{Name: models.StepGenerate, ID: "s1"},
		{Name: models.StepUpscale, ID: "s2"},
	}
	artifacts := []models.Artifact{
		{StepID: "s1", ItemIndex: 0},
		{StepID: "s1", ItemIndex: 1},
		{StepID: "s2", ItemIndex: 0},
	}

	snap := Compute(job, steps, artifacts)
	// generate: 2/2 = 1.0, upscale: 1/2 = 0.5 -> average 0.75
	assert.Equal(t, 0.75, snap.Progress)
	assert.Equal(t, chainedStages, snap.Stages)
	// items reflect the terminal (upscale) step only
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, 1.0, snap.Items[0].Progress)
	assert.Equal(t, 0.0, snap.Items[1].Progress)
}

func TestCompute_SucceededJobAlwaysReportsFull(t *testing.T) {
	job := &models.Job{Status: models.StatusSucceeded, Params: map[string]interface{}{"count": float64(1)}}
	steps := []models.Step{{Name: models.StepGenerate, ID: "s1"}}
	// Even with no persisted artifacts (e.g. a race with a read replica), a
	// succeeded job reports 1.0.
	snap := Compute(job, steps, nil)
	assert.Equal(t, 1.0, snap.Progress)
}

func TestCompute_NoStepsYet(t *testing.T) {
	job := &models.Job{Status: models.StatusQueued, Params: map[string]interface{}{"count": float64(1)}}
	snap := Compute(job, nil, nil)
	assert.Equal(t, 0.0, snap.Progress)
	assert.Equal(t, singleStepStages, snap.Stages)
	assert.Nil(t, snap.Items)
}

func TestCompute_DefaultsCountToOneWhenAbsent(t *testing.T) {
	job := &models.Job{Status: models.StatusRunning, Params: map[string]interface{}{}}
	steps := []models.Step{{Name: models.StepGenerate, ID: "s1"}}
	artifacts := []models.Artifact{{StepID: "s1", ItemIndex: 0}}

	snap := Compute(job, steps, artifacts)
	assert.Equal(t, 1.0, snap.Progress)
	assert.Len(t, snap.Items, 1)
}
