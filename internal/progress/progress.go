// Package progress implements the progress aggregator (C9): a pure function
// over persisted Job/Step/Artifact state, per spec §4.8. It holds no
// in-memory counters so a restarted process reports identical numbers.
package progress

import "github.com/ternarybob/dreamforge/internal/models"

// ItemProgress is the terminal-step completion fraction for one batch item.
// Per §4.8 it is always 0.0 or 1.0: an item either has its terminal
// artifact written or it doesn't.
type ItemProgress struct {
	ItemIndex int     `json:"item_index"`
	Progress  float64 `json:"progress"`
}

// Stage is an advisory UI weight, not a measured fraction.
type Stage struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Snapshot is the full progress envelope returned by GET .../progress and
// streamed by GET .../progress/stream.
type Snapshot struct {
	Progress float64        `json:"progress"`
	Items    []ItemProgress `json:"items"`
	Stages   []Stage        `json:"stages"`
}

var singleStepStages = []Stage{
	{Name: "queued_to_start", Weight: 0.1},
	{Name: "sampling", Weight: 0.8},
	{Name: "finalize", Weight: 0.1},
}

var chainedStages = []Stage{
	{Name: "generate", Weight: 0.5},
	{Name: "upscale", Weight: 0.5},
}

// Compute derives a Snapshot from a job's current persisted state. steps
// must be the job's full step list in chain order; artifacts must be every
// artifact belonging to the job (any step).
func Compute(job *models.Job, steps []models.Step, artifacts []models.Artifact) Snapshot {
	count := paramCount(job.Params)

	byStep := make(map[string][]models.Artifact, len(steps))
	for _, a := range artifacts {
		byStep[a.StepID] = append(byStep[a.StepID], a)
	}

	var generateStep, upscaleStep *models.Step
	for i := range steps {
		switch steps[i].Name {
		case models.StepGenerate:
			generateStep = &steps[i]
		case models.StepUpscale:
			upscaleStep = &steps[i]
		}
	}

	var snap Snapshot
	if upscaleStep != nil && generateStep != nil {
		pGenerate := stepFraction(byStep[generateStep.ID], count)
		pUpscale := stepFraction(byStep[upscaleStep.ID], count)
		snap.Progress = (pGenerate + pUpscale) / 2
		snap.Items = itemsForStep(byStep[upscaleStep.ID], count)
		snap.Stages = chainedStages
	} else if generateStep != nil {
		generated := byStep[generateStep.ID]
		snap.Progress = stepFraction(generated, count)
		snap.Items = itemsForStep(generated, count)
		snap.Stages = singleStepStages
	} else {
		snap.Stages = singleStepStages
	}

	if job.Status == models.StatusSucceeded {
		snap.Progress = 1.0
	}
	snap.Progress = clamp01(snap.Progress)

	return snap
}

func stepFraction(artifacts []models.Artifact, count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(float64(len(artifacts)) / float64(count))
}

// itemsForStep reports one entry per expected item_index, 1.0 once that
// item's artifact exists in the terminal step and 0.0 otherwise.
func itemsForStep(artifacts []models.Artifact, count int) []ItemProgress {
	done := make(map[int]bool, len(artifacts))
	for _, a := range artifacts {
		done[a.ItemIndex] = true
	}
	items := make([]ItemProgress, count)
	for i := 0; i < count; i++ {
		p := 0.0
		if done[i] {
			p = 1.0
		}
		items[i] = ItemProgress{ItemIndex: i, Progress: p}
	}
	return items
}

func paramCount(params map[string]interface{}) int {
	raw, ok := params["count"]
	if !ok {
		return 1
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 1
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
