package steps

import (
	"fmt"
	"strings"
	"time"
)

const (
	StepNameGenerate = "generate"
	StepNameUpscale  = "upscale"
)

// ArtifactKey builds the object-store key for one produced image, per §6:
// dreamforge/default/jobs/{jobId}/{generate|upscale}/{YYYYmmddTHHMMSS}_{itemIndex}_{W}x{H}_{seed}.{ext}
func ArtifactKey(jobID, stepSegment string, ts time.Time, itemIndex, width, height int, seed int64, format string) string {
	stamp := ts.Format("20060102T150405")
	ext := format
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("dreamforge/default/jobs/%s/%s/%s_%d_%dx%d_%d.%s",
		jobID, stepSegment, stamp, itemIndex, width, height, seed, ext)
}

// MirrorToUpscale replaces the one `/generate/` path segment with
// `/upscale/`, per §4.7 ("writes the output at the source's key with the
// /generate/ segment replaced by /upscale/").
func MirrorToUpscale(generateKey string) string {
	return strings.Replace(generateKey, "/generate/", "/upscale/", 1)
}
