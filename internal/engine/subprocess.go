package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
)

// Subprocess is the real engine: GPU inference is launched as a child
// process so that the memory it holds is guaranteed released on exit,
// rather than trusted to framework-level cleanup in a long-lived parent.
// The parent writes the request as JSON on the child's stdin and reads the
// resulting PNG bytes from its stdout.
type Subprocess struct {
	BinaryPath     string
	CleanupCommand []string // best-effort CUDA-cache clear, run after every child exit
	Logger         arbor.ILogger
}

func NewSubprocess(binaryPath string, cleanupCommand []string, logger arbor.ILogger) *Subprocess {
	return &Subprocess{BinaryPath: binaryPath, CleanupCommand: cleanupCommand, Logger: logger}
}

func (s *Subprocess) GenerateOne(ctx context.Context, req GenerateRequest) ([]byte, error) {
	defer s.bestEffortCleanup(ctx)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("marshal engine request: %w", err))
	}

	cmd := exec.CommandContext(ctx, s.BinaryPath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, apperr.Internal(fmt.Errorf("engine subprocess failed: %w (stderr: %s)", err, stderr.String()))
	}

	if stdout.Len() == 0 {
		return nil, apperr.Internal(fmt.Errorf("engine subprocess produced no image bytes (stderr: %s)", stderr.String()))
	}
	return stdout.Bytes(), nil
}

// bestEffortCleanup runs the configured cache-clear command, if any, and
// only logs a warning on failure — a post-subprocess GPU cleanup step is
// never allowed to fail the job it ran after.
func (s *Subprocess) bestEffortCleanup(ctx context.Context) {
	if len(s.CleanupCommand) == 0 {
		return
	}
	cmd := exec.CommandContext(ctx, s.CleanupCommand[0], s.CleanupCommand[1:]...)
	if err := cmd.Run(); err != nil && s.Logger != nil {
		s.Logger.Warn().Err(err).Msg("post-subprocess GPU cache cleanup failed")
	}
}
