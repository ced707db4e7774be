// Package postprocess runs the optional external tools over the finished PDF:
// OCR with ocrmypdf and the staged lossless compression.
package postprocess

import (
	"context"
	"os/exec"
	"strings"

	"github.com/ztrue/tracerr"
)

// Runner runs one external command to completion and returns its combined
// output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, tracerr.Errorf("%s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
