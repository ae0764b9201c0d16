package compile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// CommandRunner abstracts compiler invocation to enable testing without a
// pandoc installation.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. Unless Quiet is set,
// the tool's output streams to the process streams while being captured, so
// long pandoc runs stay visible and errors still carry the full text.
type ExecRunner struct {
	Quiet bool
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	if r.Quiet {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = io.MultiWriter(os.Stdout, &stdout)
		cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	}

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// ExitCode extracts the tool's own exit code from a runner error, or -1
// when the tool never ran (not installed, killed before exit).
func ExitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
