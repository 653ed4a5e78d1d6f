package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result is the captured outcome of a one-shot command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs short-lived commands to completion.
type Executor interface {
	Run(ctx context.Context, args []string, stdin []byte) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes args and captures both output streams. A non-zero exit is
// reported through Result.ExitCode, not as an error.
func (ExecRunner) Run(ctx context.Context, args []string, stdin []byte) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("process: empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
