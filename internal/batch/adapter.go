package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"gebr/internal/assemble"
	"gebr/internal/config"
	"gebr/internal/deps"
	"gebr/internal/logging"
	"gebr/internal/process"
	"gebr/internal/services"
)

// Issue messages.
const (
	IssueStatusUnavailable = "Batch job status could not be retrieved."
	IssueNoJobID           = "Cannot get batch job id."
	IssueSubmitFailed      = "Cannot submit job to batch server."
	IssueCancelFailed      = "Cannot cancel job at batch server."
)

// Signals understood by the control tool.
const (
	SignalTerminate = "SIGTERM"
	SignalKill      = "SIGKILL"
)

// IssueError carries a message for the job issue log.
type IssueError struct {
	Issue string
	Err   error
}

func (e *IssueError) Error() string {
	if e.Err != nil {
		return e.Issue + ": " + e.Err.Error()
	}
	return e.Issue
}

func (e *IssueError) Unwrap() error { return e.Err }

func issue(message string, err error) error {
	return &IssueError{Issue: message, Err: services.Wrap(services.ErrBatchTool, "batch", "", message, err)}
}

// Adapter talks to the batch cluster.
type Adapter struct {
	cfg      config.Batch
	exec     process.Executor
	parser   StatusParser
	interval time.Duration
	logger   *slog.Logger

	toolsOnce sync.Once
	tools     []deps.Status
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithExecutor replaces the command runner.
func WithExecutor(exec process.Executor) Option {
	return func(a *Adapter) { a.exec = exec }
}

// WithParser replaces the status parser.
func WithParser(parser StatusParser) Option {
	return func(a *Adapter) { a.parser = parser }
}

// WithPollInterval overrides the configured poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) { a.interval = d }
}

// NewAdapter creates an adapter for the configured toolset.
func NewAdapter(cfg config.Batch, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:      cfg,
		exec:     process.ExecRunner{},
		parser:   MoabParser{},
		interval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		logger:   logging.NewComponentLogger(logger, "batch"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.interval <= 0 {
		a.interval = time.Second
	}
	return a
}

// Requirements lists the tools the adapter runs.
func (a *Adapter) Requirements() []deps.Requirement {
	return []deps.Requirement{
		{Name: "Batch submit", Command: a.cfg.SubmitCommand, Description: "Submits flows to the batch server", Optional: true},
		{Name: "Batch control", Command: a.cfg.SignalCommand, Description: "Signals batch jobs", Optional: true},
		{Name: "Batch status", Command: a.cfg.StatusCommand, Description: "Reports batch job status", Optional: true},
	}
}

// Toolset reports tool availability. The lookup runs once per adapter.
func (a *Adapter) Toolset() []deps.Status {
	a.toolsOnce.Do(func() {
		a.tools = deps.CheckBinaries(a.Requirements())
	})
	return a.tools
}

// Available reports whether batch submission is enabled and every tool is
// installed.
func (a *Adapter) Available() bool {
	if a == nil || !a.cfg.Enabled {
		return false
	}
	return len(deps.Missing(a.Toolset())) == 0
}

// SubmitScript renders the shell line that pipes the job into the submit
// tool.
func (a *Adapter) SubmitScript(cmdline, display, account, queue string) string {
	script := assemble.LoginShell(cmdline, display)
	return fmt.Sprintf("echo %s | %s -A '%s' -q '%s' -k oe -j oe",
		assemble.ShellQuote(script), a.cfg.SubmitCommand, account, queue)
}

// Submit queues the job on the cluster and returns its batch id.
func (a *Adapter) Submit(ctx context.Context, cmdline, display, account, queue string) (uint64, error) {
	args := []string{"bash", "-l", "-c", a.SubmitScript(cmdline, display, account, queue)}
	res, err := a.exec.Run(ctx, args, nil)
	if err != nil {
		return 0, issue(IssueSubmitFailed, err)
	}
	if stderr := strings.TrimSpace(string(res.Stderr)); stderr != "" {
		return 0, issue(fmt.Sprintf("Cannot submit job to batch server: %s.", stderr), nil)
	}
	id := parseJobID(string(res.Stdout))
	if id == 0 {
		return 0, issue(IssueNoJobID, nil)
	}
	logging.WithContext(ctx, a.logger).Info("batch job submitted",
		logging.Uint64(logging.FieldBatchID, id),
		logging.Event("batch_submitted"),
	)
	return id, nil
}

func parseJobID(stdout string) uint64 {
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return 0
	}
	token := fields[0]
	end := 0
	for end < len(token) && token[end] >= '0' && token[end] <= '9' {
		end++
	}
	id, err := strconv.ParseUint(token[:end], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Signal delivers signal to a batch job.
func (a *Adapter) Signal(ctx context.Context, id uint64, signal string) error {
	args := []string{a.cfg.SignalCommand, "-M", "signal=" + signal, strconv.FormatUint(id, 10)}
	res, err := a.exec.Run(ctx, args, nil)
	if err != nil {
		return issue(IssueCancelFailed, err)
	}
	if strings.TrimSpace(string(res.Stderr)) != "" {
		return issue(IssueCancelFailed, fmt.Errorf("%s", strings.TrimSpace(string(res.Stderr))))
	}
	return nil
}

// Query runs the status tool once.
func (a *Adapter) Query(ctx context.Context, id uint64) (Status, error) {
	args := []string{a.cfg.StatusCommand, strconv.FormatUint(id, 10), "--format=xml"}
	res, err := a.exec.Run(ctx, args, nil)
	if err != nil {
		return Status{}, issue(IssueStatusUnavailable, err)
	}
	return a.parser.ParseStatus(res.Stdout)
}

// Poll queries the job every poll interval and reports each result until
// ctx is cancelled. The first query runs immediately.
func (a *Adapter) Poll(ctx context.Context, id uint64, report func(Status, error)) {
	ticker := backoff.NewTicker(backoff.NewConstantBackOff(a.interval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		status, err := a.Query(ctx, id)
		if ctx.Err() != nil {
			return
		}
		report(status, err)
	}
}

// OutputPath is the accounting file the cluster writes job output to.
func (a *Adapter) OutputPath(id uint64) string {
	return filepath.Join(a.cfg.OutputDir, "STDIN.o"+strconv.FormatUint(id, 10))
}

// TailCommand follows the output file of a batch job.
func (a *Adapter) TailCommand(id uint64) process.Command {
	path := assemble.ShellQuote(a.OutputPath(id))
	return process.Command{
		Args:       []string{"bash", "-c", "touch " + path + "; tail -f " + path},
		CloseStdin: true,
	}
}

// ReadRemainder returns the part of the output file past offset.
func (a *Adapter) ReadRemainder(id uint64, offset int64) (string, error) {
	f, err := os.Open(a.OutputPath(id))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	text, _ := process.Decode(data)
	return text, nil
}
