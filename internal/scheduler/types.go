package scheduler

import (
	"context"
	"errors"

	"gebr/internal/batch"
	"gebr/internal/flow"
	"gebr/internal/job"
	"gebr/internal/process"
)

var (
	// ErrStopped is returned once the event loop has exited.
	ErrStopped = errors.New("scheduler stopped")
)

// Launcher starts supervised child processes.
type Launcher interface {
	Launch(ctx context.Context, cmd process.Command, sink process.Sink) (process.Process, error)
}

// BatchSystem submits and follows jobs on a batch cluster.
type BatchSystem interface {
	Available() bool
	Submit(ctx context.Context, cmdline, display, account, queue string) (uint64, error)
	Signal(ctx context.Context, id uint64, signal string) error
	Poll(ctx context.Context, id uint64, report func(batch.Status, error))
	TailCommand(id uint64) process.Command
	ReadRemainder(id uint64, offset int64) (string, error)
}

// Observer receives lifecycle counters.
type Observer interface {
	JobSubmitted(queue string)
	JobStatus(status job.Status)
	OutputChunk(bytes int)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted(string)  {}
func (nopObserver) JobStatus(job.Status) {}
func (nopObserver) OutputChunk(int)      {}

// RunRequest asks the daemon to run a flow.
type RunRequest struct {
	Queue    string
	Account  string
	Flow     *flow.Document
	NProcs   int
	RunID    string
	Hostname string
	Display  string
}

// Summary describes the scheduler at a point in time.
type Summary struct {
	Mode    string         `json:"mode"`
	Jobs    int            `json:"jobs"`
	Clients int            `json:"clients"`
	Queues  int            `json:"queues"`
	Counts  map[string]int `json:"counts"`
}

// Execution modes reported in Summary.
const (
	ModeLocal = "local"
	ModeBatch = "batch"
)
