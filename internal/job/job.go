package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"gebr/internal/flow"
)

// Timestamp layout for start and finish dates.
const Timestamp = time.RFC3339

const (
	eventEnqueue = "enqueue"
	eventStart   = "start"
	eventFinish  = "finish"
	eventFail    = "fail"
	eventCancel  = "cancel"
)

var transitions = fsm.Events{
	{Name: eventEnqueue, Src: []string{string(StatusInitial)}, Dst: string(StatusQueued)},
	{Name: eventStart, Src: []string{string(StatusInitial), string(StatusQueued)}, Dst: string(StatusRunning)},
	{Name: eventFinish, Src: []string{string(StatusQueued), string(StatusRunning)}, Dst: string(StatusFinished)},
	{Name: eventFail, Src: []string{string(StatusInitial), string(StatusQueued), string(StatusRunning)}, Dst: string(StatusFailed)},
	{Name: eventCancel, Src: []string{string(StatusQueued), string(StatusRunning)}, Dst: string(StatusCanceled)},
}

var eventFor = map[Status]string{
	StatusQueued:   eventEnqueue,
	StatusRunning:  eventStart,
	StatusFinished: eventFinish,
	StatusFailed:   eventFail,
	StatusCanceled: eventCancel,
}

// ErrInvalidTransition is returned when the status machine rejects a change.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Spec describes a job at creation time.
type Spec struct {
	ID       string
	Queue    string
	Account  string
	Hostname string
	Display  string
	RunID    string
	NProcs   int
	Flow     *flow.Document
}

// Job is one execution attempt of a flow.
type Job struct {
	ID       string
	Title    string
	Queue    string
	Account  string
	Hostname string
	Display  string
	RunID    string
	NProcs   int
	Flow     *flow.Document

	CmdLine    string
	ReadsStdin bool
	BatchID    uint64
	StartDate  string
	FinishDate string

	// CriticalError is set when assembly failed; such a job never starts.
	CriticalError bool
	// UserFinished is set once end or kill was requested.
	UserFinished bool

	issues []string
	output strings.Builder
	fsm    *fsm.FSM
	now    func() time.Time
}

// New creates a job in the initial state.
func New(spec Spec) *Job {
	nprocs := spec.NProcs
	if nprocs < 1 {
		nprocs = 1
	}
	j := &Job{
		ID:       spec.ID,
		Queue:    spec.Queue,
		Account:  spec.Account,
		Hostname: spec.Hostname,
		Display:  spec.Display,
		RunID:    spec.RunID,
		NProcs:   nprocs,
		Flow:     spec.Flow,
		now:      time.Now,
	}
	if spec.Flow != nil {
		j.Title = spec.Flow.Title
	}
	j.fsm = fsm.NewFSM(
		string(StatusInitial),
		transitions,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if Status(e.Dst).Terminal() && j.FinishDate == "" {
					j.FinishDate = j.timestamp()
				}
			},
		},
	)
	return j
}

// SetClock overrides the time source used for timestamps.
func (j *Job) SetClock(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

func (j *Job) timestamp() string {
	return j.now().UTC().Format(Timestamp)
}

// Status returns the current status.
func (j *Job) Status() Status {
	return Status(j.fsm.Current())
}

// SetStatus moves the job to target. Setting the current status again is a
// no-op and reports changed=false. Terminal jobs reject every change.
func (j *Job) SetStatus(ctx context.Context, target Status) (bool, error) {
	current := j.Status()
	if current == target {
		return false, nil
	}
	event, ok := eventFor[target]
	if !ok {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}
	if err := j.fsm.Event(ctx, event); err != nil {
		return false, fmt.Errorf("%w: %s -> %s: %w", ErrInvalidTransition, current, target, err)
	}
	return true, nil
}

// CanTransition reports whether target is reachable from the current status.
func (j *Job) CanTransition(target Status) bool {
	event, ok := eventFor[target]
	return ok && j.fsm.Can(event)
}

// MarkStarted records the start date.
func (j *Job) MarkStarted() {
	j.StartDate = j.timestamp()
}

// MarkFinished records the finish date if it is not set yet.
func (j *Job) MarkFinished() {
	if j.FinishDate == "" {
		j.FinishDate = j.timestamp()
	}
}

// AddIssue appends to the issue log.
func (j *Job) AddIssue(issue string) {
	j.issues = append(j.issues, issue)
}

// Issues returns a copy of the issue log.
func (j *Job) Issues() []string {
	return append([]string(nil), j.issues...)
}

// AppendOutput accumulates a chunk of program output.
func (j *Job) AppendOutput(chunk string) {
	j.output.WriteString(chunk)
}

// Output returns everything the job has printed so far.
func (j *Job) Output() string {
	return j.output.String()
}

// OutputLen is the byte length of the accumulated output.
func (j *Job) OutputLen() int {
	return j.output.Len()
}

// Record is the snapshot of a job sent to clients.
type Record struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	Title      string   `json:"title"`
	StartDate  string   `json:"start_date,omitempty"`
	FinishDate string   `json:"finish_date,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	Issues     []string `json:"issues,omitempty"`
	CmdLine    string   `json:"cmd_line,omitempty"`
	Output     string   `json:"output,omitempty"`
	Queue      string   `json:"queue"`
	BatchID    string   `json:"batch_id,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

// Record snapshots the job.
func (j *Job) Record() Record {
	rec := Record{
		ID:         j.ID,
		Status:     j.Status().Token(),
		Title:      j.Title,
		StartDate:  j.StartDate,
		FinishDate: j.FinishDate,
		Hostname:   j.Hostname,
		Issues:     j.Issues(),
		CmdLine:    j.CmdLine,
		Output:     j.Output(),
		Queue:      j.Queue,
		RunID:      j.RunID,
	}
	if j.BatchID != 0 {
		rec.BatchID = fmt.Sprintf("%d", j.BatchID)
	}
	return rec
}
