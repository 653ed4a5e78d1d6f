package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gebr/internal/assemble"
	"gebr/internal/config"
	"gebr/internal/job"
	"gebr/internal/logging"
	"gebr/internal/notify"
	"gebr/internal/process"
	"gebr/internal/queue"
	"gebr/internal/services"
)

// Options configures a Scheduler. Launcher is required; a nil Batch always
// selects the local strategy.
type Options struct {
	Config   config.Scheduler
	MPI      assemble.MPIResolver
	Launcher Launcher
	Batch    BatchSystem
	Observer Observer
	Logger   *slog.Logger
	// Clock and NewID are replaced by tests.
	Clock func() time.Time
	NewID func() string
}

type entry struct {
	job *job.Job
	// queue is the registry queue holding the job. Batch requeues change
	// the job's displayed label only.
	queue    string
	proc     process.Process
	tail     process.Process
	stopPoll context.CancelFunc
	// pendingSignal is delivered once an in-flight batch submission returns.
	pendingSignal string
}

// Scheduler owns jobs, queues and connected clients.
type Scheduler struct {
	cfg      config.Scheduler
	mpi      assemble.MPIResolver
	launcher Launcher
	batch    BatchSystem
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	events  chan func()
	done    chan struct{}
	started chan struct{}

	// Loop-owned state.
	runCtx    context.Context
	cancelRun context.CancelFunc
	jobs      map[string]*entry
	order     []string
	queues    *queue.Registry
	hub       *notify.Hub
	useBatch  bool

	background sync.WaitGroup
}

// New creates a scheduler. Call Run to start its event loop.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		cfg:      opts.Config,
		mpi:      opts.MPI,
		launcher: opts.Launcher,
		batch:    opts.Batch,
		observer: opts.Observer,
		logger:   logging.NewComponentLogger(opts.Logger, "scheduler"),
		now:      opts.Clock,
		newID:    opts.NewID,
		done:     make(chan struct{}),
		started:  make(chan struct{}),
		jobs:     make(map[string]*entry),
		queues:   queue.NewRegistry(opts.Config.ReservedQueues...),
		hub:      notify.NewHub(),
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.cfg.DefaultQueue == "" {
		s.cfg.DefaultQueue = "default"
	}
	buffer := s.cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}
	s.events = make(chan func(), buffer)
	return s
}

// Hub exposes the client registry to connection layers.
func (s *Scheduler) Hub() *notify.Hub {
	return s.hub
}

// Run executes the event loop until ctx is cancelled. On return every owned
// process has been killed and every poller stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	s.useBatch = s.batch != nil && s.batch.Available()
	mode := ModeLocal
	if s.useBatch {
		mode = ModeBatch
	}
	s.logger.Info("scheduler started",
		logging.String("mode", mode),
		logging.Event("scheduler_started"),
	)
	close(s.started)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *Scheduler) shutdown() {
	var waits []<-chan struct{}
	for _, e := range s.jobs {
		if e.stopPoll != nil {
			e.stopPoll()
		}
		for _, p := range []process.Process{e.proc, e.tail} {
			if p == nil {
				continue
			}
			if err := p.Kill(); err != nil {
				s.logger.Debug("kill on shutdown failed", logging.Error(err))
			}
			waits = append(waits, p.Done())
		}
	}
	s.cancelRun()
	close(s.done)
	for _, w := range waits {
		select {
		case <-w:
		case <-time.After(10 * time.Second):
			s.logger.Warn("process did not exit on shutdown",
				logging.Event("shutdown_process_stuck"),
				logging.Hint("check for processes ignoring SIGKILL"),
				logging.Impact("child process may outlive the daemon"),
			)
		}
	}
	s.background.Wait()
	s.hub.CloseAll()
	s.logger.Info("scheduler stopped", logging.Event("scheduler_stopped"))
}

// post queues fn on the loop. It reports false once the loop has exited.
func (s *Scheduler) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (s *Scheduler) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.events <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// goBackground runs fn off the loop and tracks it for shutdown.
func (s *Scheduler) goBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

func (s *Scheduler) jobLogger(j *job.Job) *slog.Logger {
	return logging.WithContext(jobContext(context.Background(), j), s.logger)
}

// jobContext tags ctx with the job's id and current queue.
func jobContext(ctx context.Context, j *job.Job) context.Context {
	return services.WithQueue(services.WithJobID(ctx, j.ID), j.Queue)
}

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "scheduler", "lookup", fmt.Sprintf("job %q", id), nil)
}
