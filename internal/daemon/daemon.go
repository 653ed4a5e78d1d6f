package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"gebr/internal/api"
	"gebr/internal/config"
	"gebr/internal/deps"
	"gebr/internal/logging"
	"gebr/internal/scheduler"
)

// Options carries optional collaborators.
type Options struct {
	LogHub  *logging.StreamHub
	Metrics *api.Metrics
	// Toolset reports external tool availability for status output.
	Toolset func() []deps.Status
}

// Daemon runs the scheduler and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	sched   *scheduler.Scheduler
	logHub  *logging.StreamHub
	metrics *api.Metrics
	toolset func() []deps.Status
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	running  atomic.Bool
	consumed bool
	cancel   context.CancelFunc
	group    *errgroup.Group

	stopRequested chan struct{}
	stopOnce      sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	SocketPath   string
	APIAddress   string
	Scheduler    scheduler.Summary
	Dependencies []deps.Status
}

// New constructs a daemon around sched.
func New(cfg *config.Config, sched *scheduler.Scheduler, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || sched == nil {
		return nil, errors.New("daemon requires config and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		sched:         sched,
		logHub:        opts.LogHub,
		metrics:       opts.Metrics,
		toolset:       opts.Toolset,
		lockPath:      cfg.Paths.LockPath,
		lock:          flock.New(cfg.Paths.LockPath),
		stopRequested: make(chan struct{}),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock and runs the scheduler loop and the API server.
// A daemon runs once; Start after Stop fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.consumed {
		return errors.New("daemon cannot be restarted in the same process")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gebrd instance is already running")
	}
	d.consumed = true

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return d.sched.Run(groupCtx)
	})
	if err := d.api.start(groupCtx, group); err != nil {
		cancel()
		_ = group.Wait()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.cancel = cancel
	d.group = group
	d.running.Store(true)
	d.logger.Info("gebrd started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Event("daemon_started"),
	)
	return nil
}

// Stop cancels the scheduler, waits for it to release every process and
// releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	if err := d.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("daemon component failed",
			logging.Error(err),
			logging.Event("daemon_component_failed"),
			logging.Hint("check earlier errors in the log"),
			logging.Impact("daemon stopped with errors"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.Event("daemon_unlock_failed"),
			logging.Hint("remove the lock file manually"),
			logging.Impact("next start may report a running instance"),
		)
	}
	d.cancel = nil
	d.group = nil
	d.running.Store(false)
	d.logger.Info("gebrd stopped", logging.Event("daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// RequestStop asks the process hosting the daemon to shut down.
func (d *Daemon) RequestStop() {
	d.stopOnce.Do(func() { close(d.stopRequested) })
}

// StopRequested is closed once RequestStop was called.
func (d *Daemon) StopRequested() <-chan struct{} {
	return d.stopRequested
}

// Running reports whether Start succeeded and Stop has not run yet.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Scheduler returns the job scheduler.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.sched
}

// LogStream returns the in-memory log buffer, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.Paths.SocketPath,
		APIAddress:   d.api.address(),
	}
	if status.Running {
		summary, err := d.sched.Status(ctx)
		if err != nil {
			d.logger.Debug("scheduler status unavailable", logging.Error(err))
		}
		status.Scheduler = summary
	}
	if d.toolset != nil {
		status.Dependencies = d.toolset()
	}
	return status
}

// APIStatus converts Status into its wire representation.
func (d *Daemon) APIStatus(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	out := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Mode:         status.Scheduler.Mode,
		LockFilePath: status.LockFilePath,
		SocketPath:   status.SocketPath,
		Jobs:         status.Scheduler.Jobs,
		Clients:      status.Scheduler.Clients,
		Queues:       status.Scheduler.Queues,
		Counts:       status.Scheduler.Counts,
	}
	out.Dependencies = make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		out.Dependencies[i] = api.DependencyStatus(dep)
	}
	return out
}
