package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"gebr/internal/api"
	"gebr/internal/batch"
	"gebr/internal/config"
	"gebr/internal/daemon"
	"gebr/internal/deps"
	"gebr/internal/ipc"
	"gebr/internal/logging"
	"gebr/internal/mpi"
	"gebr/internal/process"
	"gebr/internal/scheduler"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the gebr daemon runtime loop and blocks until a signal or an
// IPC stop request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("gebrd-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update gebrd.log link: %v\n", err)
	}
	logging.PruneDaemonLogs(logger, cfg.Paths.LogDir, "gebrd-*.log", cfg.Logging.RetentionDays, logPath)

	if err := writePIDFile(cfg.Paths.PIDPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.Paths.PIDPath)

	adapter := batch.NewAdapter(cfg.Batch, logger)
	metrics := api.NewMetrics()
	sched := scheduler.New(scheduler.Options{
		Config:   cfg.Scheduler,
		MPI:      mpi.NewProvider(cfg.MPI),
		Launcher: process.NewSupervisor(logger),
		Batch:    adapter,
		Observer: metrics,
		Logger:   logger,
	})
	metrics.WatchClients(sched.Hub().Count)
	logDependencySnapshot(logger, cfg, adapter)

	d, err := daemon.New(cfg, sched, logger, daemon.Options{
		LogHub:  logHub,
		Metrics: metrics,
		Toolset: adapter.Toolset,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.Event("daemon_start_failed"),
			logging.Hint("check for another gebrd instance and the api_bind address"),
			logging.Impact("no jobs can be run"),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
	case <-d.StopRequested():
	}
	logger.Info("gebr daemon shutting down", logging.Event("daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "gebrd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, adapter *batch.Adapter) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.Event("dependency_snapshot"),
		logging.Bool("batch_enabled", cfg.Batch.Enabled),
		logging.Bool("batch_available", adapter.Available()),
		logging.Int("mpi_flavors", len(cfg.MPI)),
	}
	for _, status := range adapter.Toolset() {
		attrs = append(attrs, logging.Bool(status.Command+"_available", status.Available))
	}
	for _, flavor := range cfg.MPIFlavors() {
		found := deps.Check(deps.MPIRequirement(flavor, cfg.MPI[flavor].Mpirun))
		attrs = append(attrs, logging.Bool("mpi_"+flavor+"_available", found.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
