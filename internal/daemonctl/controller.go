package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"

	"gebr/internal/config"
	"gebr/internal/ipc"
)

// DaemonBinary is the executable name of the daemon.
const DaemonBinary = "gebrd"

const (
	defaultStartTimeout = 10 * time.Second
	defaultStopGrace    = 5 * time.Second
	defaultProbeEvery   = 200 * time.Millisecond
)

// ErrDaemonNotRunning indicates nothing answers on the daemon socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are forwarded to a launched gebrd as flags.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	var args []string
	if path := strings.TrimSpace(o.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(o.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult reports what Start did.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult reports what Stop did.
type StopResult struct {
	Acknowledged bool
	ForcedKill   bool
	PID          int
}

// RestartResult combines the stop and start halves of a restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Controller starts, probes and stops one gebrd instance identified by its
// socket, pid and lock paths.
type Controller struct {
	SocketPath string
	PIDPath    string
	LockPath   string
	// Binary is resolved with ResolveDaemonBinary when empty.
	Binary string
	Launch LaunchOptions

	StartTimeout time.Duration
	StopGrace    time.Duration
	ProbeEvery   time.Duration
}

// NewController binds a controller to the paths in cfg.
func NewController(cfg *config.Config, opts LaunchOptions) *Controller {
	return &Controller{
		SocketPath:   cfg.Paths.SocketPath,
		PIDPath:      cfg.Paths.PIDPath,
		LockPath:     cfg.Paths.LockPath,
		Launch:       opts,
		StartTimeout: defaultStartTimeout,
		StopGrace:    defaultStopGrace,
		ProbeEvery:   defaultProbeEvery,
	}
}

// ResolveDaemonBinary finds gebrd next to the running executable or in PATH.
func ResolveDaemonBinary() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), DaemonBinary)
		if info, statErr := os.Stat(sibling); statErr == nil && info.Mode().IsRegular() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", DaemonBinary, err)
	}
	return path, nil
}

// Probe reports whether a daemon answers on the socket and its pid.
func (c *Controller) Probe() (bool, int, error) {
	client, err := ipc.Dial(c.SocketPath)
	if err != nil {
		if unreachable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return resp.Status.Running, resp.Status.PID, nil
}

// Start launches a detached gebrd unless one already answers, then waits for
// its socket.
func (c *Controller) Start() (StartResult, error) {
	if alive, pid, err := c.Probe(); err == nil && alive {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}

	binary := c.Binary
	if binary == "" {
		resolved, err := ResolveDaemonBinary()
		if err != nil {
			return StartResult{}, err
		}
		binary = resolved
	}
	proc := exec.Command(binary, c.Launch.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return StartResult{}, fmt.Errorf("launch daemon: %w", err)
	}
	launchedPID := proc.Process.Pid
	_ = proc.Process.Release()

	var pid int
	err := c.poll(c.StartTimeout, func() error {
		alive, livePID, err := c.Probe()
		if err != nil {
			return err
		}
		if !alive {
			return ErrDaemonNotRunning
		}
		pid = livePID
		return nil
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("daemon (pid %d) did not come up on %s: %w", launchedPID, c.SocketPath, err)
	}
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

// poll retries fn every ProbeEvery until it succeeds or timeout elapses.
func (c *Controller) poll(timeout time.Duration, fn func() error) error {
	every := c.ProbeEvery
	if every <= 0 {
		every = defaultProbeEvery
	}
	attempts := uint64(timeout / every)
	if attempts == 0 {
		attempts = 1
	}
	return backoff.Retry(fn, backoff.WithMaxRetries(backoff.NewConstantBackOff(every), attempts))
}

func unreachable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
