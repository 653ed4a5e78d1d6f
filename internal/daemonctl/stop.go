package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"gebr/internal/ipc"
)

// Stop asks the daemon to shut down over IPC and kills it when it is still
// answering after StopGrace.
func (c *Controller) Stop() (StopResult, error) {
	client, err := ipc.Dial(c.SocketPath)
	if err != nil {
		if unreachable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var result StopResult
	if status, statusErr := client.Status(); statusErr == nil {
		result.PID = status.Status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, fmt.Errorf("request stop: %w", err)
	}
	result.Acknowledged = resp.Stopping

	gone := c.poll(c.StopGrace, func() error {
		alive, _, probeErr := c.Probe()
		if probeErr == nil && alive {
			return errors.New("daemon still running")
		}
		return nil
	})
	if gone == nil {
		return result, nil
	}

	pid, err := c.ForceKill(result.PID)
	if err != nil {
		return result, fmt.Errorf("daemon ignored stop request: %w", err)
	}
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

// Restart stops a running daemon, if any, and starts a fresh one.
func (c *Controller) Restart() (RestartResult, error) {
	stopped, err := c.Stop()
	wasRunning := err == nil
	if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
		return RestartResult{}, err
	}
	started, err := c.Start()
	if err != nil {
		return RestartResult{WasRunning: wasRunning, Stop: stopped}, err
	}
	return RestartResult{WasRunning: wasRunning, Stop: stopped, Start: started}, nil
}

// ForceKill sends SIGKILL to the daemon named in the pid file, falling back to
// fallbackPID, and removes the pid, lock and socket files it leaves behind.
func (c *Controller) ForceKill(fallbackPID int) (int, error) {
	pid, err := readPID(c.PIDPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("no daemon pid known (pid file: %s)", c.PIDPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	for _, path := range []string{c.PIDPath, c.LockPath, c.SocketPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return pid, nil
}

// readPID returns 0 when the pid file is missing or empty.
func readPID(path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s holds %q", path, text)
	}
	return pid, nil
}
