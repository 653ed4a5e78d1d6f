package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"gebr/internal/logging"
	"gebr/internal/services"
)

const readChunkSize = 4096

// EventKind distinguishes supervisor events.
type EventKind int

const (
	EventOutput EventKind = iota + 1
	EventExit
)

// Event is delivered to the sink of a supervised process.
type Event struct {
	Kind     EventKind
	Stream   string
	Chunk    string
	ExitCode int
	Signaled bool
	Err      error
}

// Sink receives process events.
type Sink func(Event)

// Command describes a child to start.
type Command struct {
	Args []string
	Dir  string
	Env  []string
	// CloseStdin closes the child's stdin right after start so programs that
	// wait for end of input do not hang.
	CloseStdin bool
}

// Process is a running supervised child.
type Process interface {
	Pid() int
	Terminate() error
	Kill() error
	CloseStdin() error
	Done() <-chan struct{}
}

// Supervisor starts and tracks child processes.
type Supervisor struct {
	logger *slog.Logger
}

// NewSupervisor creates a supervisor that logs through logger.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logging.NewComponentLogger(logger, "process")}
}

// Handle controls one child process.
type Handle struct {
	cmd   *exec.Cmd
	pid   int
	stdin io.WriteCloser

	stdinOnce sync.Once
	stdinErr  error
	done      chan struct{}
}

// Start launches cmd in a new process group. Cancelling ctx kills the group.
func (s *Supervisor) Start(ctx context.Context, spec Command, sink Sink) (*Handle, error) {
	if len(spec.Args) == 0 {
		return nil, services.Wrap(services.ErrProcess, "process", "start", "empty command", nil)
	}
	if sink == nil {
		sink = func(Event) {}
	}

	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrProcess, "process", "stdin pipe", "", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrProcess, "process", "stdout pipe", "", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrProcess, "process", "stderr pipe", "", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrProcess, "process", "start", spec.Args[0], err)
	}

	h := &Handle{cmd: cmd, pid: cmd.Process.Pid, stdin: stdin, done: make(chan struct{})}
	s.logger.Debug("process started",
		logging.Int("pid", h.pid),
		logging.Event("process_started"),
	)
	if spec.CloseStdin {
		_ = h.CloseStdin()
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go s.read(&readers, "stdout", stdout, sink)
	go s.read(&readers, "stderr", stderr, sink)

	go func() {
		readers.Wait()
		waitErr := cmd.Wait()
		_ = h.CloseStdin()
		sink(exitEvent(waitErr))
		close(h.done)
	}()
	return h, nil
}

func (s *Supervisor) read(wg *sync.WaitGroup, stream string, r io.Reader, sink Sink) {
	defer wg.Done()
	buf := make([]byte, readChunkSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			var complete []byte
			complete, carry = splitIncomplete(data)
			carry = append([]byte(nil), carry...)
			if len(complete) > 0 {
				s.deliver(stream, complete, sink)
			}
		}
		if err != nil {
			if len(carry) > 0 {
				s.deliver(stream, carry, sink)
			}
			return
		}
	}
}

func (s *Supervisor) deliver(stream string, chunk []byte, sink Sink) {
	text, repaired := Decode(chunk)
	if repaired {
		logging.ErrorWithContext(s.logger, "output is not valid UTF-8; decoded as ISO-8859-1", "output_encoding_repaired",
			logging.String("stream", stream),
			logging.Int("bytes", len(chunk)),
			logging.Hint("configure the program to write UTF-8 output"),
		)
	}
	sink(Event{Kind: EventOutput, Stream: stream, Chunk: text})
}

func exitEvent(err error) Event {
	evt := Event{Kind: EventExit}
	if err == nil {
		return evt
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		evt.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			evt.Signaled = true
		}
		return evt
	}
	evt.ExitCode = -1
	evt.Err = err
	return evt
}

// Pid returns the child's process id, which is also its process group id.
func (h *Handle) Pid() int { return h.pid }

// Done is closed after the Exit event was delivered.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Terminate asks the whole process group to stop.
func (h *Handle) Terminate() error {
	return h.signal(unix.SIGTERM)
}

// Kill forcibly stops the whole process group.
func (h *Handle) Kill() error {
	return h.signal(unix.SIGKILL)
}

// CloseStdin closes the child's standard input.
func (h *Handle) CloseStdin() error {
	h.stdinOnce.Do(func() {
		h.stdinErr = h.stdin.Close()
	})
	return h.stdinErr
}

func (h *Handle) signal(sig unix.Signal) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := signalGroup(h.pid, sig); err != nil {
		return services.Wrap(services.ErrProcess, "process", "signal", fmt.Sprintf("%s to group %d", unix.SignalName(sig), h.pid), err)
	}
	return nil
}

func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Launch is Start returning the Process interface.
func (s *Supervisor) Launch(ctx context.Context, spec Command, sink Sink) (Process, error) {
	h, err := s.Start(ctx, spec, sink)
	if err != nil {
		return nil, err
	}
	return h, nil
}
