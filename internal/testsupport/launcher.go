package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"gebr/internal/process"
)

// FakeProcess is a supervised process driven by the test.
type FakeProcess struct {
	Command process.Command

	sink process.Sink
	pid  int

	mu         sync.Mutex
	terminated bool
	killed     bool
	done       chan struct{}
	once       sync.Once
}

func (p *FakeProcess) Pid() int              { return p.pid }
func (p *FakeProcess) Done() <-chan struct{} { return p.done }
func (p *FakeProcess) CloseStdin() error     { return nil }

func (p *FakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	p.mu.Unlock()
	return nil
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
	return nil
}

// Output delivers a stdout chunk.
func (p *FakeProcess) Output(chunk string) {
	p.sink(process.Event{Kind: process.EventOutput, Stream: "stdout", Chunk: chunk})
}

// Exit delivers the exit event.
func (p *FakeProcess) Exit(code int) {
	p.sink(process.Event{Kind: process.EventExit, ExitCode: code})
	p.once.Do(func() { close(p.done) })
}

// Killed reports whether Kill was called.
func (p *FakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Terminated reports whether Terminate was called.
func (p *FakeProcess) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// FakeLauncher records launches instead of forking.
type FakeLauncher struct {
	mu    sync.Mutex
	procs []*FakeProcess
	err   error
}

// Fail makes every later launch return err. A nil err restores launching.
func (l *FakeLauncher) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Launch implements scheduler.Launcher.
func (l *FakeLauncher) Launch(_ context.Context, cmd process.Command, sink process.Sink) (process.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := &FakeProcess{Command: cmd, sink: sink, pid: 4000 + len(l.procs), done: make(chan struct{})}
	l.procs = append(l.procs, p)
	return p, nil
}

// Count is the number of launches so far.
func (l *FakeLauncher) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

// Processes returns the launches so far in order.
func (l *FakeLauncher) Processes() []*FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeProcess(nil), l.procs...)
}

// Process waits for the i-th launch and returns it.
func (l *FakeLauncher) Process(t testing.TB, i int) *FakeProcess {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		l.mu.Lock()
		if len(l.procs) > i {
			p := l.procs[i]
			l.mu.Unlock()
			return p
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("process %d was never launched", i)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
