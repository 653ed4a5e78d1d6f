package process

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gebr/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	output strings.Builder
	exit   *Event
	done   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) sink(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch evt.Kind {
	case EventOutput:
		r.output.WriteString(evt.Chunk)
	case EventExit:
		e := evt
		r.exit = &e
		close(r.done)
	}
}

func (r *recorder) wait(t *testing.T) Event {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.exit
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestSupervisorCollectsOutputAndExit(t *testing.T) {
	requireShell(t)
	sup := NewSupervisor(logging.NewNop())
	rec := newRecorder()

	h, err := sup.Start(context.Background(), Command{
		Args:       []string{"sh", "-c", "echo out; echo err 1>&2; exit 3"},
		CloseStdin: true,
	}, rec.sink)
	require.NoError(t, err)
	require.Positive(t, h.Pid())

	exit := rec.wait(t)
	require.Equal(t, 3, exit.ExitCode)
	require.False(t, exit.Signaled)
	<-h.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Contains(t, rec.output.String(), "out\n")
	require.Contains(t, rec.output.String(), "err\n")
}

func TestSupervisorClosesStdin(t *testing.T) {
	requireShell(t)
	sup := NewSupervisor(logging.NewNop())
	rec := newRecorder()

	_, err := sup.Start(context.Background(), Command{
		Args:       []string{"sh", "-c", "cat; echo eof"},
		CloseStdin: true,
	}, rec.sink)
	require.NoError(t, err)
	exit := rec.wait(t)
	require.Zero(t, exit.ExitCode)
}

func TestSupervisorTerminateReachesGroup(t *testing.T) {
	requireShell(t)
	sup := NewSupervisor(logging.NewNop())
	rec := newRecorder()

	h, err := sup.Start(context.Background(), Command{
		Args:       []string{"sh", "-c", "sleep 30 | sleep 30"},
		CloseStdin: true,
	}, rec.sink)
	require.NoError(t, err)

	require.NoError(t, h.Terminate())
	exit := rec.wait(t)
	require.NotZero(t, exit.ExitCode)
	require.NoError(t, h.Kill(), "signalling an exited group is a no-op")
}

func TestSupervisorContextCancelKills(t *testing.T) {
	requireShell(t)
	sup := NewSupervisor(logging.NewNop())
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := sup.Start(ctx, Command{Args: []string{"sh", "-c", "sleep 30"}, CloseStdin: true}, rec.sink)
	require.NoError(t, err)
	cancel()
	exit := rec.wait(t)
	require.True(t, exit.Signaled || exit.ExitCode != 0)
}

func TestSupervisorRejectsEmptyCommand(t *testing.T) {
	sup := NewSupervisor(nil)
	_, err := sup.Start(context.Background(), Command{}, nil)
	require.Error(t, err)
}

func TestStartFailureForMissingBinary(t *testing.T) {
	sup := NewSupervisor(nil)
	_, err := sup.Start(context.Background(), Command{Args: []string{"/nonexistent/gebr-binary"}}, nil)
	require.Error(t, err)
}

func TestExecRunnerCapturesStreams(t *testing.T) {
	requireShell(t)
	res, err := ExecRunner{}.Run(context.Background(), []string{"sh", "-c", "cat; echo bad 1>&2; exit 2"}, []byte("in"))
	require.NoError(t, err)
	require.Equal(t, "in", string(res.Stdout))
	require.Equal(t, "bad\n", string(res.Stderr))
	require.Equal(t, 2, res.ExitCode)

	_, err = ExecRunner{}.Run(context.Background(), nil, nil)
	require.Error(t, err)
}
