package daemonctl

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"gebr/internal/ipc"
	"gebr/internal/testsupport"
)

func TestBuildDependencySummary(t *testing.T) {
	tests := []struct {
		name     string
		deps     []ipc.DependencyStatus
		severity string
		detail   string
	}{
		{name: "empty", severity: "info", detail: "No dependency checks configured"},
		{
			name:     "all available",
			deps:     []ipc.DependencyStatus{{Available: true}, {Available: true}},
			severity: "ok",
			detail:   "2/2 available",
		},
		{
			name:     "optional missing",
			deps:     []ipc.DependencyStatus{{Available: true}, {Optional: true}},
			severity: "warn",
			detail:   "1/2 available (missing: 0 required, 1 optional)",
		},
		{
			name:     "required missing",
			deps:     []ipc.DependencyStatus{{}, {Optional: true}},
			severity: "error",
			detail:   "0/2 available (missing: 1 required, 1 optional)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := BuildDependencySummary(tt.deps)
			if summary.Severity != tt.severity || summary.Detail != tt.detail {
				t.Fatalf("got %+v", summary)
			}
		})
	}
}

func TestResolveDependenciesIncludesMPI(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithMPI("openmpi", "mpirun-openmpi-test"),
		testsupport.WithStubbedBinaries("mpirun-openmpi-test"),
	)
	deps := ResolveDependencies(cfg)
	var found bool
	for _, dep := range deps {
		if dep.Name == "MPI openmpi" {
			found = true
			if !dep.Available {
				t.Fatalf("expected stubbed mpirun to be available: %+v", dep)
			}
		}
	}
	if !found {
		t.Fatalf("expected MPI dependency in %+v", deps)
	}
}

func TestOfflineStatusSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	snapshot, err := BuildStatusSnapshot(cfg, "")
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Status.Running {
		t.Fatal("expected offline daemon")
	}
	if len(snapshot.SystemChecks) != 4 || snapshot.SystemChecks[0].Severity != SeverityWarn {
		t.Fatalf("unexpected system checks %+v", snapshot.SystemChecks)
	}
	if snapshot.DependencySummary.Total != len(snapshot.Status.Dependencies) {
		t.Fatalf("summary total mismatch: %+v", snapshot.DependencySummary)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	ctl := NewController(cfg, LaunchOptions{})
	ctl.StopGrace = 100 * time.Millisecond
	if _, err := ctl.Stop(); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	alive, pid, err := ctl.Probe()
	if err != nil || alive || pid != 0 {
		t.Fatalf("unexpected probe result: %v %d %v", alive, pid, err)
	}
}

func TestStartReportsMissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	ctl := NewController(cfg, LaunchOptions{})
	ctl.Binary = filepath.Join(t.TempDir(), "no-such-gebrd")
	if _, err := ctl.Start(); err == nil {
		t.Fatal("expected launch error for missing binary")
	}
}

func TestLaunchArgs(t *testing.T) {
	got := LaunchOptions{ConfigPath: " /etc/gebr.toml ", LogLevel: "debug"}.args()
	want := []string{"--config", "/etc/gebr.toml", "--log-level", "debug"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	ctl := &Controller{PIDPath: filepath.Join(dir, "gebrd.pid")}
	if _, err := ctl.ForceKill(os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
	if _, err := ctl.ForceKill(0); err == nil {
		t.Fatal("expected error without pid")
	}
	if err := os.WriteFile(ctl.PIDPath, []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ctl.ForceKill(0); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
}

func TestForceKillRemovesLeftovers(t *testing.T) {
	dir := t.TempDir()
	child := exec.Command("sleep", "30")
	if err := child.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(done)
	}()

	ctl := &Controller{
		PIDPath:    filepath.Join(dir, "gebrd.pid"),
		LockPath:   filepath.Join(dir, "gebrd.lock"),
		SocketPath: filepath.Join(dir, "gebrd.sock"),
	}
	for _, path := range []string{ctl.LockPath, ctl.SocketPath} {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(ctl.PIDPath, []byte(strconv.Itoa(child.Process.Pid)), 0o644); err != nil {
		t.Fatal(err)
	}

	pid, err := ctl.ForceKill(0)
	if err != nil {
		t.Fatalf("ForceKill: %v", err)
	}
	if pid != child.Process.Pid {
		t.Fatalf("killed pid %d, want %d", pid, child.Process.Pid)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child was not killed")
	}
	for _, path := range []string{ctl.PIDPath, ctl.LockPath, ctl.SocketPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err %v", path, err)
		}
	}
}
