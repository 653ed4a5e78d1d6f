package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"gebr/internal/api"
	"gebr/internal/config"
	"gebr/internal/daemon"
	"gebr/internal/deps"
	"gebr/internal/logging"
	"gebr/internal/scheduler"
	"gebr/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, opts daemon.Options) *daemon.Daemon {
	t.Helper()
	sched := scheduler.New(scheduler.Options{
		Config:   cfg.Scheduler,
		Launcher: &testsupport.FakeLauncher{},
		Logger:   logging.NewNop(),
	})
	d, err := daemon.New(cfg, sched, logging.NewNop(), opts)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	d := newDaemon(t, cfg, daemon.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Scheduler.Mode != scheduler.ModeLocal {
		t.Fatalf("expected local mode, got %q", status.Scheduler.Mode)
	}
	if status.LockFilePath != cfg.Paths.LockPath {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected restart after stop to fail")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	first := newDaemon(t, cfg, daemon.Options{})
	second := newDaemon(t, cfg, daemon.Options{})

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected lock contention error")
	}
	if second.Running() {
		t.Fatal("second daemon should not be running")
	}
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	d := newDaemon(t, cfg, daemon.Options{
		LogHub: logging.NewStreamHub(16),
		Toolset: func() []deps.Status {
			return []deps.Status{{Name: "qsub", Command: "qsub", Available: true}}
		},
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	address := d.Status(context.Background()).APIAddress
	if address == "" {
		t.Fatal("expected api address")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + address + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, "http://"+address+"/api/status", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Mode != scheduler.ModeLocal {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Dependencies) != 1 || status.Dependencies[0].Name != "qsub" {
		t.Fatalf("unexpected dependencies %+v", status.Dependencies)
	}
}

func TestRequestStopClosesChannel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	d := newDaemon(t, cfg, daemon.Options{})

	select {
	case <-d.StopRequested():
		t.Fatal("stop requested before RequestStop")
	default:
	}
	d.RequestStop()
	d.RequestStop()
	select {
	case <-d.StopRequested():
	case <-time.After(time.Second):
		t.Fatal("expected stop request to be observed")
	}
}
