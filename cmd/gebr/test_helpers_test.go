package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gebr/internal/config"
	"gebr/internal/daemon"
	"gebr/internal/ipc"
	"gebr/internal/logging"
	"gebr/internal/scheduler"
	"gebr/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	launcher   *testsupport.FakeLauncher
	logs       *logging.StreamHub
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "gebr.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	launcher := &testsupport.FakeLauncher{}
	sched := scheduler.New(scheduler.Options{
		Config:   cfg.Scheduler,
		Launcher: launcher,
		Logger:   logger,
	})
	hub := logging.NewStreamHub(64)
	d, err := daemon.New(cfg, sched, logger, daemon.Options{LogHub: hub})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		srv.Close()
		cancel()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		launcher:   launcher,
		logs:       hub,
		configPath: configPath,
		baseDir:    base,
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, env.cfg.Paths.SocketPath, env.configPath)
}

func (env *cliTestEnv) flow(t *testing.T) string {
	t.Helper()
	return testsupport.WriteFlow(t, env.baseDir, "flows/pipe.yaml", testsupport.PipeFlowYAML)
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nlog_dir = %q\nsocket_path = %q\nlock_path = %q\npid_path = %q\napi_bind = \"\"\n\n[batch]\nenabled = false\n",
		cfg.Paths.LogDir,
		cfg.Paths.SocketPath,
		cfg.Paths.LockPath,
		cfg.Paths.PIDPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
