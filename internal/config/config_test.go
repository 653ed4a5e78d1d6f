package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gebr/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogDir := filepath.Join(tempHome, ".local", "share", "gebr", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantLogDir, "gebrd.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Paths.LockPath != filepath.Join(wantLogDir, "gebrd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.Paths.LockPath)
	}
	if cfg.Batch.OutputDir != tempHome {
		t.Fatalf("expected batch output dir to default to HOME, got %q", cfg.Batch.OutputDir)
	}
	if cfg.Scheduler.DefaultQueue != "default" {
		t.Fatalf("unexpected default queue %q", cfg.Scheduler.DefaultQueue)
	}
	if len(cfg.MPI) != 0 {
		t.Fatalf("expected no mpi flavors, got %v", cfg.MPIFlavors())
	}
}

func TestLoadCustomConfigWithMPISections(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
log_dir = "~/gebr-logs"
api_bind = ""

[logging]
format = "JSON"
level = "Debug"

[scheduler]
reserved_queues = ["default", " batch ", "default"]

[batch]
enabled = false
poll_interval_seconds = 0

[mpi-openmpi]
mpirun = "/opt/openmpi/bin/mpirun"
host = ["n1", " ", "n2"]

[mpi-mpich]
libpath = "/opt/mpich/lib"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to resolve to %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "gebr-logs") {
		t.Fatalf("unexpected log dir %q", cfg.Paths.LogDir)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	if got := strings.Join(cfg.Scheduler.ReservedQueues, ","); got != "default,batch" {
		t.Fatalf("unexpected reserved queues %q", got)
	}
	if cfg.Batch.PollIntervalSeconds != 1 {
		t.Fatalf("expected poll interval default, got %d", cfg.Batch.PollIntervalSeconds)
	}

	flavors := cfg.MPIFlavors()
	if strings.Join(flavors, ",") != "mpich,openmpi" {
		t.Fatalf("unexpected flavors %v", flavors)
	}
	openmpi := cfg.MPI["openmpi"]
	if openmpi.Name != "openmpi" || openmpi.Mpirun != "/opt/openmpi/bin/mpirun" {
		t.Fatalf("unexpected openmpi section %+v", openmpi)
	}
	if strings.Join(openmpi.Hosts, ",") != "n1,n2" {
		t.Fatalf("unexpected hosts %v", openmpi.Hosts)
	}
	if cfg.MPI["mpich"].Mpirun != "mpirun" {
		t.Fatalf("expected mpirun default for mpich, got %q", cfg.MPI["mpich"].Mpirun)
	}
}

func TestParseRejectsUnknownLogFormat(t *testing.T) {
	_, err := config.Parse([]byte("[logging]\nformat = \"xml\"\n"))
	if err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("expected logging.format error, got %v", err)
	}
}

func TestParseRequiresBatchCommandsWhenEnabled(t *testing.T) {
	_, err := config.Parse([]byte("[batch]\nenabled = true\nsubmit_command = \"\"\n"))
	if err == nil || !strings.Contains(err.Error(), "batch") {
		t.Fatalf("expected batch validation error, got %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}
