package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gebr/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory. The batch
// strategy is disabled and the HTTP API binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	logDir := filepath.Join(base, "logs")
	cfgVal.Paths.LogDir = logDir
	cfgVal.Paths.SocketPath = filepath.Join(logDir, "gebrd.sock")
	cfgVal.Paths.LockPath = filepath.Join(logDir, "gebrd.lock")
	cfgVal.Paths.PIDPath = filepath.Join(logDir, "gebrd.pid")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Batch.Enabled = false
	cfgVal.Batch.OutputDir = filepath.Join(base, "batch")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIToken requires the bearer token on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithoutAPI disables the HTTP listener.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = ""
	}
}

// WithMPI adds an MPI flavor section.
func WithMPI(flavor, mpirun string, hosts ...string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.MPI == nil {
			b.cfg.MPI = make(map[string]config.MPI)
		}
		b.cfg.MPI[flavor] = config.MPI{Name: flavor, Mpirun: mpirun, Hosts: hosts}
	}
}

// WithBatchTools enables the batch strategy and stubs its tools in PATH.
func WithBatchTools() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Enabled = true
		WithStubbedBinaries(b.cfg.Batch.SubmitCommand, b.cfg.Batch.SignalCommand, b.cfg.Batch.StatusCommand)(b)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
