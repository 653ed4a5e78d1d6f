package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDirectories(t *testing.T) {
	base := t.TempDir()
	logDir := filepath.Join(base, "logs")
	path := filepath.Join(base, "gebr.toml")
	content := "[paths]\nlog_dir = \"" + logDir + "\"\nsocket_path = \"" + filepath.Join(logDir, "gebrd.sock") + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Paths.LogDir != logDir {
		t.Fatalf("unexpected log dir %q", cfg.Paths.LogDir)
	}
	if info, err := os.Stat(logDir); err != nil || !info.IsDir() {
		t.Fatalf("expected log dir to exist: %v", err)
	}
}

func TestLoadConfigRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[paths\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "log-level", "development"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}
