package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// MPISectionPrefix marks configuration sections that describe an MPI flavor.
const MPISectionPrefix = "mpi-"

// Paths contains directory, socket and bind address configuration.
type Paths struct {
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
	LockPath   string `toml:"lock_path"`
	PIDPath    string `toml:"pid_path"`
	APIBind    string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on every HTTP request.
	APIToken string `toml:"api_token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Scheduler contains queueing behaviour.
type Scheduler struct {
	// ReservedQueues are never garbage-collected when they drain.
	ReservedQueues []string `toml:"reserved_queues"`
	DefaultQueue   string   `toml:"default_queue"`
	// EventBuffer bounds the scheduler's inbound event channel.
	EventBuffer int `toml:"event_buffer"`
}

// Batch contains configuration for cluster submission.
type Batch struct {
	Enabled             bool   `toml:"enabled"`
	SubmitCommand       string `toml:"submit_command"`
	SignalCommand       string `toml:"signal_command"`
	StatusCommand       string `toml:"status_command"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	// OutputDir holds the batch system's STDIN.o<id> accounting files.
	OutputDir string `toml:"output_dir"`
}

// MPI describes one configured MPI flavor.
type MPI struct {
	Name        string   `toml:"-"`
	Mpirun      string   `toml:"mpirun"`
	LibPath     string   `toml:"libpath"`
	BinPath     string   `toml:"binpath"`
	Hosts       []string `toml:"host"`
	InitCommand string   `toml:"init_command"`
	EndCommand  string   `toml:"end_command"`
}

// Config encapsulates all configuration values for the gebr daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: log directory, IPC socket, lock/pid files, HTTP bind address
//   - Logging: log format, level, and retention
//   - Scheduler: reserved queue names and event buffering
//   - Batch: cluster toolset and polling
//   - mpi-<flavor>: one section per supported MPI implementation
type Config struct {
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
	Scheduler Scheduler `toml:"scheduler"`
	Batch     Batch     `toml:"batch"`

	MPI map[string]MPI `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gebr/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Parse decodes TOML content on top of the defaults without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decode(data []byte) error {
	decoder := toml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var sections map[string]MPI
	if err := toml.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("parse mpi sections: %w", err)
	}
	for name, section := range sections {
		if !strings.HasPrefix(name, MPISectionPrefix) {
			continue
		}
		flavor := strings.TrimPrefix(name, MPISectionPrefix)
		if flavor == "" {
			return fmt.Errorf("section %q: mpi flavor name is empty", name)
		}
		if c.MPI == nil {
			c.MPI = make(map[string]MPI)
		}
		section.Name = flavor
		c.MPI[flavor] = section
	}
	return nil
}

// MPIFlavors returns the configured flavor names in sorted order.
func (c *Config) MPIFlavors() []string {
	names := make([]string, 0, len(c.MPI))
	for name := range c.MPI {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gebr.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath), filepath.Dir(c.Paths.LockPath)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
