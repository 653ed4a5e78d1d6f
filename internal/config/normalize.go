package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeScheduler()
	if err := c.normalizeBatch(); err != nil {
		return err
	}
	c.normalizeMPI()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	fill := func(value *string, name, key string) error {
		if strings.TrimSpace(*value) == "" {
			*value = filepath.Join(c.Paths.LogDir, name)
			return nil
		}
		expanded, err := expandPath(*value)
		if err != nil {
			return fmt.Errorf("paths.%s: %w", key, err)
		}
		*value = expanded
		return nil
	}
	if err := fill(&c.Paths.SocketPath, defaultSocketName, "socket_path"); err != nil {
		return err
	}
	if err := fill(&c.Paths.LockPath, defaultLockName, "lock_path"); err != nil {
		return err
	}
	if err := fill(&c.Paths.PIDPath, defaultPIDName, "pid_path"); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.DefaultQueue = strings.TrimSpace(c.Scheduler.DefaultQueue)
	if c.Scheduler.DefaultQueue == "" {
		c.Scheduler.DefaultQueue = defaultQueue
	}
	reserved := make([]string, 0, len(c.Scheduler.ReservedQueues))
	seen := make(map[string]struct{}, len(c.Scheduler.ReservedQueues))
	for _, name := range c.Scheduler.ReservedQueues {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		reserved = append(reserved, name)
	}
	c.Scheduler.ReservedQueues = reserved
	if c.Scheduler.EventBuffer <= 0 {
		c.Scheduler.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) normalizeBatch() error {
	c.Batch.SubmitCommand = strings.TrimSpace(c.Batch.SubmitCommand)
	c.Batch.SignalCommand = strings.TrimSpace(c.Batch.SignalCommand)
	c.Batch.StatusCommand = strings.TrimSpace(c.Batch.StatusCommand)
	if c.Batch.PollIntervalSeconds <= 0 {
		c.Batch.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if strings.TrimSpace(c.Batch.OutputDir) == "" {
		c.Batch.OutputDir = "~"
	}
	var err error
	if c.Batch.OutputDir, err = expandPath(c.Batch.OutputDir); err != nil {
		return fmt.Errorf("batch.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMPI() {
	for name, section := range c.MPI {
		section.Mpirun = strings.TrimSpace(section.Mpirun)
		if section.Mpirun == "" {
			section.Mpirun = defaultMpirun
		}
		hosts := section.Hosts[:0]
		for _, host := range section.Hosts {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}
		section.Hosts = hosts
		c.MPI[name] = section
	}
}
