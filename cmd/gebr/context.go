package main

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gebr/internal/config"
	"gebr/internal/ipc"
)

// commandContext carries the persistent flags and the lazily loaded config
// shared by every subcommand.
type commandContext struct {
	socketFlag *string
	configFlag *string
	jsonFlag   *bool

	cfg    *config.Config
	cfgErr error
	loaded bool
}

func newCommandContext(socketFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{socketFlag: socketFlag, configFlag: configFlag, jsonFlag: jsonFlag}
}

// ensureConfig loads the configuration once per invocation and creates the
// directories it names.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.loaded {
		return c.cfg, c.cfgErr
	}
	c.loaded = true
	cfg, _, _, err := config.Load(c.configPath())
	if err == nil {
		err = cfg.EnsureDirectories()
	}
	if err != nil {
		c.cfgErr = fmt.Errorf("load config: %w", err)
		return nil, c.cfgErr
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) configPath() string {
	return flagString(c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// socketPath prefers --socket over the configured path.
func (c *commandContext) socketPath() string {
	if socket := flagString(c.socketFlag); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.SocketPath
	}
	return ""
}

// withClient dials the daemon, runs fn and hangs up.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(err error, socket string) error {
	if errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("no daemon socket at %s; start one with `gebr daemon start`", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("daemon socket %s refused the connection; the daemon may have crashed (try `gebr daemon restart`)", socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func flagString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
