// Package mpi turns configured MPI flavors into launcher command prefixes.
package mpi

import (
	"path/filepath"
	"strconv"
	"strings"

	"gebr/internal/config"
)

// Provider resolves MPI flavors declared by flow programs.
type Provider struct {
	flavors map[string]config.MPI
}

// NewProvider builds a provider from the configured flavors. The map is
// copied; later changes to the configuration are not observed.
func NewProvider(flavors map[string]config.MPI) *Provider {
	copied := make(map[string]config.MPI, len(flavors))
	for name, flavor := range flavors {
		copied[name] = flavor
	}
	return &Provider{flavors: copied}
}

// Supported reports whether the flavor is configured.
func (p *Provider) Supported(flavor string) bool {
	if p == nil {
		return false
	}
	_, ok := p.flavors[flavor]
	return ok
}

// Command renders the launcher invocation for binary. The second return value
// is false when the flavor is not configured.
func (p *Provider) Command(flavor string, nprocs int, binary string) (string, bool) {
	if p == nil {
		return "", false
	}
	cfg, ok := p.flavors[flavor]
	if !ok {
		return "", false
	}
	if nprocs < 1 {
		nprocs = 1
	}
	launcher := cfg.Mpirun
	if launcher == "" {
		launcher = "mpirun"
	}
	if cfg.BinPath != "" && !strings.Contains(launcher, "/") {
		launcher = filepath.Join(cfg.BinPath, launcher)
	}

	var parts []string
	if cfg.LibPath != "" {
		parts = append(parts, "LD_LIBRARY_PATH="+cfg.LibPath)
	}
	parts = append(parts, launcher, "-np", strconv.Itoa(nprocs))
	if len(cfg.Hosts) > 0 {
		parts = append(parts, "--host", strings.Join(cfg.Hosts, ","))
	}
	parts = append(parts, binary)
	return strings.Join(parts, " "), true
}

// Bracket returns the commands that run before and after a flow using the
// flavor, such as starting and stopping an MPI runtime.
func (p *Provider) Bracket(flavor string) (init, end string) {
	if p == nil {
		return "", ""
	}
	cfg := p.flavors[flavor]
	return strings.TrimSpace(cfg.InitCommand), strings.TrimSpace(cfg.EndCommand)
}
