package daemonctl

import (
	"errors"
	"fmt"
	"strings"

	"gebr/internal/batch"
	"gebr/internal/config"
	"gebr/internal/deps"
	"gebr/internal/ipc"
)

// Severity levels used by status lines.
const (
	SeverityInfo  = "info"
	SeverityOK    = "ok"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// StatusLine is one labelled row in status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// Snapshot is the combined status view printed by the CLI.
type Snapshot struct {
	Status            ipc.DaemonStatus
	APIAddress        string
	SystemChecks      []StatusLine
	DependencySummary DependencySummary
}

// BuildStatusSnapshot asks the daemon for its status. When nothing answers the
// dependency checks run locally against cfg instead.
func BuildStatusSnapshot(cfg *config.Config, socketPath string) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	if socketPath == "" {
		socketPath = cfg.Paths.SocketPath
	}
	snapshot := &Snapshot{}
	if client, err := ipc.Dial(socketPath); err == nil {
		resp, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil {
			snapshot.Status = resp.Status
			snapshot.APIAddress = resp.APIAddress
		}
	}
	if len(snapshot.Status.Dependencies) == 0 {
		snapshot.Status.Dependencies = ResolveDependencies(cfg)
	}
	snapshot.SystemChecks = BuildSystemChecks(cfg, snapshot.Status)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Status.Dependencies)
	return snapshot, nil
}

// ResolveDependencies checks the batch toolset and every configured mpirun.
func ResolveDependencies(cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}
	requirements := batch.NewAdapter(cfg.Batch, nil).Requirements()
	for _, flavor := range cfg.MPIFlavors() {
		requirements = append(requirements, deps.MPIRequirement(flavor, cfg.MPI[flavor].Mpirun))
	}
	checks := deps.CheckBinaries(requirements)
	out := make([]ipc.DependencyStatus, len(checks))
	for i, check := range checks {
		out[i] = ipc.DependencyStatus(check)
	}
	return out
}

// Severity classifies a dependency for display.
func Severity(dep ipc.DependencyStatus) string {
	if dep.Available {
		return SeverityOK
	}
	if dep.Optional {
		return SeverityWarn
	}
	return SeverityError
}

// BuildSystemChecks combines runtime state with configuration checks.
func BuildSystemChecks(cfg *config.Config, status ipc.DaemonStatus) []StatusLine {
	daemon := StatusLine{Label: "Daemon", Severity: SeverityWarn, Detail: "Not running (run `gebr daemon start`)"}
	if status.Running {
		daemon = StatusLine{Label: "Daemon", Severity: SeverityOK, Detail: fmt.Sprintf("Running (pid %d)", status.PID)}
	}

	mode := StatusLine{Label: "Mode", Severity: SeverityInfo, Detail: status.Mode}
	if mode.Detail == "" {
		mode.Detail = "local (configured)"
		if cfg.Batch.Enabled {
			mode.Detail = "batch (configured)"
		}
	}

	mpiLine := StatusLine{Label: "MPI", Severity: SeverityInfo, Detail: "No flavors configured"}
	if flavors := cfg.MPIFlavors(); len(flavors) > 0 {
		mpiLine = StatusLine{Label: "MPI", Severity: SeverityOK, Detail: strings.Join(flavors, ", ")}
	}

	apiLine := StatusLine{Label: "HTTP API", Severity: SeverityInfo, Detail: "Disabled"}
	if bind := strings.TrimSpace(cfg.Paths.APIBind); bind != "" {
		apiLine = StatusLine{Label: "HTTP API", Severity: SeverityOK, Detail: bind}
		if strings.TrimSpace(cfg.Paths.APIToken) == "" {
			apiLine = StatusLine{Label: "HTTP API", Severity: SeverityWarn, Detail: bind + " (no token)"}
		}
	}
	return []StatusLine{daemon, mode, mpiLine, apiLine}
}

// BuildDependencySummary counts available and missing dependencies. Missing
// required tools make the summary an error, missing optional ones a warning.
func BuildDependencySummary(list []ipc.DependencyStatus) DependencySummary {
	summary := DependencySummary{Total: len(list), Severity: SeverityInfo}
	if len(list) == 0 {
		summary.Detail = "No dependency checks configured"
		return summary
	}
	for _, dep := range list {
		switch Severity(dep) {
		case SeverityOK:
			summary.Available++
		case SeverityWarn:
			summary.MissingOptional++
		default:
			summary.MissingRequired++
		}
	}
	summary.Detail = fmt.Sprintf("%d/%d available", summary.Available, summary.Total)
	switch {
	case summary.MissingRequired > 0:
		summary.Severity = SeverityError
	case summary.MissingOptional > 0:
		summary.Severity = SeverityWarn
	default:
		summary.Severity = SeverityOK
		return summary
	}
	summary.Detail += fmt.Sprintf(" (missing: %d required, %d optional)", summary.MissingRequired, summary.MissingOptional)
	return summary
}
