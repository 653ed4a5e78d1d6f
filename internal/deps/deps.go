package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external program the daemon runs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional tools degrade a feature when missing instead of breaking the daemon.
	Optional bool
}

// Status is the lookup result for one Requirement. Path is the resolved
// executable when Available.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// MPIRequirement describes the launcher of one MPI flavor.
func MPIRequirement(flavor, mpirun string) Requirement {
	return Requirement{
		Name:        "MPI " + flavor,
		Command:     mpirun,
		Description: "Launches " + flavor + " parallel programs",
		Optional:    true,
	}
}

// Check resolves req on PATH.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// CheckBinaries runs Check over every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = Check(req)
	}
	return results
}

// Missing returns the statuses that are not available.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available {
			missing = append(missing, s)
		}
	}
	return missing
}
