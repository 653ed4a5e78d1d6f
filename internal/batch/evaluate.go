package batch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Batch execution states acted upon.
const (
	StateCompleted = "Completed"
	StateRunning   = "Running"
)

// Outcome is what a poll result means for the job.
type Outcome int

const (
	// OutcomeWaiting keeps polling without a status change.
	OutcomeWaiting Outcome = iota
	// OutcomeRunning reports the job started on the cluster.
	OutcomeRunning
	// OutcomeCompleted reports the job ended normally.
	OutcomeCompleted
	// OutcomeFailed ends polling with a failure.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "waiting"
	}
}

// Decision is the interpretation of one poll.
type Decision struct {
	Outcome Outcome
	// Issue is appended to the job issue log when non-empty.
	Issue string
	// Requeued holds the new class when the cluster moved the job.
	Requeued string
	// State is the raw execution state, kept for logging.
	State string
}

// Evaluate interprets a poll for a job currently labeled with queue. err is
// the error returned by Adapter.Query.
func Evaluate(status Status, err error, queue string) Decision {
	if err != nil {
		var issue *IssueError
		if errors.As(err, &issue) {
			return Decision{Outcome: OutcomeFailed, Issue: issue.Issue}
		}
		return Decision{Outcome: OutcomeFailed, Issue: statusIssue(err)}
	}

	d := Decision{State: status.State}
	if status.Class != "" && status.Class != queue {
		d.Requeued = status.Class
	}
	if status.CompletionCode != "" {
		code := leadingInt(status.CompletionCode)
		d.Outcome = OutcomeFailed
		if code < 0 {
			d.Issue = fmt.Sprintf("Batch job returned status code %d allocated on nodes '%s'.", code, status.AllocNodes)
		} else {
			d.Issue = fmt.Sprintf("Process exited with status code %d.", code)
		}
		return d
	}
	switch status.State {
	case StateCompleted:
		d.Outcome = OutcomeCompleted
	case StateRunning:
		d.Outcome = OutcomeRunning
	default:
		d.Outcome = OutcomeWaiting
	}
	return d
}

func statusIssue(err error) string {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return fmt.Sprintf("Batch job status could not be returned with error code %s (%s).", serverErr.Code, serverErr.Message)
	}
	return IssueStatusUnavailable
}

// leadingInt parses an optional sign and leading digits, ignoring the rest.
func leadingInt(value string) int {
	value = strings.TrimSpace(value)
	end := 0
	if end < len(value) && (value[end] == '-' || value[end] == '+') {
		end++
	}
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(value[:end])
	if err != nil {
		return 0
	}
	return n
}
