package batch

import (
	"errors"
	"fmt"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		err    error
		queue  string
		want   Decision
	}{
		{
			name:   "negative completion code names nodes",
			status: Status{Class: "batch", CompletionCode: "-4", State: "Completed", AllocNodes: "n1,n2"},
			queue:  "batch",
			want: Decision{
				Outcome: OutcomeFailed,
				Issue:   "Batch job returned status code -4 allocated on nodes 'n1,n2'.",
				State:   "Completed",
			},
		},
		{
			name:   "positive completion code",
			status: Status{Class: "batch", CompletionCode: "2", State: "Completed"},
			queue:  "batch",
			want:   Decision{Outcome: OutcomeFailed, Issue: "Process exited with status code 2.", State: "Completed"},
		},
		{
			name:   "completed",
			status: Status{Class: "batch", State: "Completed"},
			queue:  "batch",
			want:   Decision{Outcome: OutcomeCompleted, State: "Completed"},
		},
		{
			name:   "running after requeue",
			status: Status{Class: "long", State: "Running"},
			queue:  "batch",
			want:   Decision{Outcome: OutcomeRunning, Requeued: "long", State: "Running"},
		},
		{
			name:   "idle keeps waiting",
			status: Status{Class: "batch", State: "Idle"},
			queue:  "batch",
			want:   Decision{Outcome: OutcomeWaiting, State: "Idle"},
		},
		{
			name: "server error",
			err:  &ServerError{Code: "700", Message: "invalid job"},
			want: Decision{Outcome: OutcomeFailed, Issue: "Batch job status could not be returned with error code 700 (invalid job)."},
		},
		{
			name: "unparseable report",
			err:  fmt.Errorf("%w: no job", ErrStatusUnavailable),
			want: Decision{Outcome: OutcomeFailed, Issue: IssueStatusUnavailable},
		},
		{
			name: "exec failure",
			err:  issue(IssueStatusUnavailable, errors.New("exec: not found")),
			want: Decision{Outcome: OutcomeFailed, Issue: IssueStatusUnavailable},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.status, tt.err, tt.queue); got != tt.want {
				t.Fatalf("Evaluate = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLeadingInt(t *testing.T) {
	tests := map[string]int{"-4": -4, " 12 ": 12, "3abc": 3, "": 0, "x": 0, "+7": 7}
	for in, want := range tests {
		if got := leadingInt(in); got != want {
			t.Errorf("leadingInt(%q) = %d, want %d", in, got, want)
		}
	}
}
