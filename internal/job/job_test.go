package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"gebr/internal/flow"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func newJob(t *testing.T) *Job {
	t.Helper()
	j := New(Spec{ID: "job-1", Queue: "default", RunID: "r1", Flow: &flow.Document{Title: "Flow"}})
	j.SetClock(fixedClock())
	return j
}

func TestNewJobDefaults(t *testing.T) {
	j := New(Spec{ID: "x"})
	if j.Status() != StatusInitial {
		t.Fatalf("expected initial status, got %s", j.Status())
	}
	if j.NProcs != 1 {
		t.Fatalf("expected nprocs floor of 1, got %d", j.NProcs)
	}
	if j.Record().Status != "unknown" {
		t.Fatalf("initial job should report unknown token, got %q", j.Record().Status)
	}
}

func TestSetStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []Status
		final Status
	}{
		{"local run", []Status{StatusQueued, StatusRunning, StatusFinished}, StatusFinished},
		{"start from initial", []Status{StatusRunning, StatusFailed}, StatusFailed},
		{"fail before queue", []Status{StatusFailed}, StatusFailed},
		{"cancel pending", []Status{StatusQueued, StatusCanceled}, StatusCanceled},
		{"batch completes unseen", []Status{StatusQueued, StatusFinished}, StatusFinished},
		{"cancel running", []Status{StatusQueued, StatusRunning, StatusCanceled}, StatusCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newJob(t)
			for _, s := range tt.path {
				changed, err := j.SetStatus(context.Background(), s)
				if err != nil {
					t.Fatalf("SetStatus(%s): %v", s, err)
				}
				if !changed {
					t.Fatalf("SetStatus(%s) reported no change", s)
				}
			}
			if j.Status() != tt.final {
				t.Fatalf("final status %s, want %s", j.Status(), tt.final)
			}
			if j.FinishDate != "2024-05-01T12:00:00Z" {
				t.Fatalf("expected finish date on terminal state, got %q", j.FinishDate)
			}
		})
	}
}

func TestSetStatusIsIdempotent(t *testing.T) {
	j := newJob(t)
	if _, err := j.SetStatus(context.Background(), StatusQueued); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	changed, err := j.SetStatus(context.Background(), StatusQueued)
	if err != nil || changed {
		t.Fatalf("repeated status should be a silent no-op, got changed=%v err=%v", changed, err)
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	for _, terminal := range []Status{StatusFinished, StatusFailed, StatusCanceled} {
		j := newJob(t)
		_, _ = j.SetStatus(context.Background(), StatusRunning)
		if _, err := j.SetStatus(context.Background(), terminal); err != nil {
			t.Fatalf("SetStatus(%s): %v", terminal, err)
		}
		for _, next := range []Status{StatusQueued, StatusRunning, StatusFinished, StatusFailed, StatusCanceled, StatusInitial} {
			if next == terminal {
				continue
			}
			if j.CanTransition(next) {
				t.Fatalf("%s -> %s should not be possible", terminal, next)
			}
			if _, err := j.SetStatus(context.Background(), next); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", terminal, next, err)
			}
		}
	}
}

func TestCancelFromInitialRejected(t *testing.T) {
	j := newJob(t)
	if _, err := j.SetStatus(context.Background(), StatusCanceled); err == nil {
		t.Fatal("initial job cannot be canceled")
	}
}

func TestRecordSnapshot(t *testing.T) {
	j := newJob(t)
	j.Hostname = "ws1"
	j.CmdLine = "ls"
	j.BatchID = 42
	j.AddIssue("first")
	j.AppendOutput("hello ")
	j.AppendOutput("world")
	j.MarkStarted()

	rec := j.Record()
	if rec.ID != "job-1" || rec.Title != "Flow" || rec.Queue != "default" || rec.RunID != "r1" {
		t.Fatalf("unexpected record identity %+v", rec)
	}
	if rec.Output != "hello world" || j.OutputLen() != len("hello world") {
		t.Fatalf("unexpected output %q", rec.Output)
	}
	if rec.BatchID != "42" || rec.StartDate != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected batch/start %+v", rec)
	}

	rec.Issues[0] = "mutated"
	if j.Issues()[0] != "first" {
		t.Fatal("record must not alias the issue log")
	}
}

func TestParseToken(t *testing.T) {
	for _, s := range []Status{StatusInitial, StatusQueued, StatusRunning, StatusFinished, StatusFailed, StatusCanceled} {
		got, ok := ParseToken(s.Token())
		if !ok || got != s {
			t.Fatalf("ParseToken(%q) = %s, %v", s.Token(), got, ok)
		}
	}
	if _, ok := ParseToken("requeued"); ok {
		t.Fatal("requeued is a notification, not a status")
	}
}
