package api

import (
	"gebr/internal/job"
	"gebr/internal/logging"
	"gebr/internal/queue"
)

// DaemonStatus summarizes the running daemon.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Mode         string             `json:"mode"`
	LockFilePath string             `json:"lock_file_path"`
	SocketPath   string             `json:"socket_path"`
	Jobs         int                `json:"jobs"`
	Clients      int                `json:"clients"`
	Queues       int                `json:"queues"`
	Counts       map[string]int     `json:"counts"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	Queue    string `json:"queue"`
	Account  string `json:"account"`
	NProcs   int    `json:"nprocs"`
	RunID    string `json:"run_id"`
	Hostname string `json:"hostname"`
	Display  string `json:"display"`
	// Flow is the YAML flow document.
	Flow string `json:"flow"`
}

// JobListResponse wraps every known job.
type JobListResponse struct {
	Jobs []job.Record `json:"jobs"`
}

// JobResponse wraps one job.
type JobResponse struct {
	Job job.Record `json:"job"`
}

// QueueListResponse wraps the queue registry snapshot.
type QueueListResponse struct {
	Queues []queue.Info `json:"queues"`
}

// RenameQueueRequest is the body of POST /api/queues/{name}/rename.
type RenameQueueRequest struct {
	To string `json:"to"`
}

// LogStreamResponse carries daemon log events and the cursor for the next
// request.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
