package ipc

import (
	"gebr/internal/api"
	"gebr/internal/job"
	"gebr/internal/logging"
	"gebr/internal/notify"
	"gebr/internal/queue"
)

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Gebr"

// RunRequest submits a flow. It mirrors the HTTP submit body.
type RunRequest = api.SubmitRequest

// DaemonStatus mirrors the HTTP status DTO.
type DaemonStatus = api.DaemonStatus

// DependencyStatus describes availability of an external tool.
type DependencyStatus = api.DependencyStatus

// JobResponse carries one job.
type JobResponse struct {
	Job job.Record `json:"job"`
}

// ListRequest lists every job.
type ListRequest struct{}

// ListResponse carries every known job.
type ListResponse struct {
	Jobs []job.Record `json:"jobs"`
}

// JobRequest addresses one job for show, clear, end and kill.
type JobRequest struct {
	ID string `json:"id"`
}

// ActionResponse acknowledges a job action.
type ActionResponse struct {
	OK bool `json:"ok"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and scheduler status.
type StatusResponse struct {
	Status     DaemonStatus `json:"status"`
	APIAddress string       `json:"api_address,omitempty"`
}

// QueuesRequest lists queues.
type QueuesRequest struct{}

// QueuesResponse carries the queue registry snapshot.
type QueuesResponse struct {
	Queues []queue.Info `json:"queues"`
}

// RenameQueueRequest renames a queue.
type RenameQueueRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SubscribeRequest registers a notification client.
type SubscribeRequest struct {
	Hostname string `json:"hostname"`
}

// SubscribeResponse returns the id used with Poll and Unsubscribe.
type SubscribeResponse struct {
	ClientID string `json:"client_id"`
}

// PollRequest drains queued notifications, waiting up to WaitMillis for the
// first one.
type PollRequest struct {
	ClientID   string `json:"client_id"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"wait_millis"`
}

// PollResponse carries drained notifications. Closed reports that the daemon
// is shutting down and no further messages will arrive.
type PollResponse struct {
	Messages []notify.Message `json:"messages"`
	Closed   bool             `json:"closed"`
}

// UnsubscribeRequest removes a notification client.
type UnsubscribeRequest struct {
	ClientID string `json:"client_id"`
}

// LogsRequest reads the daemon's in-memory log stream.
type LogsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	Tail       bool   `json:"tail"`
	WaitMillis int    `json:"wait_millis"`
}

// LogsResponse returns log events and the cursor for the next request.
type LogsResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// StopRequest asks the daemon process to exit.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}
