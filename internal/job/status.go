package job

// Status is the lifecycle state of a job.
type Status string

const (
	StatusInitial  Status = "initial"
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Token is the wire name of the status. Jobs that were never shown to a
// client report "unknown".
func (s Status) Token() string {
	switch s {
	case StatusQueued, StatusRunning, StatusFinished, StatusFailed, StatusCanceled:
		return string(s)
	default:
		return "unknown"
	}
}

// ParseToken maps a wire token back to a status.
func ParseToken(token string) (Status, bool) {
	switch Status(token) {
	case StatusQueued, StatusRunning, StatusFinished, StatusFailed, StatusCanceled:
		return Status(token), true
	case "unknown":
		return StatusInitial, true
	default:
		return "", false
	}
}

// Notification is a transient event about a job that does not change its
// status.
type Notification string

const (
	// NotifyRequeued reports the job now displays under a different queue.
	NotifyRequeued Notification = "requeued"
	// NotifyIssued reports a new entry in the job issue log.
	NotifyIssued Notification = "issued"
)
