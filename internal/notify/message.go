package notify

import "gebr/internal/job"

// Kind names the record type carried by a Message.
type Kind string

const (
	KindJob    Kind = "job"
	KindStatus Kind = "status"
	KindOutput Kind = "output"
)

// Message is one record sent to clients.
type Message struct {
	Kind      Kind        `json:"kind"`
	JobID     string      `json:"job_id"`
	RunID     string      `json:"run_id,omitempty"`
	Status    string      `json:"status,omitempty"`
	Parameter string      `json:"parameter,omitempty"`
	Chunk     string      `json:"chunk,omitempty"`
	Job       *job.Record `json:"job,omitempty"`
}

// JobMessage carries a full job record.
func JobMessage(rec job.Record) Message {
	return Message{Kind: KindJob, JobID: rec.ID, RunID: rec.RunID, Status: rec.Status, Job: &rec}
}

// StatusMessage reports a status change or a transient notification.
func StatusMessage(jobID, token, parameter, runID string) Message {
	return Message{Kind: KindStatus, JobID: jobID, RunID: runID, Status: token, Parameter: parameter}
}

// OutputMessage carries a chunk of program output.
func OutputMessage(jobID, chunk, runID string) Message {
	return Message{Kind: KindOutput, JobID: jobID, RunID: runID, Chunk: chunk}
}
