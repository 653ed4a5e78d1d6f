// Package queue keeps the named job queues of the daemon.
//
// Each queue holds an ordered list of pending jobs and at most one active
// job. A queue is busy exactly while it has an active job. Queues that drain
// completely are dropped unless their name is reserved.
//
// The Registry is not safe for concurrent use; the scheduler owns it and
// touches it from its event loop only.
package queue
