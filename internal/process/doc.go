// Package process supervises the child processes that run jobs.
//
// A supervised child runs in its own process group so termination reaches
// every program of a piped flow. Output from stdout and stderr is read by
// background goroutines and delivered to a sink as Output events; a single
// Exit event follows once both streams are drained and the child is reaped.
// Sinks must not block for long since they run on the reader goroutines.
package process
