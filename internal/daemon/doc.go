// Package daemon coordinates the long-running gebrd process.
//
// It owns the scheduler event loop and the HTTP API server as one lifecycle
// guarded by a flock-based lock file so only one daemon runs per lock path.
// Status reports combine scheduler counters with batch toolset availability.
//
// Keep orchestration here: job semantics live in the scheduler and its
// collaborators while the daemon focuses on startup, shutdown and
// reporting.
package daemon
