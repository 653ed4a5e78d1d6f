// Package logging assembles structured slog loggers and formatting helpers used
// across the gebr daemon and CLI.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so scheduler code can tag log lines with job
// IDs, queue names, and correlation IDs. A StreamHub keeps a bounded tail of
// recent log events that the IPC layer serves to `gebr logs`.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape and routing as the rest of the system.
package logging
