// Package main hosts the gebr CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into IPC calls against
// gebrd: submitting flows, inspecting and stopping jobs, renaming queues,
// watching notifications and tailing daemon logs. Daemon lifecycle commands
// launch or stop the separate gebrd binary.
package main
