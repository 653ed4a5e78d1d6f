// Package batch submits jobs to a Moab-style batch cluster and follows them.
//
// The Adapter drives the cluster through its command line tools: a submit
// tool that reads a script on stdin, a control tool that delivers signals and
// a status tool that prints XML. Status documents are decoded behind the
// StatusParser interface and interpreted by Evaluate, so the polling state
// machine is testable without cluster tools installed.
//
// Problems meant for the job issue log are returned as *IssueError values.
package batch
