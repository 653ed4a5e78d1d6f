// Package scheduler runs flows for clients.
//
// The Scheduler owns every job, the queue registry and the notifier. A single
// event loop goroutine performs all mutation: public methods post a closure
// to the loop and wait for its result, while process readers, batch pollers
// and batch tool invocations run on their own goroutines and only post
// events back. Jobs in one queue run one at a time in submission order; a
// job leaving the running slot hands it to the next pending job.
//
// Two execution strategies exist. The local strategy supervises the flow as
// a child process group. The batch strategy submits the flow to a cluster,
// follows its output file and polls its status. The batch strategy is used
// when the cluster toolset is installed; the check is made once.
package scheduler
