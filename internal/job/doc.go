// Package job models one execution attempt of a flow.
//
// A Job owns its status machine, issue log, timestamps and accumulated
// output. It carries no synchronization: the scheduler mutates jobs from its
// event loop only and hands out Record snapshots to everyone else.
package job
