// Package notify fans job events out to connected clients.
//
// Every client owns an unbounded outbound queue. Broadcasting only appends to
// those queues; the connection layer that owns a client drains it at its own
// pace, so a slow client never blocks the scheduler.
package notify
