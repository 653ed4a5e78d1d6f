package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrClientClosed is returned by Drain once the client is closed and empty.
var ErrClientClosed = errors.New("notify: client closed")

// Client is a connected consumer of job events.
type Client struct {
	ID       string
	Hostname string

	mu     sync.Mutex
	queue  []Message
	wake   chan struct{}
	closed bool
}

// NewClient creates a client with an empty outbound queue.
func NewClient(id, hostname string) *Client {
	return &Client{ID: id, Hostname: hostname, wake: make(chan struct{}, 1)}
}

// Send appends msg to the outbound queue. Sends after Close are dropped.
func (c *Client) Send(msg Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	c.signal()
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued messages.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// TryDrain removes up to limit queued messages without waiting. A limit of
// zero or less drains everything.
func (c *Client) TryDrain(limit int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(c.queue) {
		limit = len(c.queue)
	}
	out := make([]Message, limit)
	copy(out, c.queue[:limit])
	c.queue = c.queue[limit:]
	if len(c.queue) == 0 {
		c.queue = nil
	}
	return out
}

// Drain waits for at least one message and returns up to limit of them.
func (c *Client) Drain(ctx context.Context, limit int) ([]Message, error) {
	for {
		if msgs := c.TryDrain(limit); len(msgs) > 0 {
			return msgs, nil
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrClientClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.wake:
		}
	}
}

// Close stops accepting messages and wakes pending drains. Already queued
// messages can still be drained.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}
