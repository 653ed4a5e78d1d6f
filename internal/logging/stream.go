package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one structured log record as served to `gebr logs` and the
// HTTP log endpoint.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	Queue         string            `json:"queue,omitempty"`
	BatchID       string            `json:"batch_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in a ring and lets readers
// follow new ones by sequence number.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	start   int // index of the oldest event
	size    int
	lastSeq uint64
	// changed is closed and replaced on every Publish.
	changed chan struct{}
}

// NewStreamHub returns a hub holding up to capacity events (512 when
// capacity is not positive).
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{ring: make([]LogEvent, capacity), changed: make(chan struct{})}
}

// Publish stamps evt with the next sequence number and stores it, dropping
// the oldest event when the ring is full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.lastSeq++
	evt.Sequence = h.lastSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.size < len(h.ring) {
		h.ring[(h.start+h.size)%len(h.ring)] = evt
		h.size++
	} else {
		h.ring[h.start] = evt
		h.start = (h.start + 1) % len(h.ring)
	}
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()
}

// Fetch returns up to limit events newer than since along with the cursor to
// pass next time. With wait set it blocks until an event arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	for {
		h.mu.Lock()
		events := h.after(since, limit)
		last, changed := h.lastSeq, h.changed
		h.mu.Unlock()

		if len(events) > 0 {
			return events, events[len(events)-1].Sequence, nil
		}
		if err := ctx.Err(); err != nil || !wait {
			return nil, last, err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, last, ctx.Err()
		}
	}
}

// Tail returns the newest limit events (all of them when limit is not
// positive) and the current cursor.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]LogEvent, limit)
	for i := range out {
		out[i] = h.at(h.size - limit + i)
	}
	return out, h.lastSeq
}

// at returns the i-th oldest buffered event. Callers hold mu.
func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.start+i)%len(h.ring)]
}

// after collects events with Sequence > seq. Callers hold mu.
func (h *StreamHub) after(seq uint64, limit int) []LogEvent {
	if limit <= 0 || limit > len(h.ring) {
		limit = len(h.ring)
	}
	var out []LogEvent
	for i := 0; i < h.size && len(out) < limit; i++ {
		if evt := h.at(i); evt.Sequence > seq {
			out = append(out, evt)
		}
	}
	return out
}

type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(eventFromRecord(record, h.attrs))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &streamHandler{
		next:  h.next.WithAttrs(attrs),
		hub:   h.hub,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

func eventFromRecord(record slog.Record, preAttrs []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	apply := func(attr slog.Attr) bool {
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			return true
		}
		value := attrString(attr.Value)
		switch key {
		case FieldComponent:
			event.Component = value
		case FieldJobID:
			event.JobID = value
		case FieldQueue:
			event.Queue = value
		case FieldBatchID:
			event.BatchID = value
		case FieldCorrelationID:
			event.CorrelationID = value
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[key] = value
		}
		return true
	}
	for _, attr := range preAttrs {
		apply(attr)
	}
	record.Attrs(apply)
	return event
}
