package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"gebr/internal/job"
)

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub()
	a := NewClient("a", "host-a")
	b := NewClient("b", "host-b")
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast(OutputMessage("job-1", "hello", "r1"))
	hub.Broadcast(StatusMessage("job-1", "finished", "", "r1"))

	for _, c := range []*Client{a, b} {
		msgs := c.TryDrain(0)
		if len(msgs) != 2 {
			t.Fatalf("client %s: expected 2 messages, got %d", c.ID, len(msgs))
		}
		if msgs[0].Kind != KindOutput || msgs[0].Chunk != "hello" || msgs[1].Status != "finished" {
			t.Fatalf("client %s: unexpected messages %+v", c.ID, msgs)
		}
	}
}

func TestClientQueueIsUnbounded(t *testing.T) {
	c := NewClient("c", "")
	for i := range 10000 {
		c.Send(OutputMessage("j", string(rune('a'+i%26)), ""))
	}
	if c.Pending() != 10000 {
		t.Fatalf("expected every message retained, got %d", c.Pending())
	}
	first := c.TryDrain(3)
	if len(first) != 3 || first[0].Chunk != "a" || first[2].Chunk != "c" {
		t.Fatalf("unexpected head %+v", first)
	}
	if c.Pending() != 9997 {
		t.Fatalf("expected 9997 remaining, got %d", c.Pending())
	}
}

func TestDrainWaitsForMessages(t *testing.T) {
	c := NewClient("c", "")
	done := make(chan []Message, 1)
	go func() {
		msgs, _ := c.Drain(context.Background(), 0)
		done <- msgs
	}()
	time.Sleep(20 * time.Millisecond)
	c.Send(JobMessage(job.Record{ID: "j1", Status: "queued"}))

	select {
	case msgs := <-done:
		if len(msgs) != 1 || msgs[0].Kind != KindJob || msgs[0].Job.ID != "j1" {
			t.Fatalf("unexpected messages %+v", msgs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not wake")
	}
}

func TestDrainHonoursContextAndClose(t *testing.T) {
	c := NewClient("c", "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Drain(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	c.Send(OutputMessage("j", "x", ""))
	c.Close()
	c.Send(OutputMessage("j", "dropped", ""))
	msgs, err := c.Drain(context.Background(), 0)
	if err != nil || len(msgs) != 1 || msgs[0].Chunk != "x" {
		t.Fatalf("queued messages should drain after close: %+v %v", msgs, err)
	}
	if _, err := c.Drain(context.Background(), 0); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestHubRegistry(t *testing.T) {
	hub := NewHub()
	first := NewClient("x", "")
	hub.Register(first)
	second := NewClient("x", "")
	hub.Register(second)
	if hub.Count() != 1 {
		t.Fatalf("expected replacement, got %d clients", hub.Count())
	}
	first.Send(OutputMessage("j", "late", ""))
	if first.Pending() != 0 {
		t.Fatal("replaced client should be closed")
	}
	if got, ok := hub.Get("x"); !ok || got != second {
		t.Fatal("Get returned wrong client")
	}
	hub.Register(NewClient("a", ""))
	if clients := hub.Clients(); clients[0].ID != "a" || clients[1].ID != "x" {
		t.Fatalf("clients not ordered: %v", clients)
	}
	if !hub.Unregister("x") || hub.Unregister("x") {
		t.Fatal("unexpected Unregister result")
	}
	hub.CloseAll()
	if hub.Count() != 0 {
		t.Fatal("CloseAll should empty the hub")
	}
}
