package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

// grants maps principal id to the child ids it may see.
type grants map[int64][]int64

func (g grants) Authorize(_ context.Context, principalID, childID int64) (bool, error) {
	if principalID < 0 {
		return false, errors.New("store down")
	}
	for _, id := range g[principalID] {
		if id == childID {
			return true, nil
		}
	}
	return false, nil
}

func testHub(g grants) *Hub {
	return NewHub(g, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, principalID int64) *Client {
	return &Client{
		hub:         hub,
		principalID: principalID,
		send:        make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := testHub(nil)

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := testHub(nil)
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastToChildFiltersByAccess(t *testing.T) {
	hub := testHub(grants{1: {10}, 2: {10, 20}, 3: {30}})

	parent := mockClient(hub, 1)
	coParent := mockClient(hub, 2)
	stranger := mockClient(hub, 3)
	for _, c := range []*Client{parent, coParent, stranger} {
		hub.Register(c)
	}

	hub.BroadcastToChild(10, NewMessage("ledger", "credited", 5, nil))

	if msg := receive(t, parent); msg.Type != "ledger_credited" || msg.ID != 5 {
		t.Errorf("parent got %+v", msg)
	}
	if msg := receive(t, coParent); msg.Type != "ledger_credited" {
		t.Errorf("co-parent got %+v", msg)
	}
	expectNothing(t, stranger)
}

func TestBroadcastToChildSkipsAuthorizerErrors(t *testing.T) {
	hub := testHub(grants{1: {10}})
	broken := mockClient(hub, -1)
	ok := mockClient(hub, 1)
	hub.Register(broken)
	hub.Register(ok)

	hub.BroadcastToChild(10, NewMessage("ledger", "debited", 1, nil))

	receive(t, ok)
	expectNothing(t, broken)
}

func TestPublish(t *testing.T) {
	hub := testHub(grants{1: {10}})
	c := mockClient(hub, 1)
	hub.Register(c)

	reviewer := int64(1)
	at := time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)
	hub.Publish(model.InstanceEvent{
		InstanceID: 42,
		NewState:   model.StateApproved,
		ChildID:    10,
		ReviewerID: &reviewer,
		Timestamp:  at,
	})

	msg := receive(t, c)
	if msg.Type != "quest_instance_approved" {
		t.Errorf("Type = %q, want %q", msg.Type, "quest_instance_approved")
	}
	if msg.ID != 42 {
		t.Errorf("ID = %d, want 42", msg.ID)
	}
	if msg.EventID == "" {
		t.Error("expected event id")
	}
	if got := msg.Extra["child_id"]; got != float64(10) {
		t.Errorf("child_id = %v, want 10", got)
	}
	if got := msg.Extra["reviewer_id"]; got != float64(1) {
		t.Errorf("reviewer_id = %v, want 1", got)
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := testHub(nil)
	// Should not panic
	hub.BroadcastToChild(1, NewMessage("quest_instance", "claimed", 1, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := testHub(grants{1: {10}})
	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		c.send <- []byte("filler")
	}

	// Should not block
	done := make(chan struct{})
	go func() {
		hub.BroadcastToChild(10, NewMessage("quest_instance", "claimed", 1, nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on full buffer")
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("quest_instance", "rejected", 42, map[string]any{"child_id": 7})
	if msg.Type != "quest_instance_rejected" {
		t.Errorf("Type = %q, want %q", msg.Type, "quest_instance_rejected")
	}
	if msg.Entity != "quest_instance" {
		t.Errorf("Entity = %q, want %q", msg.Entity, "quest_instance")
	}
	if msg.Action != "rejected" {
		t.Errorf("Action = %q, want %q", msg.Action, "rejected")
	}
	if msg.ID != 42 {
		t.Errorf("ID = %d, want 42", msg.ID)
	}
	if other := NewMessage("quest_instance", "rejected", 42, nil); other.EventID == msg.EventID {
		t.Error("expected distinct event ids")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := testHub(grants{0: {1}, 1: {1}, 2: {1}})
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := mockClient(hub, int64(n%3))
			hub.Register(c)
			hub.BroadcastToChild(1, NewMessage("quest_instance", "claimed", int64(n), nil))
			hub.Unregister(c)
		}(i)
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after concurrent ops, got %d", got)
	}
}
