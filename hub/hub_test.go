package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type mockSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (s *mockSink) Send(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("write failed")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *mockSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *mockSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	h := New()
	a := &mockSink{}
	b := &mockSink{}
	h.Subscribe("sess-1", a)
	h.Subscribe("sess-1", b)

	h.Broadcast(context.Background(), "sess-1", "text_delta", map[string]string{"text": "hi"})

	for _, sink := range []*mockSink{a, b} {
		got := sink.received()
		if len(got) != 1 {
			t.Fatalf("expected 1 event, got %d", len(got))
		}
		if got[0].Type != "text_delta" {
			t.Errorf("expected text_delta, got %s", got[0].Type)
		}
	}
}

func TestHub_BroadcastOrderPerSink(t *testing.T) {
	h := New()
	s := &mockSink{}
	h.Subscribe("sess-1", s)

	for _, typ := range []string{"status", "text_delta", "result"} {
		h.Broadcast(context.Background(), "sess-1", typ, nil)
	}

	got := s.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != "status" || got[1].Type != "text_delta" || got[2].Type != "result" {
		t.Errorf("delivery order does not match broadcast order: %+v", got)
	}
}

func TestHub_BroadcastToEmptyRoom(t *testing.T) {
	h := New()
	// Must not panic or block.
	h.Broadcast(context.Background(), "nobody-home", "status", nil)
	if h.HasSubscribers("nobody-home") {
		t.Error("expected no subscribers")
	}
}

func TestHub_FailedSinkRemovedOthersUnaffected(t *testing.T) {
	h := New()
	bad := &mockSink{fail: true}
	good := &mockSink{}
	h.Subscribe("sess-1", bad)
	h.Subscribe("sess-1", good)

	h.Broadcast(context.Background(), "sess-1", "text_delta", nil)

	if !bad.isClosed() {
		t.Error("expected failed sink to be closed")
	}
	if h.SubscriberCount("sess-1") != 1 {
		t.Errorf("expected 1 remaining subscriber, got %d", h.SubscriberCount("sess-1"))
	}
	if len(good.received()) != 1 {
		t.Error("expected healthy sink to still receive the event")
	}

	// Subsequent broadcasts no longer attempt the removed sink.
	h.Broadcast(context.Background(), "sess-1", "result", nil)
	if len(good.received()) != 2 {
		t.Error("expected healthy sink to receive the second event")
	}
}

func TestHub_UnsubscribeReleasesEmptySet(t *testing.T) {
	h := New()
	s := &mockSink{}
	unsub := h.Subscribe("sess-1", s)

	if !h.HasSubscribers("sess-1") {
		t.Fatal("expected a subscriber")
	}

	unsub()
	unsub() // idempotent

	if h.HasSubscribers("sess-1") {
		t.Error("expected subscriber set to be released")
	}
	if !s.isClosed() {
		t.Error("expected sink to be closed on unsubscribe")
	}
	h.mu.RLock()
	_, dangling := h.sessions["sess-1"]
	h.mu.RUnlock()
	if dangling {
		t.Error("expected empty per-session set to be removed entirely")
	}
}

func TestHub_SessionsIsolated(t *testing.T) {
	h := New()
	a := &mockSink{}
	b := &mockSink{}
	h.Subscribe("sess-1", a)
	h.Subscribe("sess-2", b)

	h.Broadcast(context.Background(), "sess-1", "text_delta", nil)

	if len(a.received()) != 1 {
		t.Error("expected event on sess-1 subscriber")
	}
	if len(b.received()) != 0 {
		t.Error("expected no event on sess-2 subscriber")
	}
}
