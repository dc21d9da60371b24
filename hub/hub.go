// Package hub tracks per-session output subscribers and fans broadcast
// events out to them.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event is one named broadcast payload.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Sink is an output channel for one connected viewer. Send must be safe
// to call from the broadcasting goroutine; a returned error marks the
// sink dead and removes it from the hub.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close()
}

type subscription struct {
	id        string
	sessionID string
	sink      Sink
}

// Hub owns the subscription set. Sessions with no subscribers hold no
// entry at all; broadcasting into an empty room is a silent no-op.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*subscription]struct{}
}

func New() *Hub {
	return &Hub{sessions: make(map[string]map[*subscription]struct{})}
}

// Subscribe registers a sink for a session and returns an unsubscribe
// function. Unsubscribing twice is harmless.
func (h *Hub) Subscribe(sessionID string, sink Sink) func() {
	sub := &subscription{
		id:        uuid.Must(uuid.NewV7()).String(),
		sessionID: sessionID,
		sink:      sink,
	}

	h.mu.Lock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	slog.Debug("subscriber added", "sessionId", sessionID, "subId", sub.id)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sub) })
	}
}

// Broadcast delivers an event to every live sink of the session, in call
// order per sink. A failed sink is removed without aborting delivery to
// the others.
func (h *Hub) Broadcast(ctx context.Context, sessionID, eventType string, payload any) {
	h.mu.RLock()
	set := h.sessions[sessionID]
	subs := make([]*subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	ev := Event{Type: eventType, Payload: payload}
	for _, sub := range subs {
		if err := sub.sink.Send(ctx, ev); err != nil {
			slog.Debug("removing failed subscriber", "sessionId", sessionID, "subId", sub.id, "error", err)
			h.remove(sub)
		}
	}
}

// HasSubscribers reports whether any sink is registered for the session.
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// SubscriberCount returns the number of live sinks for the session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	set, ok := h.sessions[sub.sessionID]
	if ok {
		if _, present := set[sub]; !present {
			ok = false
		}
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sub.sessionID)
		}
	}
	h.mu.Unlock()

	if ok {
		sub.sink.Close()
		slog.Debug("subscriber removed", "sessionId", sub.sessionID, "subId", sub.id)
	}
}
