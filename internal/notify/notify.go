// Package notify implements the observer surface the lifecycle services call
// after every repository mutation, so presentation layers can refresh their
// view. Calls are fire-and-forget: a listener can never fail a core operation.
package notify

import "github.com/cirrus-hq/cirrus/internal/core"

// Listener receives session change notifications. Implementations live in
// presentation layers (CLI output, IPC bridges) outside the core.
type Listener interface {
	SetSessions(sessions []core.Session)
	AddSession(session core.Session)
	DeleteSession(sessionID string)
}

// Hub fans notifications out to registered listeners. Safe to call with no
// listeners attached; listener panics are swallowed.
type Hub struct {
	listeners []Listener
}

// NewHub creates an empty notification hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers a listener. Not safe to call concurrently with
// notification delivery; listeners are registered once at startup.
func (h *Hub) Subscribe(l Listener) {
	h.listeners = append(h.listeners, l)
}

// SetSessions broadcasts the full updated session list.
func (h *Hub) SetSessions(sessions []core.Session) {
	for _, l := range h.listeners {
		safeCall(func() { l.SetSessions(sessions) })
	}
}

// AddSession broadcasts a newly created session.
func (h *Hub) AddSession(session core.Session) {
	for _, l := range h.listeners {
		safeCall(func() { l.AddSession(session) })
	}
}

// DeleteSession broadcasts a session removal.
func (h *Hub) DeleteSession(sessionID string) {
	for _, l := range h.listeners {
		safeCall(func() { l.DeleteSession(sessionID) })
	}
}

func safeCall(f func()) {
	defer func() {
		_ = recover()
	}()
	f()
}
