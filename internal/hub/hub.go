// Package hub owns the lifecycle of the server's duplex sessions: any number
// of browser observers and at most one agent.
package hub

import (
	"sync"
	"time"

	"github.com/fileferry/fileferry/pkg/protocol"
)

// sendQueueSize bounds each session's outbound queue. A session that falls
// this far behind starts losing broadcasts rather than stalling other
// sessions.
const sendQueueSize = 64

// sessionConn holds one live duplex session and its outbound queue. The
// queue itself is never closed: removal closes quit, and enqueue treats a
// quit session as a full one, so a broadcast racing a disconnect drops the
// envelope instead of hitting a closed channel.
type sessionConn struct {
	send       chan protocol.Envelope
	quit       chan struct{}
	writerDone chan struct{}
}

// Hub tracks connected sessions in a thread-safe manner. Each session gets a
// dedicated writer goroutine fed by a buffered channel, so a slow or dead
// session never blocks a broadcast. A failed send stops the writer; the
// session is pruned on removal and the error is not propagated.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*sessionConn
	agent     *sessionConn
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		observers: make(map[string]*sessionConn),
	}
}

func newSessionConn(send func(env protocol.Envelope) error) *sessionConn {
	sc := &sessionConn{
		send:       make(chan protocol.Envelope, sendQueueSize),
		quit:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go func() {
		defer close(sc.writerDone)
		for {
			select {
			case <-sc.quit:
				return
			case env := <-sc.send:
				if err := send(env); err != nil {
					// Session is assumed gone; stop consuming.
					return
				}
			}
		}
	}()
	return sc
}

// drain signals the writer to stop and waits briefly for it to finish.
func (sc *sessionConn) drain() {
	close(sc.quit)
	select {
	case <-sc.writerDone:
	case <-time.After(time.Second):
	}
}

// enqueue offers an envelope to the session without blocking. Envelopes for
// a full or removed session are dropped.
func (sc *sessionConn) enqueue(env protocol.Envelope) {
	select {
	case <-sc.quit:
		return
	default:
	}
	select {
	case sc.send <- env:
	default:
	}
}

// AddObserver registers a browser-observer session. The send function is
// called from the session's writer goroutine. The returned remove function
// unregisters the session and stops its writer; it is safe to call once.
func (h *Hub) AddObserver(connID string, send func(env protocol.Envelope) error) (remove func()) {
	sc := newSessionConn(send)

	h.mu.Lock()
	h.observers[connID] = sc
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		cur, ok := h.observers[connID]
		if !ok || cur != sc {
			h.mu.Unlock()
			return
		}
		delete(h.observers, connID)
		h.mu.Unlock()
		sc.drain()
	}
}

// SetAgent registers the agent session, replacing any previous one
// (last-write-wins: a reconnecting agent supersedes a stale session whose
// close may not have been observed yet). The returned remove function
// unregisters the session only if it is still the active one.
func (h *Hub) SetAgent(connID string, send func(env protocol.Envelope) error) (remove func()) {
	sc := newSessionConn(send)

	h.mu.Lock()
	old := h.agent
	h.agent = sc
	h.mu.Unlock()

	if old != nil {
		old.drain()
	}

	return func() {
		h.mu.Lock()
		if h.agent != sc {
			h.mu.Unlock()
			return
		}
		h.agent = nil
		h.mu.Unlock()
		sc.drain()
	}
}

// AgentConnected reports whether an agent session is currently registered.
func (h *Hub) AgentConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agent != nil
}

// SendToAgent queues an envelope for the agent session. Returns false when
// no agent is connected.
func (h *Hub) SendToAgent(env protocol.Envelope) bool {
	h.mu.RLock()
	sc := h.agent
	h.mu.RUnlock()
	if sc == nil {
		return false
	}
	sc.enqueue(env)
	return true
}

// Broadcast queues an envelope for every observer session. Non-blocking:
// sessions with full queues miss the envelope rather than delaying others.
func (h *Hub) Broadcast(env protocol.Envelope) {
	h.mu.RLock()
	targets := make([]*sessionConn, 0, len(h.observers))
	for _, sc := range h.observers {
		targets = append(targets, sc)
	}
	h.mu.RUnlock()

	for _, sc := range targets {
		sc.enqueue(env)
	}
}

// ObserverCount returns the number of registered observer sessions.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}
