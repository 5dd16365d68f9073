// Package registry holds the server's authoritative view of each file's
// transfer status and rebroadcasts every change to observer sessions.
package registry

import (
	"sync"

	"github.com/fileferry/fileferry/internal/metrics"
	"github.com/fileferry/fileferry/pkg/protocol"
)

// Broadcaster delivers a status event to every connected observer session.
type Broadcaster interface {
	Broadcast(env protocol.Envelope)
}

// Registry is an in-memory file-status map. Mutation is mutex-serialized
// because agent events and the server's optimistic updates can race for the
// same file key; last write wins. State is not persisted: it mirrors live
// agent activity and resets with the server.
type Registry struct {
	mu       sync.RWMutex
	statuses map[string]protocol.Status
	bc       Broadcaster
}

// New creates an empty registry that broadcasts changes through bc.
func New(bc Broadcaster) *Registry {
	return &Registry{
		statuses: make(map[string]protocol.Status),
		bc:       bc,
	}
}

// Set records the status for a file and broadcasts a status_update to all
// observers. The write is visible to Get and All before Set returns. The
// broadcast happens under the same lock as the map write, so observers see
// events for a file in map-write order; Broadcast only queues per session
// and never blocks, so holding the lock across it is cheap.
func (r *Registry) Set(file string, status protocol.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[file] = status

	metrics.RecordStatusEvent(string(status))

	env, err := protocol.NewEnvelope(protocol.TypeStatusUpdate, protocol.NewMsgID(), protocol.StatusUpdate{
		File:   file,
		Status: status,
	})
	if err != nil {
		return
	}
	env.From = "server"
	r.bc.Broadcast(env)
}

// Get returns the status for a file. Files never explicitly tracked read as
// pending.
func (r *Registry) Get(file string) protocol.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.statuses[file]; ok {
		return s
	}
	return protocol.StatusPending
}

// All returns a snapshot of every tracked file's status.
func (r *Registry) All() map[string]protocol.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]protocol.Status, len(r.statuses))
	for f, s := range r.statuses {
		out[f] = s
	}
	return out
}

// Forget drops a file from the registry, typically after catalog deletion.
func (r *Registry) Forget(file string) {
	r.mu.Lock()
	delete(r.statuses, file)
	r.mu.Unlock()
}
