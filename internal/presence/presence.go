// Package presence tracks which users currently hold a live session.
// The map is the only shared in-memory resource in the system; every
// access goes through the registry's mutex.
package presence

import (
	"sync"

	"lichka/internal/models"
)

// Handle is the outbound event channel of a session. Channels are
// comparable, which is what makes conditional unregistration possible.
type Handle = chan models.ServerEvent

// Registry maps a userId to its single active session handle.
// Last connection wins: registering overwrites any previous handle.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Handle),
	}
}

// Register binds handle as the active session for userID, replacing any
// previous one. The previous handle (if any) is returned so the caller
// can decide what to do with the superseded session.
func (r *Registry) Register(userID string, handle Handle) (prev Handle, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced = r.sessions[userID]
	r.sessions[userID] = handle
	return prev, replaced
}

// Unregister removes the mapping for userID only if handle is still the
// registered one. A disconnect arriving after the same user reconnected
// must not evict the newer session. Reports whether a removal happened.
func (r *Registry) Unregister(userID string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current != handle {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Lookup returns the active handle for userID, if any.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[userID]
	return h, ok
}

// Online reports whether userID has an active session.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Handles returns a snapshot of all active session handles.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	return handles
}
