package presence

import (
	"testing"

	"lichka/internal/models"
)

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()

	h := make(Handle, 1)
	prev, replaced := r.Register("u1", h)
	if replaced || prev != nil {
		t.Error("first register must not report a replacement")
	}

	got, ok := r.Lookup("u1")
	if !ok || got != h {
		t.Error("Lookup did not return the registered handle")
	}

	if !r.Online("u1") {
		t.Error("u1 should be online")
	}
	if r.Online("u2") {
		t.Error("u2 should be offline")
	}
}

func TestRegistry_LastConnectionWins(t *testing.T) {
	r := NewRegistry()

	h1 := make(Handle, 1)
	h2 := make(Handle, 1)
	r.Register("u1", h1)

	prev, replaced := r.Register("u1", h2)
	if !replaced || prev != h1 {
		t.Error("second register must replace and return the old handle")
	}

	got, _ := r.Lookup("u1")
	if got != h2 {
		t.Error("lookup must return the newest handle")
	}
}

// A disconnect of a stale session arriving after the user reconnected
// must not evict the new session.
func TestRegistry_StaleUnregister(t *testing.T) {
	r := NewRegistry()

	h1 := make(Handle, 1)
	h2 := make(Handle, 1)
	r.Register("u1", h1)
	r.Register("u1", h2)

	if r.Unregister("u1", h1) {
		t.Error("stale unregister must be a no-op")
	}

	got, ok := r.Lookup("u1")
	if !ok || got != h2 {
		t.Error("new session was evicted by a stale disconnect")
	}

	if !r.Unregister("u1", h2) {
		t.Error("unregistering the current handle must succeed")
	}
	if r.Online("u1") {
		t.Error("u1 should be offline after unregister")
	}
}

func TestRegistry_Handles(t *testing.T) {
	r := NewRegistry()

	r.Register("u1", make(Handle, 1))
	r.Register("u2", make(Handle, 1))

	handles := r.Handles()
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}

	// Snapshot must be usable for broadcast.
	for _, h := range handles {
		h <- models.ServerEvent{Type: models.ServerEventUserOnline, UserID: "u3"}
	}
}
