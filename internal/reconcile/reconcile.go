// Package reconcile implements the client-side merge protocol between
// optimistically rendered messages and the durable records the server
// confirms. It is presentation-agnostic: the List is the rendered
// message list of one open conversation, whatever draws it.
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lichka/internal/models"
)

// Entry is one rendered message. An optimistic entry has a TempID and
// no ID; promotion attaches the server id in place.
type Entry struct {
	ID       string
	TempID   string
	SenderID string
	Content  string
	SentAt   time.Time
}

// Confirmed reports whether the entry carries a server-assigned id.
func (e Entry) Confirmed() bool {
	return e.ID != ""
}

// Outcome describes what Apply did with an incoming message.
type Outcome int

const (
	// Duplicate: an entry with the same server id was already rendered.
	Duplicate Outcome = iota
	// Promoted: an optimistic entry gained the server id in place.
	Promoted
	// Appended: the message had no local counterpart and was added.
	Appended
)

// List is the rendered message list for the currently open conversation.
// Not safe for concurrent use; a client session drives it from one loop.
type List struct {
	selfID  string
	entries []Entry
	now     func() time.Time
}

func NewList(selfID string) *List {
	return &List{selfID: selfID, now: time.Now}
}

// PrepareSend synthesizes an optimistic entry for a local send intent,
// renders it at the end of the list and returns it. The caller issues
// the send request carrying the entry's TempID.
func (l *List) PrepareSend(content string) Entry {
	entry := Entry{
		TempID:   fmt.Sprintf("temp_%d_%s", l.now().UnixMilli(), uuid.NewString()[:8]),
		SenderID: l.selfID,
		Content:  content,
		SentAt:   l.now(),
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Apply merges a confirmed server message into the list:
//
//  1. an entry already carrying the message's id means a duplicate
//     delivery; nothing changes;
//  2. an optimistic entry with the exact tempId is promoted in place;
//  3. failing that, unconfirmed entries are scanned newest-first for a
//     matching sender whose content equals, prefixes or contains the
//     incoming content, and the first hit is promoted;
//  4. otherwise the message is appended (the normal path for incoming
//     messages from the peer, which never have an optimistic twin).
//
// The fallback trades a small misattribution risk for robustness when a
// transport cannot carry tempId end to end.
func (l *List) Apply(msg models.Message) Outcome {
	if msg.ID != "" {
		for _, e := range l.entries {
			if e.ID == msg.ID {
				return Duplicate
			}
		}
	}

	if msg.TempID != "" {
		for i := range l.entries {
			if !l.entries[i].Confirmed() && l.entries[i].TempID == msg.TempID {
				l.promote(i, msg)
				return Promoted
			}
		}
	}

	content := strings.TrimSpace(msg.Content)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Confirmed() || e.SenderID != msg.SenderID {
			continue
		}
		rendered := strings.TrimSpace(e.Content)
		if rendered == "" {
			continue
		}
		if rendered == content || strings.Contains(content, rendered) || strings.Contains(rendered, content) {
			l.promote(i, msg)
			return Promoted
		}
	}

	l.entries = append(l.entries, Entry{
		ID:       msg.ID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
		SentAt:   msg.CreatedAt,
	})
	return Appended
}

// promote attaches the server identity to the entry at i, keeping its
// position and replacing the local timestamp with the durable one.
func (l *List) promote(i int, msg models.Message) {
	l.entries[i].ID = msg.ID
	l.entries[i].TempID = ""
	if !msg.CreatedAt.IsZero() {
		l.entries[i].SentAt = msg.CreatedAt
	}
}

// Entries returns the rendered list in order.
func (l *List) Entries() []Entry {
	return l.entries
}

// Len returns the number of rendered entries.
func (l *List) Len() int {
	return len(l.entries)
}
