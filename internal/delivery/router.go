// Package delivery implements the business logic between the session
// gateway and the store: sending, read receipts, typing relay and the
// read-path listings.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lichka/internal/content"
	"lichka/internal/models"
	"lichka/internal/presence"
	"lichka/internal/profile"
)

// Store is the persistence contract the router needs.
type Store interface {
	InsertMessage(message models.Message, conversationID string) error
	ListMessagesBetween(userID, otherID string) ([]models.Message, error)
	GetMessage(id string) (models.Message, error)
	MarkRead(readerID, counterpartID string, readAt time.Time) (int, error)
	DeleteMessageFor(id, userID string) (bool, error)
	ListConversations(userID string) ([]models.Conversation, error)
	CountUnread(readerID, counterpartID string) (int, error)
	CountUnreadTotal(readerID string) (int, error)
}

// Router serializes writes per participant pair so delivery order always
// matches persistence order and the conversation aggregate never regresses.
type Router struct {
	store    Store
	presence *presence.Registry
	profiles profile.Directory
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
}

func NewRouter(store Store, registry *presence.Registry, profiles profile.Directory, log *slog.Logger) *Router {
	return &Router{
		store:     store,
		presence:  registry,
		profiles:  profiles,
		log:       log,
		now:       time.Now,
		pairLocks: make(map[string]*sync.Mutex),
	}
}

// pairLock returns the mutex serializing writes for an unordered pair.
// Locks are never reclaimed; the set is bounded by the number of pairs
// that ever exchanged a message.
func (r *Router) pairLock(a, b string) *sync.Mutex {
	ids := []string{a, b}
	sort.Strings(ids)
	key := ids[0] + "|" + ids[1]

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.pairLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.pairLocks[key] = l
	}
	return l
}

// push delivers an event to a session without blocking. A full buffer
// means the client is too slow to matter; the event is dropped because
// everything durable can be refetched over the read path.
func push(h presence.Handle, ev models.ServerEvent) {
	select {
	case h <- ev:
	default:
	}
}

// Send validates and persists a message, upserts the conversation for
// the pair, then pushes new-message to the receiver's session (if any)
// and message-sent back to the sender with tempID echoed. The
// confirmation targets origin, the session that issued the send, so a
// request from a superseded connection is confirmed on that connection
// and not on the user's newer session. A nil origin (the REST path)
// falls back to whatever session is currently registered. The message
// is durable before any push is attempted.
func (r *Router) Send(ctx context.Context, senderID, receiverID, rawContent, tempID string, origin presence.Handle) (models.Message, error) {
	if receiverID == "" {
		return models.Message{}, fmt.Errorf("%w: receiver is required", models.ErrValidation)
	}
	if receiverID == senderID {
		return models.Message{}, fmt.Errorf("%w: cannot send message to yourself", models.ErrValidation)
	}

	clean, err := content.ValidateMessage(rawContent)
	if err != nil {
		return models.Message{}, err
	}

	message := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    clean,
		CreatedAt:  r.now(),
	}

	lock := r.pairLock(senderID, receiverID)
	lock.Lock()
	err = r.store.InsertMessage(message, uuid.NewString())
	lock.Unlock()
	if err != nil {
		r.log.Error("failed to persist message", "sender_id", senderID, "receiver_id", receiverID, "error", err)
		return models.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	wire := r.enrich(ctx, message)

	if receiver, online := r.presence.Lookup(receiverID); online {
		push(receiver, models.ServerEvent{Type: models.ServerEventNewMessage, Message: &wire})
	}

	confirmed := wire
	confirmed.TempID = tempID
	target := origin
	if target == nil {
		target, _ = r.presence.Lookup(senderID)
	}
	if target != nil {
		push(target, models.ServerEvent{Type: models.ServerEventMessageSent, Message: &confirmed})
	}

	message.TempID = tempID
	return message, nil
}

// MarkRead flips every unread message from counterpartID to readerID and
// notifies the counterpart if anything actually changed. Safe to repeat.
func (r *Router) MarkRead(ctx context.Context, readerID, counterpartID string) (int, error) {
	lock := r.pairLock(readerID, counterpartID)
	lock.Lock()
	marked, err := r.store.MarkRead(readerID, counterpartID, r.now())
	lock.Unlock()
	if err != nil {
		r.log.Error("failed to mark messages read", "reader_id", readerID, "counterpart_id", counterpartID, "error", err)
		return 0, fmt.Errorf("failed to mark messages as read: %w", err)
	}

	if marked > 0 {
		if counterpart, online := r.presence.Lookup(counterpartID); online {
			push(counterpart, models.ServerEvent{Type: models.ServerEventMessagesRead, ReadBy: readerID})
		}
	}
	return marked, nil
}

// Typing relays a typing indicator to toID's session. Stateless: nothing
// is persisted and the event is dropped if the receiver is offline.
func (r *Router) Typing(fromID, toID string, stopped bool) {
	h, online := r.presence.Lookup(toID)
	if !online {
		return
	}
	ev := models.ServerEvent{Type: models.ServerEventUserTyping, UserID: fromID}
	if stopped {
		ev.Type = models.ServerEventUserStopTyping
	}
	push(h, ev)
}

// ListConversations returns the requester's inbox: each conversation
// with the counterpart's profile, the unread count from them, and the
// last message if it still exists, newest activity first.
func (r *Router) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	conversations, err := r.store.ListConversations(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		otherID := conv.Other(userID)

		unread, err := r.store.CountUnread(userID, otherID)
		if err != nil {
			return nil, fmt.Errorf("failed to count unread: %w", err)
		}

		summary := models.ConversationSummary{
			ID:            conv.ID,
			Participant:   profile.LookupOrPlaceholder(ctx, r.profiles, otherID),
			LastMessageAt: conv.LastMessageAt,
			UnreadCount:   unread,
		}

		// lastMessage is best effort: after a hard delete the pointer
		// dangles until the next send and the preview is simply absent.
		if conv.LastMessageID != "" {
			if last, err := r.store.GetMessage(conv.LastMessageID); err == nil {
				summary.LastMessage = &last
			}
		}

		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}

// ListMessages returns the history between the requester and otherID in
// conversation order, with participant profiles attached.
func (r *Router) ListMessages(ctx context.Context, userID, otherID string) ([]models.WireMessage, error) {
	messages, err := r.store.ListMessagesBetween(userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	self := profile.LookupOrPlaceholder(ctx, r.profiles, userID)
	other := profile.LookupOrPlaceholder(ctx, r.profiles, otherID)
	profiles := map[string]*models.Profile{userID: &self, otherID: &other}

	wire := make([]models.WireMessage, len(messages))
	for i, m := range messages {
		wire[i] = models.WireMessage{
			Message:  m,
			Sender:   profiles[m.SenderID],
			Receiver: profiles[m.ReceiverID],
		}
	}
	return wire, nil
}

// DeleteMessage soft-deletes a message for the requester's side; when
// both sides have deleted it the record is purged. Only the sender or
// receiver may delete.
func (r *Router) DeleteMessage(ctx context.Context, messageID, userID string) error {
	hard, err := r.store.DeleteMessageFor(messageID, userID)
	if err != nil {
		return err
	}
	if hard {
		r.log.Info("message purged", "message_id", messageID)
	}
	return nil
}

// UnreadCount returns the total number of unread messages addressed to userID.
func (r *Router) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := r.store.CountUnreadTotal(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// enrich attaches participant profiles to a message for the wire.
func (r *Router) enrich(ctx context.Context, m models.Message) models.WireMessage {
	sender := profile.LookupOrPlaceholder(ctx, r.profiles, m.SenderID)
	receiver := profile.LookupOrPlaceholder(ctx, r.profiles, m.ReceiverID)
	return models.WireMessage{Message: m, Sender: &sender, Receiver: &receiver}
}
