package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

// Profile is the public part of a user as served by the user service.
// Profiles are never stored here; they are fetched (or substituted with
// a placeholder) at read time.
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// PlaceholderProfile is used when the user service cannot resolve an id.
// Callers always get a renderable profile, just without a username.
func PlaceholderProfile(id string) Profile {
	return Profile{ID: id}
}

// Message is the durable record of a single direct message.
// Content is immutable after creation; only the read and delete flags change.
type Message struct {
	ID                string     `json:"id"`
	SenderID          string     `json:"senderId"`
	ReceiverID        string     `json:"receiverId"`
	Content           string     `json:"content"`
	CreatedAt         time.Time  `json:"createdAt"`
	Read              bool       `json:"read"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	DeletedBySender   bool       `json:"-"`
	DeletedByReceiver bool       `json:"-"`

	// TempID is echoed back to the sender so the client can promote its
	// optimistic entry. Never persisted.
	TempID string `json:"tempId,omitempty"`
}

// WireMessage is a Message enriched with participant profiles for the wire.
// Internally everything is ids; profiles are attached once at the boundary.
type WireMessage struct {
	Message
	Sender   *Profile `json:"sender,omitempty"`
	Receiver *Profile `json:"receiver,omitempty"`
}

// Conversation aggregates the message history between exactly two users.
// Participants are stored in canonical (sorted) order so each unordered
// pair maps to exactly one record.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  [2]string `json:"participants"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// ConversationSummary is what the inbox renders: the conversation, the
// counterpart's profile and the number of unread messages from them.
// LastMessage may be nil if the referenced message was hard-deleted.
type ConversationSummary struct {
	ID            string    `json:"id"`
	Participant   Profile   `json:"participant"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

type ClientEventType string

const (
	ClientEventSendMessage ClientEventType = "send-message"
	ClientEventTyping      ClientEventType = "typing"
	ClientEventStopTyping  ClientEventType = "stop-typing"
	ClientEventMarkRead    ClientEventType = "mark-read"
)

// ClientEvent is a message sent from the client over the duplex channel.
type ClientEvent struct {
	Type       ClientEventType `json:"type"`
	ReceiverID string          `json:"receiverId,omitempty"`
	SenderID   string          `json:"senderId,omitempty"`
	Content    string          `json:"content,omitempty"`
	TempID     string          `json:"tempId,omitempty"`
}

type ServerEventType string

const (
	ServerEventMessageSent    ServerEventType = "message-sent"
	ServerEventNewMessage     ServerEventType = "new-message"
	ServerEventUserTyping     ServerEventType = "user-typing"
	ServerEventUserStopTyping ServerEventType = "user-stop-typing"
	ServerEventMessagesRead   ServerEventType = "messages-read"
	ServerEventUserOnline     ServerEventType = "user-online"
	ServerEventUserOffline    ServerEventType = "user-offline"
	ServerEventMessageError   ServerEventType = "message-error"
)

// ServerEvent is pushed to clients over the duplex channel.
type ServerEvent struct {
	Type    ServerEventType `json:"type"`
	UserID  string          `json:"userId,omitempty"`
	ReadBy  string          `json:"readBy,omitempty"`
	Message *WireMessage    `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}
