package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBMessage is the persisted form of a direct message. Messages live in
// a nested bucket per participant pair; the key is the big-endian
// creation timestamp in nanoseconds followed by the message id, so a
// cursor walks the pair's history in chronological order and two
// messages created in the same nanosecond cannot collide.
type DBMessage struct {
	ID                string `msgpack:"id"`
	SenderID          string `msgpack:"senderId"`
	ReceiverID        string `msgpack:"receiverId"`
	Content           string `msgpack:"content"`
	CreatedAt         int64  `msgpack:"createdAt"` // Unix nanoseconds
	Read              bool   `msgpack:"read"`
	ReadAt            int64  `msgpack:"readAt"` // Unix nanoseconds, 0 if unread
	DeletedBySender   bool   `msgpack:"deletedBySender"`
	DeletedByReceiver bool   `msgpack:"deletedByReceiver"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.CreatedAt))
	return append(key, m.ID...)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBConversation is keyed by the canonical pair key so each unordered
// participant pair has at most one record.
type DBConversation struct {
	ID            string `msgpack:"id"`
	UserA         string `msgpack:"userA"` // sorted: UserA < UserB
	UserB         string `msgpack:"userB"`
	LastMessageID string `msgpack:"lastMessageId"`
	LastMessageAt int64  `msgpack:"lastMessageAt"` // Unix nanoseconds
	CreatedAt     int64  `msgpack:"createdAt"`     // Unix nanoseconds
}

func (c *DBConversation) Key() []byte {
	return []byte(pairKey(c.UserA, c.UserB))
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

// DBMessageRef locates a message from its id alone: the pair bucket it
// lives in and its key there. Needed by by-id lookups and deletes.
type DBMessageRef struct {
	ID      string `msgpack:"id"`
	PairKey string `msgpack:"pairKey"`
	MsgKey  []byte `msgpack:"msgKey"`
}

func (r *DBMessageRef) Key() []byte {
	return []byte(r.ID)
}

func (r *DBMessageRef) MarshalBinary() (data []byte, err error) {
	type alias DBMessageRef
	return msgpack.Marshal((*alias)(r))
}

func (r *DBMessageRef) UnmarshalBinary(data []byte) error {
	type alias DBMessageRef
	return msgpack.Unmarshal(data, (*alias)(r))
}
