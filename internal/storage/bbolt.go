package storage

import (
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"lichka/internal/models"
)

var (
	bucketMessages      = []byte("messages")
	bucketMessageIndex  = []byte("message_index")
	bucketConversations = []byte("conversations")
)

// pairKey is the canonical identifier for an unordered participant pair.
func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessageIndex); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func toDBMessage(m models.Message) *DBMessage {
	db := &DBMessage{
		ID:                m.ID,
		SenderID:          m.SenderID,
		ReceiverID:        m.ReceiverID,
		Content:           m.Content,
		CreatedAt:         m.CreatedAt.UnixNano(),
		Read:              m.Read,
		DeletedBySender:   m.DeletedBySender,
		DeletedByReceiver: m.DeletedByReceiver,
	}
	if m.ReadAt != nil {
		db.ReadAt = m.ReadAt.UnixNano()
	}
	return db
}

func fromDBMessage(db *DBMessage) models.Message {
	m := models.Message{
		ID:                db.ID,
		SenderID:          db.SenderID,
		ReceiverID:        db.ReceiverID,
		Content:           db.Content,
		CreatedAt:         time.Unix(0, db.CreatedAt),
		Read:              db.Read,
		DeletedBySender:   db.DeletedBySender,
		DeletedByReceiver: db.DeletedByReceiver,
	}
	if db.ReadAt != 0 {
		t := time.Unix(0, db.ReadAt)
		m.ReadAt = &t
	}
	return m
}

func fromDBConversation(db *DBConversation) models.Conversation {
	return models.Conversation{
		ID:            db.ID,
		Participants:  [2]string{db.UserA, db.UserB},
		LastMessageID: db.LastMessageID,
		LastMessageAt: time.Unix(0, db.LastMessageAt),
		CreatedAt:     time.Unix(0, db.CreatedAt),
	}
}

// InsertMessage persists a message and upserts the conversation for its
// participant pair in a single transaction. The conversation is created
// lazily on the first message between the pair; lastMessage advances
// only forward in time.
func (s *BboltStorage) InsertMessage(message models.Message, conversationID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		pk := pairKey(message.SenderID, message.ReceiverID)

		dbMessage := toDBMessage(message)
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		pairBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(pk))
		if err != nil {
			return fmt.Errorf("failed to create pair bucket: %w", err)
		}
		if err := pairBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		ref := &DBMessageRef{ID: message.ID, PairKey: pk, MsgKey: dbMessage.Key()}
		refData, err := ref.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketMessageIndex).Put(ref.Key(), refData); err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}

		// Upsert conversation.
		convBucket := tx.Bucket(bucketConversations)
		var dbConv DBConversation
		if existing := convBucket.Get([]byte(pk)); existing != nil {
			if err := dbConv.UnmarshalBinary(existing); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}
		} else {
			ids := []string{message.SenderID, message.ReceiverID}
			sort.Strings(ids)
			dbConv = DBConversation{
				ID:        conversationID,
				UserA:     ids[0],
				UserB:     ids[1],
				CreatedAt: dbMessage.CreatedAt,
			}
		}

		if dbMessage.CreatedAt >= dbConv.LastMessageAt {
			dbConv.LastMessageID = message.ID
			dbConv.LastMessageAt = dbMessage.CreatedAt
		}

		convData, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return convBucket.Put(dbConv.Key(), convData)
	})
}

// ListMessagesBetween returns the message history between two users in
// chronological order, excluding messages soft-deleted by the requesting
// side. The other side's delete flags do not hide anything from the requester.
func (s *BboltStorage) ListMessagesBetween(userID, otherID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		pairBucket := tx.Bucket(bucketMessages).Bucket([]byte(pairKey(userID, otherID)))
		if pairBucket == nil {
			return nil // no history yet
		}
		return pairBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.SenderID == userID && dbMsg.DeletedBySender {
				return nil
			}
			if dbMsg.ReceiverID == userID && dbMsg.DeletedByReceiver {
				return nil
			}
			messages = append(messages, fromDBMessage(&dbMsg))
			return nil
		})
	})
	return messages, err
}

// GetMessage returns a message by id regardless of delete flags.
func (s *BboltStorage) GetMessage(id string) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, _, err := getByID(tx, id)
		if err != nil {
			return err
		}
		message = fromDBMessage(dbMsg)
		return nil
	})
	return message, err
}

func getByID(tx *bbolt.Tx, id string) (*DBMessage, *DBMessageRef, error) {
	refData := tx.Bucket(bucketMessageIndex).Get([]byte(id))
	if refData == nil {
		return nil, nil, models.ErrNotFound
	}
	var ref DBMessageRef
	if err := ref.UnmarshalBinary(refData); err != nil {
		return nil, nil, err
	}
	pairBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.PairKey))
	if pairBucket == nil {
		return nil, nil, models.ErrNotFound
	}
	data := pairBucket.Get(ref.MsgKey)
	if data == nil {
		return nil, nil, models.ErrNotFound
	}
	var dbMsg DBMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return nil, nil, err
	}
	return &dbMsg, &ref, nil
}

// MarkRead flips read/readAt on every unread message sent by counterpartID
// to readerID. Idempotent: a repeat call affects zero rows. Returns the
// number of messages transitioned.
func (s *BboltStorage) MarkRead(readerID, counterpartID string, readAt time.Time) (int, error) {
	marked := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pairBucket := tx.Bucket(bucketMessages).Bucket([]byte(pairKey(readerID, counterpartID)))
		if pairBucket == nil {
			return nil
		}

		c := pairBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.ReceiverID != readerID || dbMsg.SenderID != counterpartID || dbMsg.Read {
				continue
			}
			dbMsg.Read = true
			dbMsg.ReadAt = readAt.UnixNano()
			data, err := dbMsg.MarshalBinary()
			if err != nil {
				return err
			}
			if err := pairBucket.Put(k, data); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	return marked, err
}

// DeleteMessageFor marks a message deleted for the side userID is on.
// Once both sides have deleted it the message is removed for good.
// Returns ErrNotFound for unknown ids and ErrForbidden if userID is
// neither sender nor receiver. The conversation's lastMessage pointer is
// deliberately left alone even when it now references a purged message.
func (s *BboltStorage) DeleteMessageFor(id, userID string) (hardDeleted bool, err error) {
	err = s.db.Update(func(tx *bbolt.Tx) error {
		dbMsg, ref, err := getByID(tx, id)
		if err != nil {
			return err
		}

		switch userID {
		case dbMsg.SenderID:
			dbMsg.DeletedBySender = true
		case dbMsg.ReceiverID:
			dbMsg.DeletedByReceiver = true
		default:
			return models.ErrForbidden
		}

		pairBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.PairKey))

		if dbMsg.DeletedBySender && dbMsg.DeletedByReceiver {
			if err := pairBucket.Delete(ref.MsgKey); err != nil {
				return err
			}
			hardDeleted = true
			return tx.Bucket(bucketMessageIndex).Delete(ref.Key())
		}

		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return err
		}
		return pairBucket.Put(ref.MsgKey, data)
	})
	return hardDeleted, err
}

// ListConversations returns every conversation userID participates in,
// in storage order. Sorting for presentation is the caller's concern.
func (s *BboltStorage) ListConversations(userID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbConv.UserA != userID && dbConv.UserB != userID {
				return nil
			}
			conversations = append(conversations, fromDBConversation(&dbConv))
			return nil
		})
	})
	return conversations, err
}

// CountUnread counts unread messages sent by counterpartID to readerID.
func (s *BboltStorage) CountUnread(readerID, counterpartID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		pairBucket := tx.Bucket(bucketMessages).Bucket([]byte(pairKey(readerID, counterpartID)))
		if pairBucket == nil {
			return nil
		}
		return pairBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.ReceiverID == readerID && dbMsg.SenderID == counterpartID && !dbMsg.Read {
				count++
			}
			return nil
		})
	})
	return count, err
}

// CountUnreadTotal counts unread messages addressed to readerID across
// all conversations. One transaction, so a concurrent MarkRead cannot
// land between pairs and skew the total.
func (s *BboltStorage) CountUnreadTotal(readerID string) (int, error) {
	total := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbConv.UserA != readerID && dbConv.UserB != readerID {
				return nil
			}
			// Conversation keys are pair keys, so k names the pair's
			// message bucket directly.
			pairBucket := msgBucket.Bucket(k)
			if pairBucket == nil {
				return nil
			}
			return pairBucket.ForEach(func(_, mv []byte) error {
				var dbMsg DBMessage
				if err := dbMsg.UnmarshalBinary(mv); err != nil {
					return err
				}
				if dbMsg.ReceiverID == readerID && !dbMsg.Read {
					total++
				}
				return nil
			})
		})
	})
	return total, err
}
