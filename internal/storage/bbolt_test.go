package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lichka/internal/models"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := NewBboltStorage(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testMessage(id, sender, receiver, content string, at time.Time) models.Message {
	return models.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  at,
	}
}

func TestStorage(t *testing.T) {
	store := newTestStorage(t)
	base := time.Unix(1700000000, 0)

	t.Run("InsertAndList", func(t *testing.T) {
		if err := store.InsertMessage(testMessage("m1", "alice", "bob", "hello bob", base), "c1"); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
		if err := store.InsertMessage(testMessage("m2", "bob", "alice", "hi alice", base.Add(time.Second)), "c2"); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}

		messages, err := store.ListMessagesBetween("alice", "bob")
		if err != nil {
			t.Fatalf("ListMessagesBetween failed: %v", err)
		}
		if len(messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(messages))
		}
		if messages[0].ID != "m1" || messages[1].ID != "m2" {
			t.Errorf("messages out of order: %s, %s", messages[0].ID, messages[1].ID)
		}
	})

	t.Run("OnePairOneConversation", func(t *testing.T) {
		// Sends in both directions resolved to the same aggregate; the
		// second conversationID argument must have been ignored.
		aliceConvs, err := store.ListConversations("alice")
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}
		if len(aliceConvs) != 1 {
			t.Fatalf("expected 1 conversation for alice, got %d", len(aliceConvs))
		}
		if aliceConvs[0].ID != "c1" {
			t.Errorf("expected conversation c1, got %s", aliceConvs[0].ID)
		}

		bobConvs, err := store.ListConversations("bob")
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}
		if len(bobConvs) != 1 || bobConvs[0].ID != aliceConvs[0].ID {
			t.Errorf("bob should see the same conversation")
		}
	})

	t.Run("LastMessageAdvances", func(t *testing.T) {
		convs, err := store.ListConversations("alice")
		if err != nil {
			t.Fatal(err)
		}
		if convs[0].LastMessageID != "m2" {
			t.Errorf("expected lastMessage m2, got %s", convs[0].LastMessageID)
		}
		if got := convs[0].LastMessageAt; !got.Equal(base.Add(time.Second)) {
			t.Errorf("unexpected lastMessageAt: %v", got)
		}
	})

	t.Run("MarkReadIdempotent", func(t *testing.T) {
		readAt := base.Add(time.Minute)
		marked, err := store.MarkRead("bob", "alice", readAt)
		if err != nil {
			t.Fatalf("MarkRead failed: %v", err)
		}
		if marked != 1 {
			t.Errorf("expected 1 marked, got %d", marked)
		}

		marked, err = store.MarkRead("bob", "alice", readAt.Add(time.Minute))
		if err != nil {
			t.Fatalf("second MarkRead failed: %v", err)
		}
		if marked != 0 {
			t.Errorf("expected 0 marked on repeat, got %d", marked)
		}

		msg, err := store.GetMessage("m1")
		if err != nil {
			t.Fatal(err)
		}
		if !msg.Read || msg.ReadAt == nil || !msg.ReadAt.Equal(readAt) {
			t.Errorf("m1 not marked read correctly: %+v", msg)
		}
	})

	t.Run("UnreadCounts", func(t *testing.T) {
		n, err := store.CountUnread("alice", "bob")
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 unread for alice from bob, got %d", n)
		}

		total, err := store.CountUnreadTotal("alice")
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Errorf("expected 1 unread total, got %d", total)
		}

		total, err = store.CountUnreadTotal("bob")
		if err != nil {
			t.Fatal(err)
		}
		if total != 0 {
			t.Errorf("expected 0 unread for bob after mark-read, got %d", total)
		}
	})
}

func TestStorage_SoftDelete(t *testing.T) {
	store := newTestStorage(t)
	base := time.Unix(1700000000, 0)

	if err := store.InsertMessage(testMessage("m1", "alice", "bob", "secret", base), "c1"); err != nil {
		t.Fatal(err)
	}

	t.Run("Forbidden", func(t *testing.T) {
		if _, err := store.DeleteMessageFor("m1", "mallory"); err != models.ErrForbidden {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := store.DeleteMessageFor("nope", "alice"); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SenderSide", func(t *testing.T) {
		hard, err := store.DeleteMessageFor("m1", "alice")
		if err != nil {
			t.Fatalf("DeleteMessageFor failed: %v", err)
		}
		if hard {
			t.Error("single-side delete must not purge")
		}

		// Hidden from alice, still visible to bob.
		aliceView, err := store.ListMessagesBetween("alice", "bob")
		if err != nil {
			t.Fatal(err)
		}
		if len(aliceView) != 0 {
			t.Errorf("alice should not see her deleted message, got %d", len(aliceView))
		}

		bobView, err := store.ListMessagesBetween("bob", "alice")
		if err != nil {
			t.Fatal(err)
		}
		if len(bobView) != 1 {
			t.Errorf("bob should still see the message, got %d", len(bobView))
		}
	})

	t.Run("BothSidesPurges", func(t *testing.T) {
		hard, err := store.DeleteMessageFor("m1", "bob")
		if err != nil {
			t.Fatalf("DeleteMessageFor failed: %v", err)
		}
		if !hard {
			t.Error("both-side delete must purge")
		}

		if _, err := store.GetMessage("m1"); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound after purge, got %v", err)
		}

		// The conversation survives with a dangling lastMessage.
		convs, err := store.ListConversations("alice")
		if err != nil {
			t.Fatal(err)
		}
		if len(convs) != 1 {
			t.Fatalf("conversation must survive an emptied history, got %d", len(convs))
		}
		if convs[0].LastMessageID != "m1" {
			t.Errorf("lastMessage is not repaired on purge, got %s", convs[0].LastMessageID)
		}
	})
}

func TestStorage_SameInstantMessages(t *testing.T) {
	store := newTestStorage(t)
	at := time.Unix(1700000000, 0)

	// Same nanosecond: the id suffix in the key keeps both.
	if err := store.InsertMessage(testMessage("a", "alice", "bob", "one", at), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertMessage(testMessage("b", "alice", "bob", "two", at), "c1"); err != nil {
		t.Fatal(err)
	}

	messages, err := store.ListMessagesBetween("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
}

func TestStorage_UnreadTotalAcrossConversations(t *testing.T) {
	store := newTestStorage(t)
	base := time.Unix(1700000000, 0)

	// Three counterparts write to carol; carol also sends, which must
	// never count against her.
	if err := store.InsertMessage(testMessage("m1", "alice", "carol", "a1", base), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertMessage(testMessage("m2", "alice", "carol", "a2", base.Add(time.Second)), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertMessage(testMessage("m3", "bob", "carol", "b1", base.Add(2*time.Second)), "c2"); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertMessage(testMessage("m4", "dave", "carol", "d1", base.Add(3*time.Second)), "c3"); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertMessage(testMessage("m5", "carol", "dave", "reply", base.Add(4*time.Second)), "c3"); err != nil {
		t.Fatal(err)
	}

	total, err := store.CountUnreadTotal("carol")
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Errorf("expected 4 unread total for carol, got %d", total)
	}

	// Reading one pair only drops that pair's share.
	if _, err := store.MarkRead("carol", "alice", base.Add(5*time.Second)); err != nil {
		t.Fatal(err)
	}
	total, err = store.CountUnreadTotal("carol")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("expected 2 unread total after reading alice's pair, got %d", total)
	}

	total, err = store.CountUnreadTotal("dave")
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("expected 1 unread total for dave, got %d", total)
	}
}
