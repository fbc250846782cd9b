package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/meshline/meshcore/internal/contact"
	"github.com/meshline/meshcore/internal/queue"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RejectsNonSqliteDSN(t *testing.T) {
	if _, err := Open("postgres://localhost/db"); err == nil {
		t.Fatal("expected error for unsupported DSN scheme")
	}
}

func TestOpen_RunsIntegrityCheckClean(t *testing.T) {
	s := openTestStore(t)
	res, err := s.IntegrityCheck()
	if err != nil {
		t.Fatalf("integrity check: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected clean database, got %+v", res)
	}
}

func TestContactBackend_UpsertGetList(t *testing.T) {
	s := openTestStore(t)
	backend := NewContactBackend(s)
	ctx := context.Background()

	c := &contact.Contact{
		EphemeralID:   "peer1",
		DisplayName:   "Alice",
		TrustStatus:   contact.TrustUnknown,
		SecurityLevel: contact.SecurityLow,
		FirstSeen:     time.Now(),
		LastSeen:      time.Now(),
	}
	if err := backend.Upsert(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := backend.Get(ctx, "peer1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.DisplayName != "Alice" {
		t.Fatalf("expected display name Alice, got %q", got.DisplayName)
	}

	c.DisplayName = "Alice Updated"
	if err := backend.Upsert(ctx, c); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got2, _, _ := backend.Get(ctx, "peer1")
	if got2.DisplayName != "Alice Updated" {
		t.Fatalf("expected upsert to update existing row, got %q", got2.DisplayName)
	}

	list, err := backend.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(list))
	}
}

func TestContactBackend_GetMissingReturnsNotOk(t *testing.T) {
	s := openTestStore(t)
	backend := NewContactBackend(s)
	_, ok, err := backend.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing contact to report not ok")
	}
}

func TestQueueBackend_InsertRejectsDuplicateMessageID(t *testing.T) {
	s := openTestStore(t)
	backend := NewQueueBackend(s)
	ctx := context.Background()

	msg := &queue.QueuedMessage{
		QueueID:            "q1",
		MessageID:          "m1",
		ChatID:             "c1",
		Content:            []byte("hello"),
		RecipientPublicKey: "bob",
		SenderPublicKey:    "alice",
		Priority:           queue.PriorityNormal,
		Status:             queue.StatusPending,
		CreatedAt:          time.Now(),
		MessageHash:        "h1",
	}
	if err := backend.Insert(ctx, msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := *msg
	dup.QueueID = "q2"
	if err := backend.Insert(ctx, &dup); err != queue.ErrDuplicateMessageID {
		t.Fatalf("expected ErrDuplicateMessageID, got %v", err)
	}
}

func TestQueueBackend_UpdateStatusAndGet(t *testing.T) {
	s := openTestStore(t)
	backend := NewQueueBackend(s)
	ctx := context.Background()

	msg := &queue.QueuedMessage{
		QueueID:            "q1",
		MessageID:          "m1",
		RecipientPublicKey: "bob",
		Status:             queue.StatusPending,
		CreatedAt:          time.Now(),
	}
	if err := backend.Insert(ctx, msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := time.Now()
	if err := backend.UpdateStatus(ctx, "q1", queue.StatusAwaitingAck, 1, &now); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, ok, err := backend.Get(ctx, "q1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != queue.StatusAwaitingAck {
		t.Fatalf("expected awaiting_ack, got %v", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", got.RetryCount)
	}
}

func TestQueueBackend_ListByStatusForPeer(t *testing.T) {
	s := openTestStore(t)
	backend := NewQueueBackend(s)
	ctx := context.Background()

	backend.Insert(ctx, &queue.QueuedMessage{QueueID: "q1", MessageID: "m1", RecipientPublicKey: "bob", Status: queue.StatusPending, CreatedAt: time.Now()})
	backend.Insert(ctx, &queue.QueuedMessage{QueueID: "q2", MessageID: "m2", RecipientPublicKey: "carol", Status: queue.StatusPending, CreatedAt: time.Now()})
	backend.Insert(ctx, &queue.QueuedMessage{QueueID: "q3", MessageID: "m3", RecipientPublicKey: "bob", Status: queue.StatusDelivered, CreatedAt: time.Now()})

	rows, err := backend.ListByStatusForPeer(ctx, "bob", []queue.Status{queue.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].QueueID != "q1" {
		t.Fatalf("expected only q1, got %v", rows)
	}
}

func TestMigrateEphemeralChat_MovesMessagesAndRecordsMeta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ephemeral := ChatRow{ChatID: "chat:ephemeral-1", IsEphemeral: true, CreatedAt: time.Now()}
	if err := s.DB.Create(&ephemeral).Error; err != nil {
		t.Fatalf("create ephemeral chat: %v", err)
	}
	for _, m := range []struct{ id, content string }{{"m1", "hi"}, {"m2", "how are you"}} {
		msg := MessageRow{ChatID: ephemeral.ChatID, MessageID: m.id, Content: []byte(m.content), CreatedAt: time.Now()}
		if err := s.DB.Create(&msg).Error; err != nil {
			t.Fatalf("create message %s: %v", m.id, err)
		}
	}

	if err := s.MigrateEphemeralChat(ctx, ephemeral.ChatID, "bob-permanent-key"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var stillEphemeral ChatRow
	if err := s.DB.Where("chat_id = ?", ephemeral.ChatID).First(&stillEphemeral).Error; err == nil {
		t.Fatal("expected ephemeral chat row to be removed after migration")
	}

	persistentChatID := "chat:bob-permanent-key"
	var persistent ChatRow
	if err := s.DB.Where("chat_id = ?", persistentChatID).First(&persistent).Error; err != nil {
		t.Fatalf("expected persistent chat to exist: %v", err)
	}
	if persistent.LastMessage != "how are you" {
		t.Fatalf("expected last_message 'how are you', got %q", persistent.LastMessage)
	}

	var messages []MessageRow
	if err := s.DB.Where("chat_id = ?", persistentChatID).Order("sequence_num ASC").Find(&messages).Error; err != nil {
		t.Fatalf("find messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages reparented, got %d", len(messages))
	}

	var meta MigrationMetaRow
	if err := s.DB.Where("from_chat_id = ?", ephemeral.ChatID).First(&meta).Error; err != nil {
		t.Fatalf("expected migration meta row: %v", err)
	}
	if meta.MessageCount != 2 {
		t.Fatalf("expected message_count 2, got %d", meta.MessageCount)
	}
}

func TestSearchArchivedMessages_FindsIndexedContent(t *testing.T) {
	s := openTestStore(t)
	row := ArchivedMessageRow{ChatID: "chat:bob", MessageID: "m1", Content: "meet at the old bridge tonight", ArchivedAt: time.Now()}
	if err := s.DB.Create(&row).Error; err != nil {
		t.Fatalf("create archived row: %v", err)
	}

	ids, err := s.SearchArchivedMessages("bridge", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 1 || ids[0] != "m1" {
		t.Fatalf("expected [m1], got %v", ids)
	}
}

func TestWithRetry_PropagatesNonTransientErrorImmediately(t *testing.T) {
	s := openTestStore(t)
	callCount := 0
	boom := errors.New("not null constraint failed")
	err := s.WithRetry(context.Background(), func(tx *gorm.DB) error {
		callCount++
		return boom
	})
	if err != boom {
		t.Fatalf("expected the non-transient error to propagate unchanged, got %v", err)
	}
	if callCount != 1 {
		t.Fatalf("expected exactly one attempt for a non-transient error, got %d", callCount)
	}
}

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	s := openTestStore(t)
	callCount := 0
	err := s.WithRetry(context.Background(), func(tx *gorm.DB) error {
		callCount++
		return tx.Create(&DevicePreferenceRow{Key: "k", Value: "v"}).Error
	})
	if err != nil {
		t.Fatalf("with retry: %v", err)
	}
	if callCount != 1 {
		t.Fatalf("expected 1 attempt, got %d", callCount)
	}
}

func TestQueueBackend_Delete(t *testing.T) {
	s := openTestStore(t)
	backend := NewQueueBackend(s)
	ctx := context.Background()

	backend.Insert(ctx, &queue.QueuedMessage{QueueID: "q1", MessageID: "m1", RecipientPublicKey: "bob", Status: queue.StatusPending, CreatedAt: time.Now()})
	if err := backend.Delete(ctx, "q1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err := backend.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if ok {
		t.Fatal("expected deleted row to be gone")
	}
}
