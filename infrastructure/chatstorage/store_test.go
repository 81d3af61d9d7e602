package chatstorage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/govconnect/channel-gateway/domains/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		db.Exec("DELETE FROM messages")
		db.Exec("DELETE FROM conversations")
		db.Exec("DELETE FROM takeover_sessions")
		db.Exec("DELETE FROM pending_messages")
		db.Exec("DELETE FROM send_logs")
		db.Exec("DELETE FROM sessions")
		db.Exec("DELETE FROM channel_accounts")
	})
	return db
}

func testKey(villageID string) chat.ConversationKey {
	return chat.ConversationKey{
		VillageID:         villageID,
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: "628123456789",
	}
}

func makeMessage(key chat.ConversationKey, msgID string, at time.Time) *chat.Message {
	return &chat.Message{
		VillageID:         key.VillageID,
		WaUserID:          key.ChannelIdentifier,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         msgID,
		MessageText:       "hello " + msgID,
		Direction:         chat.DirectionIn,
		Source:            chat.SourceWebhook,
		Timestamp:         at,
	}
}

func TestMessageInsertDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageGormRepository(db)
	ctx := context.Background()
	key := testKey("village-dup")

	res, err := repo.Insert(ctx, makeMessage(key, "wamid.001", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, chat.Inserted, res)

	res, err = repo.Insert(ctx, makeMessage(key, "wamid.001", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, chat.Duplicate, res)

	count, err := repo.CountByConversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMessageFIFOTruncation(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageGormRepository(db)
	ctx := context.Background()
	key := testKey("village-fifo")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 50; i++ {
		msgID := fmt.Sprintf("wamid.fifo.%03d", i)
		_, err := repo.Insert(ctx, makeMessage(key, msgID, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)

		count, err := repo.CountByConversation(ctx, key)
		require.NoError(t, err)
		// The sweep is amortized, so the bound is the max plus the sweep
		// interval minus one, never more.
		assert.LessOrEqual(t, count, int64(chat.MaxMessagesPerConversation+fifoCheckEvery-1))
	}

	// 50 is a multiple of fifoCheckEvery, so the last insert swept.
	count, err := repo.CountByConversation(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(chat.MaxMessagesPerConversation), count)

	// The survivors are the newest rows, oldest first.
	msgs, err := repo.ListByConversation(ctx, key, 100)
	require.NoError(t, err)
	require.Len(t, msgs, chat.MaxMessagesPerConversation)
	assert.Equal(t, "wamid.fifo.020", msgs[0].MessageID)
	assert.Equal(t, "wamid.fifo.049", msgs[len(msgs)-1].MessageID)
}

func TestMessageFIFOIsConversationScoped(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageGormRepository(db)
	ctx := context.Background()
	keyA := testKey("village-a")
	keyB := testKey("village-b")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 40; i++ {
		_, err := repo.Insert(ctx, makeMessage(keyA, fmt.Sprintf("wamid.a.%03d", i), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := repo.Insert(ctx, makeMessage(keyB, fmt.Sprintf("wamid.b.%03d", i), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	countB, err := repo.CountByConversation(ctx, keyB)
	require.NoError(t, err)
	assert.Equal(t, int64(3), countB)
}

func TestConversationTouchInboundIncrementsUnread(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	key := testKey("village-touch")

	now := time.Now()
	require.NoError(t, repo.TouchInbound(ctx, key, "first", now))
	require.NoError(t, repo.TouchInbound(ctx, key, "second", now.Add(time.Second)))

	conv, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, 2, conv.UnreadCount)
	assert.Equal(t, "second", conv.LastMessage)

	require.NoError(t, repo.TouchOutbound(ctx, key, "reply", now.Add(2*time.Second)))
	conv, err = repo.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.Equal(t, "reply", conv.LastMessage)
}

func TestConversationMarkRead(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	key := testKey("village-read")

	require.NoError(t, repo.TouchInbound(ctx, key, "hi", time.Now()))
	require.NoError(t, repo.MarkRead(ctx, key))

	conv, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestConversationAIStatusRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	key := testKey("village-ai")

	require.NoError(t, repo.TouchInbound(ctx, key, "hi", time.Now()))
	require.NoError(t, repo.SetAIStatus(ctx, key, chat.AIStatusError, "upstream timeout"))

	conv, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, chat.AIStatusError, conv.AIStatus)
	assert.Equal(t, "upstream timeout", conv.AIErrorMessage)

	require.NoError(t, repo.ClearAIStatus(ctx, key))
	conv, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, string(conv.AIStatus))
	assert.Empty(t, conv.AIErrorMessage)
}

func TestTakeoverLifecycle(t *testing.T) {
	db := newTestDB(t)
	takeovers := NewTakeoverGormRepository(db)
	convs := NewConversationGormRepository(db)
	ctx := context.Background()
	key := testKey("village-takeover")

	require.NoError(t, convs.TouchInbound(ctx, key, "hi", time.Now()))

	active, err := takeovers.Active(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, takeovers.Start(ctx, &chat.TakeoverSession{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		AdminID:           "admin-1",
		AdminName:         "Budi",
		Reason:            "user asked for a human",
		StartedAt:         time.Now(),
	}))
	require.NoError(t, convs.SetTakeover(ctx, key, true))

	active, err = takeovers.Active(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "admin-1", active.AdminID)

	ended, err := takeovers.End(ctx, key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ended)
	require.NoError(t, convs.SetTakeover(ctx, key, false))

	active, err = takeovers.Active(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Ending again is a no-op, not an error.
	ended, err = takeovers.End(ctx, key, time.Now())
	require.NoError(t, err)
	assert.Zero(t, ended)
}

func TestPendingLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewPendingGormRepository(db)
	ctx := context.Background()
	key := testKey("village-pending")

	pm := &chat.PendingMessage{
		VillageID:         key.VillageID,
		WaUserID:          key.ChannelIdentifier,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "wamid.pending.001",
		MessageText:       "hello",
	}
	require.NoError(t, repo.Create(ctx, pm))

	got, err := repo.Get(ctx, "wamid.pending.001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chat.PendingStatusPending, got.Status)

	require.NoError(t, repo.MarkProcessing(ctx, "wamid.pending.001"))
	got, err = repo.Get(ctx, "wamid.pending.001")
	require.NoError(t, err)
	assert.Equal(t, chat.PendingStatusProcessing, got.Status)

	// Completion deletes the row instead of keeping a terminal state.
	require.NoError(t, repo.MarkCompleted(ctx, "wamid.pending.001"))
	got, err = repo.Get(ctx, "wamid.pending.001")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPendingRetryCap(t *testing.T) {
	db := newTestDB(t)
	repo := NewPendingGormRepository(db)
	ctx := context.Background()
	key := testKey("village-retry")

	pm := &chat.PendingMessage{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "wamid.retry.001",
		MessageText:       "hello",
	}
	require.NoError(t, repo.Create(ctx, pm))

	for i := 1; i < chat.MaxPendingRetries; i++ {
		require.NoError(t, repo.MarkFailed(ctx, "wamid.retry.001", "orchestrator down"))
		got, err := repo.Get(ctx, "wamid.retry.001")
		require.NoError(t, err)
		assert.Equal(t, chat.PendingStatusPending, got.Status, "retry %d should stay pending", i)
		assert.Equal(t, i, got.RetryCount)
	}

	require.NoError(t, repo.MarkFailed(ctx, "wamid.retry.001", "orchestrator down"))
	got, err := repo.Get(ctx, "wamid.retry.001")
	require.NoError(t, err)
	assert.Equal(t, chat.PendingStatusFailed, got.Status)
	assert.Equal(t, chat.MaxPendingRetries, got.RetryCount)
}

func TestPendingCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewPendingGormRepository(db)
	ctx := context.Background()
	key := testKey("village-pidem")

	pm := &chat.PendingMessage{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "wamid.pidem.001",
	}
	require.NoError(t, repo.Create(ctx, pm))
	require.NoError(t, repo.MarkProcessing(ctx, "wamid.pidem.001"))

	// Re-creating the same message id must not reset the lifecycle.
	dup := *pm
	dup.ID = ""
	require.NoError(t, repo.Create(ctx, &dup))

	got, err := repo.Get(ctx, "wamid.pidem.001")
	require.NoError(t, err)
	assert.Equal(t, chat.PendingStatusProcessing, got.Status)
}

func TestPendingSweepOlderThan(t *testing.T) {
	db := newTestDB(t)
	repo := NewPendingGormRepository(db)
	ctx := context.Background()
	key := testKey("village-sweep")

	old := &chat.PendingMessage{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "wamid.sweep.old",
	}
	require.NoError(t, repo.Create(ctx, old))
	for i := 0; i < chat.MaxPendingRetries; i++ {
		require.NoError(t, repo.MarkFailed(ctx, "wamid.sweep.old", "boom"))
	}
	// Backdate the failed row past the retention cutoff.
	require.NoError(t, db.Model(&pendingModel{}).
		Where("message_id = ?", "wamid.sweep.old").
		Update("updated_at", time.Now().Add(-48*time.Hour)).Error)

	fresh := &chat.PendingMessage{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "wamid.sweep.fresh",
	}
	require.NoError(t, repo.Create(ctx, fresh))

	removed, err := repo.SweepOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := repo.Get(ctx, "wamid.sweep.fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSessionDuplicateNumberProbe(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionGormRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &session.Session{
		VillageID:    "village-one",
		InstanceName: "village-one-inst",
		Status:       session.StatusConnected,
		WaNumber:     "628111222333",
	}))
	require.NoError(t, repo.Upsert(ctx, &session.Session{
		VillageID:    "village-two",
		InstanceName: "village-two-inst",
		Status:       session.StatusDisconnected,
		WaNumber:     "628111222333",
	}))

	// Another connected tenant holds the number.
	dup, err := repo.FindConnectedByNumber(ctx, "628111222333", "village-three")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "village-one", dup.VillageID)

	// The holder itself is excluded from its own probe.
	dup, err = repo.FindConnectedByNumber(ctx, "628111222333", "village-one")
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestSessionUpsertPreservesKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionGormRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &session.Session{
		VillageID:     "village-up",
		InstanceName:  "village-up-inst",
		ProviderToken: "tok-1",
		Status:        session.StatusDisconnected,
	}))
	require.NoError(t, repo.Upsert(ctx, &session.Session{
		VillageID:     "village-up",
		InstanceName:  "village-up-inst",
		ProviderToken: "tok-2",
		Status:        session.StatusConnected,
	}))

	got, err := repo.Get(ctx, "village-up")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-2", got.ProviderToken)
	assert.Equal(t, session.StatusConnected, got.Status)

	byInstance, err := repo.GetByInstanceName(ctx, "village-up-inst")
	require.NoError(t, err)
	require.NotNil(t, byInstance)
	assert.Equal(t, "village-up", byInstance.VillageID)
}

func TestChannelAccountToggles(t *testing.T) {
	db := newTestDB(t)
	repo := NewChannelAccountGormRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &session.ChannelAccount{
		VillageID:      "village-acc",
		WaToken:        "reserved-token",
		EnabledWa:      true,
		EnabledWebchat: true,
	}))

	require.NoError(t, repo.SetEnabled(ctx, "village-acc", false, true))
	got, err := repo.Get(ctx, "village-acc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.EnabledWa)
	assert.True(t, got.EnabledWebchat)
	assert.Equal(t, "reserved-token", got.WaToken)
}
