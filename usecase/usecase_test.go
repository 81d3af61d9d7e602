package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/infrastructure/chatstorage"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

type storeFixture struct {
	db        *gorm.DB
	messages  *chatstorage.MessageGormRepository
	convs     *chatstorage.ConversationGormRepository
	takeovers *chatstorage.TakeoverGormRepository
	pendings  *chatstorage.PendingGormRepository
	sendLogs  *chatstorage.SendLogGormRepository
	sessions  *chatstorage.SessionGormRepository
	accounts  *chatstorage.ChannelAccountGormRepository
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, chatstorage.AutoMigrate(db))
	t.Cleanup(func() {
		db.Exec("DELETE FROM messages")
		db.Exec("DELETE FROM conversations")
		db.Exec("DELETE FROM takeover_sessions")
		db.Exec("DELETE FROM pending_messages")
		db.Exec("DELETE FROM send_logs")
		db.Exec("DELETE FROM sessions")
		db.Exec("DELETE FROM channel_accounts")
		db.Exec("DELETE FROM settings")
	})
	return &storeFixture{
		db:        db,
		messages:  chatstorage.NewMessageGormRepository(db),
		convs:     chatstorage.NewConversationGormRepository(db),
		takeovers: chatstorage.NewTakeoverGormRepository(db),
		pendings:  chatstorage.NewPendingGormRepository(db),
		sendLogs:  chatstorage.NewSendLogGormRepository(db),
		sessions:  chatstorage.NewSessionGormRepository(db),
		accounts:  chatstorage.NewChannelAccountGormRepository(db),
	}
}

func (f *storeFixture) seedSession(t *testing.T, villageID, token string) {
	t.Helper()
	require.NoError(t, f.sessions.Upsert(context.Background(), &session.Session{
		VillageID:     villageID,
		ProviderToken: token,
		Status:        session.StatusConnected,
	}))
}

func dryRunProvider() *provider.Client {
	return provider.NewClient(provider.Options{DryRun: true})
}

type publishedEvent struct {
	RoutingKey string
	Payload    interface{}
}

// fakePublisher records publishes and can simulate a bus outage.
type fakePublisher struct {
	mu        sync.Mutex
	events    []publishedEvent
	unavail   bool
	connected bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{connected: true}
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavail {
		return pkgError.BusUnavailableError("bus is down")
	}
	p.events = append(p.events, publishedEvent{RoutingKey: routingKey, Payload: payload})
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && !p.unavail
}

func (p *fakePublisher) setUnavailable(v bool) {
	p.mu.Lock()
	p.unavail = v
	p.mu.Unlock()
}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
