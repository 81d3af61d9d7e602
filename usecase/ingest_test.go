package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/govconnect/channel-gateway/domains/webhook"
	"github.com/govconnect/channel-gateway/infrastructure/media"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	"github.com/govconnect/channel-gateway/pkg/convworker"
	"github.com/govconnect/channel-gateway/pkg/retrytimer"
	"github.com/govconnect/channel-gateway/pkg/spamguard"
)

type ingestFixture struct {
	store     *storeFixture
	publisher *fakePublisher
	guard     *spamguard.Guard
	svc       *serviceIngest
}

func newIngestFixture(t *testing.T, guardCfg spamguard.Config) *ingestFixture {
	t.Helper()
	store := newStoreFixture(t)
	publisher := newFakePublisher()
	guard := spamguard.NewGuard(guardCfg)
	retries := retrytimer.NewScheduler()
	t.Cleanup(retries.Stop)

	providerClient := dryRunProvider()
	tokens := provider.NewTokenResolver(store.sessions, store.accounts)
	forwarderService := NewForwarderService(
		publisher, providerClient, tokens,
		store.messages, store.convs, store.pendings, store.sendLogs, store.accounts,
		guard, retries, 10*time.Millisecond,
	)

	mediaStorage, err := media.NewStorage(media.Options{
		Root:            t.TempDir(),
		InternalBaseURL: "http://gateway.local/media",
		PublicBaseURL:   "https://cdn.example.com/media",
	})
	require.NoError(t, err)

	pool := convworker.NewPool(2, 32)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})

	svc := NewIngestService(
		store.sessions, store.messages, store.convs, store.pendings, store.takeovers,
		guard, forwarderService, mediaStorage, pool,
		"village-default", time.Second,
	)
	return &ingestFixture{
		store:     store,
		publisher: publisher,
		guard:     guard,
		svc:       svc.(*serviceIngest),
	}
}

func webhookPayload(messageID, chatJID, text string) *webhook.Payload {
	return &webhook.Payload{
		Type:         "Message",
		InstanceName: "desa-sukamaju",
		Event: webhook.Event{
			Info: webhook.Info{
				ID:        messageID,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Chat:      chatJID,
				PushName:  "Budi",
			},
			Message: json.RawMessage(fmt.Sprintf(`{"conversation":%q}`, text)),
		},
	}
}

func TestIngestStoresAndPublishes(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.ing.1", "628123456789@s.whatsapp.net", "mau urus akta kelahiran")))

	assert.Eventually(t, func() bool {
		return len(f.publisher.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	key := chat.ConversationKey{
		VillageID:         "village-default",
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: "628123456789",
	}
	conv, err := f.store.convs.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, chat.AIStatusProcessing, conv.AIStatus)
	assert.Equal(t, "Budi", conv.UserName)

	pending, err := f.store.pendings.Get(ctx, "wamid.ing.1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, chat.PendingStatusPending, pending.Status)

	event := f.publisher.published()[0].Payload.(domainBus.InboundMessageEvent)
	assert.Equal(t, "village-default", event.VillageID)
	assert.Equal(t, "mau urus akta kelahiran", event.Message)
	assert.Equal(t, domainBus.KeyMessageReceived, f.publisher.published()[0].RoutingKey)
}

func TestIngestResolvesTenantByInstanceName(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()
	f.store.seedSession(t, "village-sukamaju", "token-1")
	require.NoError(t, f.store.db.Exec(
		"UPDATE sessions SET instance_name = ? WHERE village_id = ?", "desa-sukamaju", "village-sukamaju").Error)

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.ing.tenant", "628123456789@s.whatsapp.net", "halo")))

	assert.Eventually(t, func() bool {
		events := f.publisher.published()
		return len(events) == 1 &&
			events[0].Payload.(domainBus.InboundMessageEvent).VillageID == "village-sukamaju"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngestDuplicateWebhookIsNoop(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.dup.1", "628123456789@s.whatsapp.net", "halo")))
	assert.Eventually(t, func() bool {
		return len(f.publisher.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.dup.1", "628123456789@s.whatsapp.net", "halo")))
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.publisher.published(), 1)

	key := chat.ConversationKey{
		VillageID:         "village-default",
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: "628123456789",
	}
	count, err := f.store.messages.CountByConversation(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestIngestFiltersGroupBroadcastAndOwnMessages(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()

	group := webhookPayload("wamid.grp.1", "12036304@g.us", "pesan grup")
	require.NoError(t, f.svc.HandleWebhook(ctx, group))

	broadcast := webhookPayload("wamid.bc.1", "628123456789@broadcast", "siaran")
	require.NoError(t, f.svc.HandleWebhook(ctx, broadcast))

	own := webhookPayload("wamid.own.1", "628123456789@s.whatsapp.net", "dari saya")
	own.Event.Info.IsFromMe = true
	require.NoError(t, f.svc.HandleWebhook(ctx, own))

	status := webhookPayload("wamid.st.1", "status@broadcast", "status")
	require.NoError(t, f.svc.HandleWebhook(ctx, status))

	notMessage := webhookPayload("wamid.nm.1", "628123456789@s.whatsapp.net", "x")
	notMessage.Type = "ReadReceipt"
	require.NoError(t, f.svc.HandleWebhook(ctx, notMessage))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.publisher.published())
}

func TestIngestTakeoverSuppressesPublish(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()

	key := chat.ConversationKey{
		VillageID:         "village-default",
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: "628123456789",
	}
	require.NoError(t, f.store.takeovers.Start(ctx, &chat.TakeoverSession{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		AdminID:           "a1",
		AdminName:         "Siti",
		StartedAt:         time.Now().UTC(),
	}))

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.to.1", "628123456789@s.whatsapp.net", "tolong dibantu")))

	assert.Eventually(t, func() bool {
		count, err := f.store.messages.CountByConversation(ctx, key)
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, f.publisher.published(), "takeover conversations never wake the AI")

	conv, err := f.store.convs.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestIngestBubbleSupersedesPrevious(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.bub.1", "628123456789@s.whatsapp.net", "pertama")))
	assert.Eventually(t, func() bool {
		return len(f.publisher.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.HandleWebhook(ctx, webhookPayload("wamid.bub.2", "628123456789@s.whatsapp.net", "kedua")))
	assert.Eventually(t, func() bool {
		return len(f.publisher.published()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	second := f.publisher.published()[1].Payload.(domainBus.InboundMessageEvent)
	assert.True(t, second.SpamGuard.SupersedePrevious)
	assert.Contains(t, second.SpamGuard.SuppressedMessageIDs, "wamid.bub.1")
	require.Len(t, second.SpamGuard.ContextMessages, 2)
	assert.Equal(t, "pertama", second.SpamGuard.ContextMessages[0].MessageText)
	assert.Equal(t, "kedua", second.SpamGuard.ContextMessages[1].MessageText)

	superseded, err := f.store.pendings.Get(ctx, "wamid.bub.1")
	require.NoError(t, err)
	assert.Nil(t, superseded, "superseded pending rows are completed")
}

func TestIngestSpamBanDropsMessages(t *testing.T) {
	cfg := spamguard.DefaultConfig()
	cfg.RateMaxMessages = 3
	cfg.RateWindow = 10 * time.Second
	cfg.BanDuration = time.Minute
	f := newIngestFixture(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		payload := webhookPayload(fmt.Sprintf("wamid.spam.%d", i), "628123456789@s.whatsapp.net", fmt.Sprintf("pesan %d", i))
		require.NoError(t, f.svc.HandleWebhook(ctx, payload))
		assert.Eventually(t, func() bool {
			exists, err := f.store.messages.Exists(ctx, fmt.Sprintf("wamid.spam.%d", i))
			if err != nil {
				return false
			}
			if i < cfg.RateMaxMessages {
				return len(f.publisher.published()) == i+1
			}
			return !exists
		}, 2*time.Second, 10*time.Millisecond)
	}

	assert.Len(t, f.publisher.published(), cfg.RateMaxMessages, "banned messages are not forwarded")

	key := chat.ConversationKey{
		VillageID:         "village-default",
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: "628123456789",
	}
	count, err := f.store.messages.CountByConversation(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, cfg.RateMaxMessages, count, "spam rows are removed from history")
}

func TestWebchatFlowsThroughPipeline(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.HandleWebchat(ctx, webhook.WebchatMessage{
		VillageID: "village-1",
		SessionID: "web-abc123",
		UserName:  "Ani",
		Message:   "jam buka kantor desa?",
	}))

	assert.Eventually(t, func() bool {
		return len(f.publisher.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := f.publisher.published()[0].Payload.(domainBus.InboundMessageEvent)
	assert.Equal(t, string(chat.ChannelWebchat), event.Channel)
	assert.Equal(t, "web-abc123", event.ChannelIdentifier)

	key := chat.ConversationKey{
		VillageID:         "village-1",
		Channel:           chat.ChannelWebchat,
		ChannelIdentifier: "web-abc123",
	}
	conv, err := f.store.convs.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "Ani", conv.UserName)
}

func TestWebchatRejectsBlankMessage(t *testing.T) {
	f := newIngestFixture(t, spamguard.DefaultConfig())
	err := f.svc.HandleWebchat(context.Background(), webhook.WebchatMessage{
		VillageID: "village-1",
		SessionID: "web-abc123",
		Message:   "   ",
	})
	assert.Error(t, err)
}
