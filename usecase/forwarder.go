package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	"github.com/govconnect/channel-gateway/domains/chat"
	domainForwarder "github.com/govconnect/channel-gateway/domains/forwarder"
	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	"github.com/govconnect/channel-gateway/pkg/retrytimer"
	"github.com/govconnect/channel-gateway/pkg/spamguard"
)

const guidanceBubbleDelay = 500 * time.Millisecond

type serviceForwarder struct {
	publisher  domainBus.IEventPublisher
	provider   *provider.Client
	tokens     *provider.TokenResolver
	messages   chat.IMessageRepository
	convs      chat.IConversationRepository
	pendings   chat.IPendingRepository
	sendLogs   chat.ISendLogRepository
	accounts   domainSession.IChannelAccountRepository
	guard      *spamguard.Guard
	retries    *retrytimer.Scheduler
	retryDelay time.Duration
}

func NewForwarderService(
	publisher domainBus.IEventPublisher,
	providerClient *provider.Client,
	tokens *provider.TokenResolver,
	messages chat.IMessageRepository,
	convs chat.IConversationRepository,
	pendings chat.IPendingRepository,
	sendLogs chat.ISendLogRepository,
	accounts domainSession.IChannelAccountRepository,
	guard *spamguard.Guard,
	retries *retrytimer.Scheduler,
	retryDelay time.Duration,
) domainForwarder.IForwarderUsecase {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &serviceForwarder{
		publisher:  publisher,
		provider:   providerClient,
		tokens:     tokens,
		messages:   messages,
		convs:      convs,
		pendings:   pendings,
		sendLogs:   sendLogs,
		accounts:   accounts,
		guard:      guard,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

// Forward publishes one approved message to the orchestrator. A failed
// publish is rescheduled after the retry delay, keyed by
// village:user:message so repeated failures collapse into one timer.
func (service *serviceForwarder) Forward(ctx context.Context, msg *chat.Message, guard domainBus.SpamGuardInfo, isRetry bool) error {
	event := domainBus.InboundMessageEvent{
		VillageID:         msg.VillageID,
		WaUserID:          msg.WaUserID,
		Channel:           string(msg.Channel),
		ChannelIdentifier: msg.ChannelIdentifier,
		Message:           msg.MessageText,
		MessageID:         msg.MessageID,
		ReceivedAt:        msg.Timestamp.UTC().Format(time.RFC3339),
		BatchedMessageIDs: []string{msg.MessageID},
		HasMedia:          msg.HasMedia,
		MediaType:         msg.MediaType,
		MediaURL:          msg.MediaURL,
		MediaPublicURL:    msg.MediaPublicURL,
		IsRetry:           isRetry,
		SpamGuard:         guard,
	}

	err := service.publisher.Publish(ctx, domainBus.KeyMessageReceived, event)
	if err == nil {
		logrus.Infof("[FORWARDER] Published %s for %s/%s", msg.MessageID, msg.VillageID, msg.ChannelIdentifier)
		return nil
	}

	retryKey := fmt.Sprintf("%s:%s:%s", msg.VillageID, msg.WaUserID, msg.MessageID)
	logrus.WithError(err).Warnf("[FORWARDER] Publish failed, retrying %s in %s", retryKey, service.retryDelay)
	service.retries.Schedule(retryKey, service.retryDelay, func() {
		service.retryPublish(retryKey, event)
	})
	return err
}

func (service *serviceForwarder) retryPublish(retryKey string, event domainBus.InboundMessageEvent) {
	if err := service.publisher.Publish(context.Background(), domainBus.KeyMessageReceived, event); err != nil {
		logrus.WithError(err).Warnf("[FORWARDER] Publish retry failed for %s", retryKey)
		service.retries.Schedule(retryKey, service.retryDelay, func() {
			service.retryPublish(retryKey, event)
		})
		return
	}
	logrus.Infof("[FORWARDER] Publish retry succeeded for %s", retryKey)
}

// HandleAIReply dispatches an orchestrator reply to the user and settles
// the pending queue.
func (service *serviceForwarder) HandleAIReply(ctx context.Context, body []byte) error {
	var event domainBus.AIReplyEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode ai.reply: %w", err)
	}

	key := replyConversationKey(event.VillageID, event.Channel, event.ChannelIdentifier, event.WaUserID)
	logrus.Infof("[FORWARDER] AI reply for %s (%d batched)", key, len(event.BatchedMessageIDs))

	conv, err := service.convs.Get(ctx, key)
	if err != nil {
		return err
	}

	completed := event.BatchedMessageIDs
	if event.MessageID != "" {
		completed = append([]string{event.MessageID}, completed...)
	}

	if conv != nil && conv.IsTakeover {
		// A human owns the conversation now; the late reply is swallowed
		// but its pending rows still settle.
		logrus.Infof("[FORWARDER] Takeover active for %s, suppressing AI reply", key)
		if err := service.pendings.MarkCompleted(ctx, completed...); err != nil {
			logrus.WithError(err).Warn("[FORWARDER] Failed to settle pending rows")
		}
		return nil
	}

	replyText := NormalizeReplyText(event.ReplyText)
	if key.Channel == chat.ChannelWhatsApp {
		if err := service.sendWhatsApp(ctx, key, event.WaUserID, replyText, event.GuidanceText); err != nil {
			// Logged, never requeued: the user-visible state stays on
			// ai_status so the admin can retry.
			logrus.WithError(err).Errorf("[FORWARDER] Send failed for %s", key)
			return nil
		}
	}

	service.storeOutbound(ctx, key, event.WaUserID, replyText)
	if err := service.convs.TouchOutbound(ctx, key, replyText, time.Now().UTC()); err != nil {
		logrus.WithError(err).Warn("[FORWARDER] Conversation update failed after reply")
	}
	if err := service.convs.ClearAIStatus(ctx, key); err != nil {
		logrus.WithError(err).Warn("[FORWARDER] Failed to clear AI status")
	}
	service.guard.ClearInFlight(key.VillageID, event.WaUserID)
	if err := service.pendings.MarkCompleted(ctx, completed...); err != nil {
		logrus.WithError(err).Warn("[FORWARDER] Failed to settle pending rows")
	}
	return nil
}

func (service *serviceForwarder) sendWhatsApp(ctx context.Context, key chat.ConversationKey, waUserID, replyText, guidanceText string) error {
	account, err := service.accounts.Get(ctx, key.VillageID)
	if err != nil {
		return err
	}
	if account != nil && !account.EnabledWa {
		logrus.Infof("[FORWARDER] WhatsApp disabled for %s, dropping outbound", key.VillageID)
		return nil
	}

	token, err := service.tokens.Resolve(ctx, key.VillageID, "")
	if err != nil {
		service.appendSendLog(ctx, key, err.Error(), "failed")
		return err
	}

	res, err := service.provider.SendText(ctx, token, key.ChannelIdentifier, replyText)
	if err != nil {
		service.appendSendLog(ctx, key, err.Error(), "failed")
		return err
	}
	service.appendSendLog(ctx, key, "", "sent")
	logrus.Debugf("[FORWARDER] Sent %s to %s", res.MessageID, key.ChannelIdentifier)

	if guidance := strings.TrimSpace(guidanceText); guidance != "" {
		select {
		case <-time.After(guidanceBubbleDelay):
		case <-ctx.Done():
			return nil
		}
		if _, err := service.provider.SendText(ctx, token, key.ChannelIdentifier, NormalizeReplyText(guidance)); err != nil {
			logrus.WithError(err).Warn("[FORWARDER] Guidance bubble failed")
		}
	}
	return nil
}

func (service *serviceForwarder) storeOutbound(ctx context.Context, key chat.ConversationKey, waUserID, text string) {
	msg := &chat.Message{
		VillageID:         key.VillageID,
		WaUserID:          waUserID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "out-" + uuid.NewString(),
		MessageText:       text,
		Direction:         chat.DirectionOut,
		Source:            chat.SourceAI,
		Timestamp:         time.Now().UTC(),
	}
	if _, err := service.messages.Insert(ctx, msg); err != nil {
		logrus.WithError(err).Warn("[FORWARDER] Failed to store outbound message")
	}
}

func (service *serviceForwarder) appendSendLog(ctx context.Context, key chat.ConversationKey, errText, status string) {
	if err := service.sendLogs.Append(ctx, &chat.SendLog{
		VillageID: key.VillageID,
		Channel:   key.Channel,
		Target:    key.ChannelIdentifier,
		Status:    status,
		Error:     errText,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logrus.WithError(err).Debug("[FORWARDER] Send log append failed")
	}
}

// HandleAIError surfaces an orchestrator failure on the conversation and
// re-queues the batched messages until their retry cap.
func (service *serviceForwarder) HandleAIError(ctx context.Context, body []byte) error {
	var event domainBus.AIErrorEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode ai.error: %w", err)
	}

	key := replyConversationKey(event.VillageID, event.Channel, event.ChannelIdentifier, event.WaUserID)
	preview := event.ErrorMessage
	if len(preview) > 200 {
		preview = preview[:200]
	}
	logrus.Warnf("[FORWARDER] AI error for %s: %s", key, preview)

	if err := service.convs.SetAIStatus(ctx, key, chat.AIStatusError, preview); err != nil {
		logrus.WithError(err).Warn("[FORWARDER] Failed to flag AI error on conversation")
	}
	for _, id := range event.BatchedMessageIDs {
		if err := service.pendings.MarkFailed(ctx, id, preview); err != nil {
			logrus.WithError(err).Warnf("[FORWARDER] Failed to mark %s failed", id)
		}
	}
	return nil
}

// HandleMessageStatus applies orchestrator-side status transitions to the
// pending queue.
func (service *serviceForwarder) HandleMessageStatus(ctx context.Context, body []byte) error {
	var event domainBus.MessageStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode message.status: %w", err)
	}
	if event.MessageID == "" {
		return nil
	}

	switch event.Status {
	case string(chat.PendingStatusCompleted):
		return service.pendings.MarkCompleted(ctx, event.MessageID)
	case string(chat.PendingStatusFailed):
		return service.pendings.MarkFailed(ctx, event.MessageID, event.ErrorMsg)
	case string(chat.PendingStatusProcessing):
		return service.pendings.MarkProcessing(ctx, event.MessageID)
	default:
		logrus.Debugf("[FORWARDER] Ignoring unknown status %q for %s", event.Status, event.MessageID)
		return nil
	}
}

func replyConversationKey(villageID, channel, channelIdentifier, waUserID string) chat.ConversationKey {
	ch := chat.Channel(channel)
	if ch == "" {
		ch = chat.ChannelWhatsApp
	}
	ident := channelIdentifier
	if ident == "" {
		ident = waUserID
	}
	return chat.ConversationKey{VillageID: villageID, Channel: ch, ChannelIdentifier: ident}
}

// Emoji markers the orchestrator uses to open list sections. When one
// follows other text without a newline, a paragraph break is inserted so
// WhatsApp renders the sections separately.
var replyListMarkers = []rune{
	'📋', '📌', '📍', '📝', '✅', '🔹', '🔸', '➡', '⚠', '❗', '💡', '📞', '🕐', '🗂',
}

func isListMarker(r rune) bool {
	for _, m := range replyListMarkers {
		if r == m {
			return true
		}
	}
	return false
}

// NormalizeReplyText unescapes literal "\n" sequences and inserts paragraph
// breaks before list-marker emojis that sit directly against other text.
func NormalizeReplyText(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")

	var b strings.Builder
	prev := rune(0)
	for _, r := range text {
		if isListMarker(r) && prev != 0 && prev != '\n' {
			b.WriteString("\n\n")
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
