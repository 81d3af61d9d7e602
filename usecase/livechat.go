package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/govconnect/channel-gateway/core/settings/application"
	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	"github.com/govconnect/channel-gateway/domains/chat"
	domainForwarder "github.com/govconnect/channel-gateway/domains/forwarder"
	"github.com/govconnect/channel-gateway/domains/livechat"
	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	"github.com/govconnect/channel-gateway/pkg/circuit"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/spamguard"
)

const conversationDetailLimit = 50

type serviceLiveChat struct {
	messages      chat.IMessageRepository
	convs         chat.IConversationRepository
	takeovers     chat.ITakeoverRepository
	pendings      chat.IPendingRepository
	accounts      domainSession.IChannelAccountRepository
	provider      *provider.Client
	tokens        *provider.TokenResolver
	guard         *spamguard.Guard
	forwarder     domainForwarder.IForwarderUsecase
	settings      *application.SettingsService
	aiClient      *circuit.Client
	caseClient    *circuit.Client
	notifications *circuit.Client
}

func NewLiveChatService(
	messages chat.IMessageRepository,
	convs chat.IConversationRepository,
	takeovers chat.ITakeoverRepository,
	pendings chat.IPendingRepository,
	accounts domainSession.IChannelAccountRepository,
	providerClient *provider.Client,
	tokens *provider.TokenResolver,
	guard *spamguard.Guard,
	forwarderService domainForwarder.IForwarderUsecase,
	settingsService *application.SettingsService,
	aiClient *circuit.Client,
	caseClient *circuit.Client,
	notificationClient *circuit.Client,
) livechat.ILiveChatUsecase {
	return &serviceLiveChat{
		messages:      messages,
		convs:         convs,
		takeovers:     takeovers,
		pendings:      pendings,
		accounts:      accounts,
		provider:      providerClient,
		tokens:        tokens,
		guard:         guard,
		forwarder:     forwarderService,
		settings:      settingsService,
		aiClient:      aiClient,
		caseClient:    caseClient,
		notifications: notificationClient,
	}
}

func (service *serviceLiveChat) Conversations(ctx context.Context, req livechat.ListRequest) (*livechat.ListResponse, error) {
	if req.VillageID == "" {
		return nil, pkgError.ValidationError("village_id: cannot be blank.")
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}

	var takeoverOnly *bool
	switch req.Filter {
	case livechat.FilterTakeover:
		v := true
		takeoverOnly = &v
	case livechat.FilterBot:
		v := false
		takeoverOnly = &v
	case livechat.FilterAll, "":
	default:
		return nil, pkgError.ValidationError(fmt.Sprintf("filter: must be one of all, takeover, bot (got %q)", req.Filter))
	}

	convs, total, err := service.convs.List(ctx, req.VillageID, takeoverOnly, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return &livechat.ListResponse{Conversations: convs, Total: total}, nil
}

// Conversation returns the detail view and marks the thread read, since
// opening it on the dashboard is the read event.
func (service *serviceLiveChat) Conversation(ctx context.Context, villageID, id, channelIdentifier string) (*livechat.DetailResponse, error) {
	var conv *chat.Conversation
	var err error
	if id != "" {
		conv, err = service.convs.GetByID(ctx, villageID, id)
	} else {
		conv, err = service.convs.Get(ctx, chat.ConversationKey{
			VillageID:         villageID,
			Channel:           chat.ChannelWhatsApp,
			ChannelIdentifier: channelIdentifier,
		})
	}
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, pkgError.NotFoundError("conversation not found")
	}

	key := chat.ConversationKey{
		VillageID:         conv.VillageID,
		Channel:           conv.Channel,
		ChannelIdentifier: conv.ChannelIdentifier,
	}
	messages, err := service.messages.ListByConversation(ctx, key, conversationDetailLimit)
	if err != nil {
		return nil, err
	}
	takeover, err := service.takeovers.Active(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := service.MarkAsRead(ctx, key); err != nil {
		logrus.WithError(err).Debug("[LIVECHAT] Mark-read on open failed")
	}
	conv.UnreadCount = 0

	return &livechat.DetailResponse{
		Conversation: *conv,
		Messages:     messages,
		Takeover:     takeover,
	}, nil
}

func (service *serviceLiveChat) ActiveTakeover(ctx context.Context, key chat.ConversationKey) (*chat.TakeoverSession, error) {
	return service.takeovers.Active(ctx, key)
}

// StartTakeover is idempotent: any active takeover for the conversation is
// ended first and the conversation flag stays in lockstep with the rows.
func (service *serviceLiveChat) StartTakeover(ctx context.Context, req livechat.StartTakeoverRequest) (*chat.TakeoverSession, error) {
	if req.VillageID == "" || req.ChannelIdentifier == "" || req.AdminID == "" {
		return nil, pkgError.ValidationError("village_id, channel_identifier and admin_id are required")
	}
	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: req.ChannelIdentifier,
	}

	if ended, err := service.takeovers.End(ctx, key, time.Now().UTC()); err != nil {
		return nil, err
	} else if ended > 0 {
		logrus.Debugf("[LIVECHAT] Ended %d previous takeover(s) for %s", ended, key)
	}

	session := &chat.TakeoverSession{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		AdminID:           req.AdminID,
		AdminName:         req.AdminName,
		Reason:            req.Reason,
		StartedAt:         time.Now().UTC(),
	}
	if err := service.takeovers.Start(ctx, session); err != nil {
		return nil, err
	}
	if err := service.convs.SetTakeover(ctx, key, true); err != nil {
		return nil, err
	}

	// Any in-flight batch must die with the handover.
	service.guard.CancelUser(key.VillageID, key.ChannelIdentifier)
	if err := service.convs.ClearAIStatus(ctx, key); err != nil {
		logrus.WithError(err).Debug("[LIVECHAT] AI status clear failed on takeover")
	}

	if service.notifications != nil {
		body := map[string]string{
			"type":               "takeover_started",
			"village_id":         key.VillageID,
			"channel_identifier": key.ChannelIdentifier,
			"admin_id":           req.AdminID,
			"admin_name":         req.AdminName,
		}
		if err := service.notifications.DoJSON(ctx, http.MethodPost, "/internal/notifications", body, nil); err != nil {
			logrus.WithError(err).Debug("[LIVECHAT] Takeover notification failed")
		}
	}

	logrus.Infof("[LIVECHAT] Takeover started on %s by %s", key, req.AdminID)
	return session, nil
}

func (service *serviceLiveChat) EndTakeover(ctx context.Context, req livechat.EndTakeoverRequest) error {
	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: req.ChannelIdentifier,
	}
	if _, err := service.takeovers.End(ctx, key, time.Now().UTC()); err != nil {
		return err
	}
	if err := service.convs.SetTakeover(ctx, key, false); err != nil {
		return err
	}
	logrus.Infof("[LIVECHAT] Takeover ended on %s", key)
	return nil
}

// AdminSend delivers a human reply. WhatsApp sends go to the provider
// first; the message row is only written on success so history matches
// what the user actually saw.
func (service *serviceLiveChat) AdminSend(ctx context.Context, req livechat.AdminSendRequest) (*chat.Message, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, pkgError.ValidationError("message: cannot be blank.")
	}
	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: req.ChannelIdentifier,
	}

	if key.Channel == chat.ChannelWhatsApp {
		if err := ensureWaEnabled(ctx, service.accounts, key.VillageID); err != nil {
			return nil, err
		}
		token, err := service.tokens.Resolve(ctx, key.VillageID, "")
		if err != nil {
			return nil, err
		}
		if _, err := service.provider.SendText(ctx, token, key.ChannelIdentifier, req.Message); err != nil {
			return nil, err
		}
	}

	msg := &chat.Message{
		VillageID:         key.VillageID,
		WaUserID:          key.ChannelIdentifier,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         "admin-" + uuid.NewString(),
		MessageText:       req.Message,
		Direction:         chat.DirectionOut,
		Source:            chat.SourceAdmin,
		Timestamp:         time.Now().UTC(),
	}
	if _, err := service.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if err := service.convs.TouchOutbound(ctx, key, req.Message, msg.Timestamp); err != nil {
		logrus.WithError(err).Warn("[LIVECHAT] Conversation update failed after admin send")
	}
	return msg, nil
}

// MarkAsRead re-reads the settings row first: the auto-read toggle must be
// observed without a restart, and this is its latency-sensitive path.
func (service *serviceLiveChat) MarkAsRead(ctx context.Context, key chat.ConversationKey) error {
	if err := service.convs.MarkRead(ctx, key); err != nil {
		return err
	}

	current, err := service.settings.Reload(ctx)
	if err != nil {
		logrus.WithError(err).Debug("[LIVECHAT] Settings reload failed, using cache")
		current = service.settings.Current()
	}
	if current.AutoReadMessages && key.Channel == chat.ChannelWhatsApp {
		token, err := service.tokens.Resolve(ctx, key.VillageID, "")
		if err != nil {
			logrus.WithError(err).Debug("[LIVECHAT] No token for upstream read-mark")
			return nil
		}
		if err := service.provider.MarkRead(ctx, token, key.ChannelIdentifier, nil); err != nil {
			logrus.WithError(err).Debug("[LIVECHAT] Upstream read-mark failed")
		}
	}
	return nil
}

// DeleteConversation wipes the thread and best-effort clears the
// orchestrator's per-user profile cache.
func (service *serviceLiveChat) DeleteConversation(ctx context.Context, key chat.ConversationKey) error {
	if err := service.messages.DeleteByConversation(ctx, key); err != nil {
		return err
	}
	if err := service.takeovers.DeleteByConversation(ctx, key); err != nil {
		return err
	}
	if err := service.convs.Delete(ctx, key); err != nil {
		return err
	}
	service.guard.CancelUser(key.VillageID, key.ChannelIdentifier)

	if service.aiClient != nil {
		body := map[string]string{
			"village_id": key.VillageID,
			"user_id":    key.ChannelIdentifier,
		}
		if err := service.aiClient.DoJSON(ctx, http.MethodPost, "/internal/profile-cache/clear", body, nil); err != nil {
			logrus.WithError(err).Debug("[LIVECHAT] Profile cache clear failed")
		}
	}
	if service.caseClient != nil {
		body := map[string]string{
			"village_id": key.VillageID,
			"user_id":    key.ChannelIdentifier,
		}
		if err := service.caseClient.DoJSON(ctx, http.MethodPost, "/internal/cases/detach-conversation", body, nil); err != nil {
			logrus.WithError(err).Debug("[LIVECHAT] Case detach failed")
		}
	}

	logrus.Infof("[LIVECHAT] Deleted conversation %s", key)
	return nil
}

// RetryAI re-publishes the latest pending message with is_retry set.
func (service *serviceLiveChat) RetryAI(ctx context.Context, key chat.ConversationKey) error {
	pending, err := service.pendings.Latest(ctx, key)
	if err != nil {
		return err
	}
	if pending == nil {
		return pkgError.NotFoundError("no pending message to retry")
	}

	if err := service.pendings.MarkProcessing(ctx, pending.MessageID); err != nil {
		return err
	}
	if err := service.convs.SetAIStatus(ctx, key, chat.AIStatusProcessing, ""); err != nil {
		logrus.WithError(err).Warn("[LIVECHAT] Failed to set processing on retry")
	}

	msg := &chat.Message{
		VillageID:         pending.VillageID,
		WaUserID:          pending.WaUserID,
		Channel:           pending.Channel,
		ChannelIdentifier: pending.ChannelIdentifier,
		MessageID:         pending.MessageID,
		MessageText:       pending.MessageText,
		Direction:         chat.DirectionIn,
		Source:            chat.SourceWebhook,
		Timestamp:         time.Now().UTC(),
	}
	guardInfo := domainBus.SpamGuardInfo{
		ContextMessages: []domainBus.ContextMessage{
			{MessageID: pending.MessageID, MessageText: pending.MessageText},
		},
	}
	if err := service.forwarder.Forward(ctx, msg, guardInfo, true); err != nil {
		logrus.WithError(err).Warnf("[LIVECHAT] Retry publish deferred for %s", pending.MessageID)
	}
	logrus.Infof("[LIVECHAT] Retried AI turn for %s (%s)", key, pending.MessageID)
	return nil
}

func channelOrDefault(channel string) chat.Channel {
	c := chat.Channel(strings.ToUpper(strings.TrimSpace(channel)))
	if c != chat.ChannelWebchat {
		c = chat.ChannelWhatsApp
	}
	return c
}
