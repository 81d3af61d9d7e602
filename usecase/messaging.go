package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/govconnect/channel-gateway/core/settings/application"
	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/govconnect/channel-gateway/domains/messaging"
	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type serviceMessaging struct {
	messages         chat.IMessageRepository
	convs            chat.IConversationRepository
	sendLogs         chat.ISendLogRepository
	accounts         domainSession.IChannelAccountRepository
	provider         *provider.Client
	tokens           *provider.TokenResolver
	settings         *application.SettingsService
	defaultVillageID string
}

func NewMessagingService(
	messages chat.IMessageRepository,
	convs chat.IConversationRepository,
	sendLogs chat.ISendLogRepository,
	accounts domainSession.IChannelAccountRepository,
	providerClient *provider.Client,
	tokens *provider.TokenResolver,
	settingsService *application.SettingsService,
	defaultVillageID string,
) messaging.IMessagingUsecase {
	return &serviceMessaging{
		messages:         messages,
		convs:            convs,
		sendLogs:         sendLogs,
		accounts:         accounts,
		provider:         providerClient,
		tokens:           tokens,
		settings:         settingsService,
		defaultVillageID: defaultVillageID,
	}
}

// ensureWaEnabled enforces the per-tenant outbound toggle. The toggle wins
// over session state; a tenant without an account row is unrestricted.
func ensureWaEnabled(ctx context.Context, accounts domainSession.IChannelAccountRepository, villageID string) error {
	account, err := accounts.Get(ctx, villageID)
	if err != nil {
		return err
	}
	if account != nil && !account.EnabledWa {
		return pkgError.TenantNotConfiguredError("whatsapp is disabled for village " + villageID)
	}
	return nil
}

// Store writes a message row on behalf of another service. The AI
// orchestrator uses this to persist turns it produced out of band.
func (service *serviceMessaging) Store(ctx context.Context, req messaging.StoreRequest) (*chat.Message, error) {
	if req.VillageID == "" || strings.TrimSpace(req.Message) == "" {
		return nil, pkgError.ValidationError("village_id and message are required")
	}
	direction := chat.Direction(strings.ToUpper(req.Direction))
	if direction != chat.DirectionIn && direction != chat.DirectionOut {
		return nil, pkgError.ValidationError("direction: must be IN or OUT")
	}
	identifier := req.ChannelIdentifier
	if identifier == "" {
		identifier = req.WaUserID
	}
	if identifier == "" {
		return nil, pkgError.ValidationError("channel_identifier or wa_user_id is required")
	}

	source := chat.Source(req.Source)
	if source == "" {
		if direction == chat.DirectionIn {
			source = chat.SourceWebhook
		} else {
			source = chat.SourceAI
		}
	}
	messageID := req.MessageID
	if messageID == "" {
		messageID = "stored-" + uuid.NewString()
	}

	msg := &chat.Message{
		VillageID:         req.VillageID,
		WaUserID:          req.WaUserID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: identifier,
		MessageID:         messageID,
		MessageText:       req.Message,
		Direction:         direction,
		Source:            source,
		Timestamp:         time.Now().UTC(),
	}
	result, err := service.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	if result == chat.Duplicate {
		return nil, pkgError.DuplicateMessageError("message_id already stored: " + messageID)
	}

	key := chat.ConversationKey{
		VillageID:         msg.VillageID,
		Channel:           msg.Channel,
		ChannelIdentifier: msg.ChannelIdentifier,
	}
	if direction == chat.DirectionIn {
		err = service.convs.TouchInbound(ctx, key, msg.MessageText, msg.Timestamp)
	} else {
		err = service.convs.TouchOutbound(ctx, key, msg.MessageText, msg.Timestamp)
	}
	if err != nil {
		logrus.WithError(err).Warnf("[MESSAGING] Conversation update failed for %s", key)
	}
	return msg, nil
}

func (service *serviceMessaging) History(ctx context.Context, req messaging.HistoryRequest) ([]chat.Message, error) {
	if req.VillageID == "" {
		return nil, pkgError.ValidationError("village_id: cannot be blank.")
	}
	identifier := req.ChannelIdentifier
	if identifier == "" {
		identifier = req.WaUserID
	}
	if identifier == "" {
		return nil, pkgError.ValidationError("channel_identifier or wa_user_id is required")
	}
	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: identifier,
	}
	return service.messages.ListByConversation(ctx, key, req.Limit)
}

// Send delivers a text through the provider and records it as an outbound
// system message.
func (service *serviceMessaging) Send(ctx context.Context, req messaging.SendRequest) (*messaging.SendResponse, error) {
	if req.WaUserID == "" || strings.TrimSpace(req.Message) == "" {
		return nil, pkgError.ValidationError("wa_user_id and message are required")
	}
	villageID := req.VillageID
	if villageID == "" {
		villageID = service.defaultVillageID
	}
	if villageID == "" {
		return nil, pkgError.TenantNotConfiguredError("no village_id supplied and no default configured")
	}
	if err := ensureWaEnabled(ctx, service.accounts, villageID); err != nil {
		return nil, err
	}

	token, err := service.tokens.Resolve(ctx, villageID, "")
	if err != nil {
		return nil, err
	}
	result, err := service.provider.SendText(ctx, token, req.WaUserID, req.Message)
	service.appendSendLog(ctx, villageID, req.WaUserID, err)
	if err != nil {
		return nil, err
	}

	msg := &chat.Message{
		VillageID:         villageID,
		WaUserID:          req.WaUserID,
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: utils.NormalizePhone(req.WaUserID),
		MessageID:         result.MessageID,
		MessageText:       req.Message,
		Direction:         chat.DirectionOut,
		Source:            chat.SourceSystem,
		Timestamp:         time.Now().UTC(),
	}
	if _, err := service.messages.Insert(ctx, msg); err != nil {
		logrus.WithError(err).Warn("[MESSAGING] Failed to store sent message")
	}
	key := chat.ConversationKey{
		VillageID:         msg.VillageID,
		Channel:           msg.Channel,
		ChannelIdentifier: msg.ChannelIdentifier,
	}
	if err := service.convs.TouchOutbound(ctx, key, msg.MessageText, msg.Timestamp); err != nil {
		logrus.WithError(err).Warnf("[MESSAGING] Conversation update failed for %s", key)
	}
	return &messaging.SendResponse{MessageID: result.MessageID}, nil
}

// Typing pushes a composing or paused presence. The dashboard toggle wins
// over the caller: when typing indicators are off this is a no-op.
func (service *serviceMessaging) Typing(ctx context.Context, req messaging.TypingRequest) error {
	if req.WaUserID == "" {
		return pkgError.ValidationError("wa_user_id: cannot be blank.")
	}
	current, err := service.settings.Reload(ctx)
	if err != nil {
		current = service.settings.Current()
	}
	if !current.TypingIndicator {
		return nil
	}

	villageID := req.VillageID
	if villageID == "" {
		villageID = service.defaultVillageID
	}
	token, err := service.tokens.Resolve(ctx, villageID, "")
	if err != nil {
		return err
	}
	state := "paused"
	if req.Typing {
		state = "composing"
	}
	return service.provider.SendPresence(ctx, token, req.WaUserID, state)
}

func (service *serviceMessaging) MarkRead(ctx context.Context, req messaging.ReadRequest) error {
	if req.VillageID == "" {
		return pkgError.ValidationError("village_id: cannot be blank.")
	}
	identifier := req.ChannelIdentifier
	if identifier == "" {
		identifier = req.WaUserID
	}
	if identifier == "" {
		return pkgError.ValidationError("channel_identifier or wa_user_id is required")
	}
	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: identifier,
	}
	if err := service.convs.MarkRead(ctx, key); err != nil {
		return err
	}
	if key.Channel != chat.ChannelWhatsApp {
		return nil
	}
	token, err := service.tokens.Resolve(ctx, key.VillageID, "")
	if err != nil {
		logrus.WithError(err).Debug("[MESSAGING] No token for upstream read-mark")
		return nil
	}
	if err := service.provider.MarkRead(ctx, token, identifier, req.MessageIDs); err != nil {
		logrus.WithError(err).Debug("[MESSAGING] Upstream read-mark failed")
	}
	return nil
}

func (service *serviceMessaging) SetUserProfile(ctx context.Context, req messaging.UserProfileRequest) error {
	if req.VillageID == "" || req.ChannelIdentifier == "" {
		return pkgError.ValidationError("village_id and channel_identifier are required")
	}
	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: req.ChannelIdentifier,
	}
	return service.convs.SetUserProfile(ctx, key, req.Name, req.Phone)
}

func (service *serviceMessaging) appendSendLog(ctx context.Context, villageID, target string, sendErr error) {
	log := &chat.SendLog{
		VillageID: villageID,
		Channel:   chat.ChannelWhatsApp,
		Target:    utils.NormalizePhone(target),
		Status:    "sent",
	}
	if sendErr != nil {
		log.Status = "failed"
		log.Error = sendErr.Error()
	}
	if err := service.sendLogs.Append(ctx, log); err != nil {
		logrus.WithError(err).Debug("[MESSAGING] Send log append failed")
	}
}
