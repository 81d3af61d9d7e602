package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	"github.com/govconnect/channel-gateway/domains/chat"
	domainForwarder "github.com/govconnect/channel-gateway/domains/forwarder"
	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/domains/webhook"
	"github.com/govconnect/channel-gateway/infrastructure/media"
	"github.com/govconnect/channel-gateway/pkg/convworker"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/spamguard"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type serviceIngest struct {
	sessions  domainSession.ISessionRepository
	messages  chat.IMessageRepository
	convs     chat.IConversationRepository
	pendings  chat.IPendingRepository
	takeovers chat.ITakeoverRepository
	guard     *spamguard.Guard
	forwarder domainForwarder.IForwarderUsecase
	media     *media.Storage
	pool      *convworker.Pool

	defaultVillageID string
	mediaTimeout     time.Duration
}

func NewIngestService(
	sessions domainSession.ISessionRepository,
	messages chat.IMessageRepository,
	convs chat.IConversationRepository,
	pendings chat.IPendingRepository,
	takeovers chat.ITakeoverRepository,
	guard *spamguard.Guard,
	forwarderService domainForwarder.IForwarderUsecase,
	mediaStorage *media.Storage,
	pool *convworker.Pool,
	defaultVillageID string,
	mediaTimeout time.Duration,
) webhook.IIngestUsecase {
	if mediaTimeout <= 0 {
		mediaTimeout = 60 * time.Second
	}
	return &serviceIngest{
		sessions:         sessions,
		messages:         messages,
		convs:            convs,
		pendings:         pendings,
		takeovers:        takeovers,
		guard:            guard,
		forwarder:        forwarderService,
		media:            mediaStorage,
		pool:             pool,
		defaultVillageID: defaultVillageID,
		mediaTimeout:     mediaTimeout,
	}
}

// HandleWebhook runs the inbound pipeline for one provider event. Transient
// failures are swallowed so the provider never amplifies retries; only a
// body that cannot be interpreted at all surfaces as an error.
func (service *serviceIngest) HandleWebhook(ctx context.Context, payload *webhook.Payload) error {
	if payload.Type != "Message" {
		logrus.Debugf("[INGEST] Ignoring webhook type %q", payload.Type)
		return nil
	}

	info := payload.Event.Info
	chatJID := info.Chat

	// Filter chain. Order matters: cheap flag checks first, store lookups
	// last.
	switch {
	case info.IsGroup, strings.HasSuffix(chatJID, "@g.us"):
		logrus.Debugf("[INGEST] Skipping group message %s", info.ID)
		return nil
	case strings.HasSuffix(chatJID, "@broadcast"):
		logrus.Debugf("[INGEST] Skipping broadcast %s", info.ID)
		return nil
	case strings.HasPrefix(chatJID, "status@"):
		return nil
	case info.IsFromMe:
		logrus.Debugf("[INGEST] Skipping own message %s", info.ID)
		return nil
	}

	if info.ID == "" {
		return pkgError.ValidationError("webhook event has no message id")
	}
	exists, err := service.messages.Exists(ctx, info.ID)
	if err != nil {
		logrus.WithError(err).Warn("[INGEST] Duplicate lookup failed, processing anyway")
	} else if exists {
		logrus.Debugf("[INGEST] Duplicate message %s, no-op", info.ID)
		return nil
	}

	phone := utils.StripJID(chatJID)
	if !utils.IsPlainPhone(phone) {
		logrus.Debugf("[INGEST] Skipping non-phone identifier %q", phone)
		return nil
	}

	villageID := service.resolveVillage(ctx, payload.InstanceName)
	normalized := webhook.Normalize(payload.Event.Message)
	if normalized.Text == "" && normalized.MediaKind == "" {
		logrus.Debugf("[INGEST] Empty message %s, ignoring", info.ID)
		return nil
	}

	key := chat.ConversationKey{
		VillageID:         villageID,
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: phone,
	}
	msg := &chat.Message{
		VillageID:         villageID,
		WaUserID:          phone,
		Channel:           chat.ChannelWhatsApp,
		ChannelIdentifier: phone,
		MessageID:         info.ID,
		MessageText:       normalized.Text,
		Direction:         chat.DirectionIn,
		Source:            chat.SourceWebhook,
		HasMedia:          normalized.MediaKind != "" && normalized.MediaKind != "location" && normalized.MediaKind != "contact",
		MediaType:         normalized.MediaKind,
		Timestamp:         info.ParsedTime(),
	}

	dispatched := service.pool.TryDispatch(convworker.Job{
		ConversationKey: key.String(),
		Handler: func(workerCtx context.Context) error {
			return service.processInbound(workerCtx, key, msg, info.PushName, payload, normalized)
		},
	})
	if !dispatched {
		logrus.Warnf("[INGEST] Worker pool saturated, dropping %s", info.ID)
	}
	return nil
}

func (service *serviceIngest) resolveVillage(ctx context.Context, instanceName string) string {
	if instanceName != "" {
		s, err := service.sessions.GetByInstanceName(ctx, instanceName)
		if err != nil {
			logrus.WithError(err).Warnf("[INGEST] Session lookup for %q failed", instanceName)
		} else if s != nil {
			return s.VillageID
		}
	}
	if service.defaultVillageID != "" {
		logrus.Warnf("[INGEST] No tenant for instance %q, using default village", instanceName)
		return service.defaultVillageID
	}
	logrus.Warnf("[INGEST] No tenant for instance %q, isolating under \"unknown\"", instanceName)
	return "unknown"
}

// processInbound runs on the conversation's worker shard, which serializes
// store, spam decision and publish for one conversation.
func (service *serviceIngest) processInbound(ctx context.Context, key chat.ConversationKey, msg *chat.Message, pushName string, payload *webhook.Payload, normalized webhook.NormalizedMessage) error {
	// Media fetch runs detached while the row is inserted, and is joined
	// before the conversation update.
	var mediaCh chan *media.Saved
	if msg.HasMedia {
		mediaCh = make(chan *media.Saved, 1)
		go service.fetchMedia(key.ChannelIdentifier, msg.MessageID, payload, normalized, mediaCh)
	}

	result, err := service.messages.Insert(ctx, msg)
	if err != nil {
		logrus.WithError(err).Errorf("[INGEST] Store failed for %s", msg.MessageID)
		return err
	}
	if result == chat.Duplicate {
		logrus.Debugf("[INGEST] Duplicate message %s caught at insert", msg.MessageID)
		return nil
	}

	if mediaCh != nil {
		if saved := <-mediaCh; saved != nil {
			msg.MediaURL = saved.InternalURL
			msg.MediaPublicURL = saved.PublicURL
			if err := service.messages.UpdateMedia(ctx, msg.MessageID, msg.MediaType, saved.InternalURL, saved.PublicURL); err != nil {
				logrus.WithError(err).Warnf("[INGEST] Media URL update failed for %s", msg.MessageID)
			}
		}
	}

	// Takeover: keep history and admin visibility, never wake the AI.
	active, err := service.takeovers.Active(ctx, key)
	if err != nil {
		logrus.WithError(err).Warn("[INGEST] Takeover lookup failed")
	}
	if active != nil {
		service.guard.CancelUser(key.VillageID, msg.WaUserID)
		service.touchConversation(ctx, key, msg, pushName)
		logrus.Infof("[INGEST] Takeover active for %s, stored without forwarding", key)
		return nil
	}

	decision := service.guard.Evaluate(key.VillageID, msg.WaUserID, msg.MessageID, msg.MessageText)
	if !decision.ShouldProcess {
		// Spam never enters history; the webhook still acks 2xx upstream.
		if err := service.messages.Delete(ctx, msg.MessageID); err != nil {
			logrus.WithError(err).Warnf("[INGEST] Failed to drop spam row %s", msg.MessageID)
		}
		logrus.Infof("[INGEST] Rejected %s as spam (%s, %dms ban remaining)",
			msg.MessageID, decision.Reason, decision.RemainingBanMs)
		return nil
	}

	if decision.SupersedePrevious {
		if err := service.pendings.MarkCompleted(ctx, decision.SuppressedMessageIDs...); err != nil {
			logrus.WithError(err).Warn("[INGEST] Failed to supersede pending rows")
		}
		logrus.Debugf("[INGEST] Superseded %d message(s) for %s", len(decision.SuppressedMessageIDs), key)
	}

	if err := service.pendings.Create(ctx, &chat.PendingMessage{
		VillageID:         key.VillageID,
		WaUserID:          msg.WaUserID,
		Channel:           key.Channel,
		ChannelIdentifier: key.ChannelIdentifier,
		MessageID:         msg.MessageID,
		MessageText:       msg.MessageText,
	}); err != nil {
		logrus.WithError(err).Warnf("[INGEST] Pending row create failed for %s", msg.MessageID)
	}

	service.touchConversation(ctx, key, msg, pushName)
	if err := service.convs.SetAIStatus(ctx, key, chat.AIStatusProcessing, ""); err != nil {
		logrus.WithError(err).Warn("[INGEST] Failed to set processing status")
	}

	guardInfo := domainBus.SpamGuardInfo{
		IsDuplicate:          false,
		SupersedePrevious:    decision.SupersedePrevious,
		SuppressedMessageIDs: decision.SuppressedMessageIDs,
	}
	for _, m := range decision.Context {
		guardInfo.ContextMessages = append(guardInfo.ContextMessages, domainBus.ContextMessage{
			MessageID:   m.MessageID,
			MessageText: m.Text,
		})
	}
	if err := service.forwarder.Forward(ctx, msg, guardInfo, false); err != nil {
		// Already rescheduled by the forwarder; nothing else to do here.
		logrus.WithError(err).Debugf("[INGEST] Forward deferred for %s", msg.MessageID)
	}
	return nil
}

func (service *serviceIngest) touchConversation(ctx context.Context, key chat.ConversationKey, msg *chat.Message, pushName string) {
	if err := service.convs.TouchInbound(ctx, key, msg.MessageText, msg.Timestamp); err != nil {
		logrus.WithError(err).Warn("[INGEST] Conversation update failed")
		return
	}
	if pushName != "" {
		if err := service.convs.SetUserProfile(ctx, key, pushName, key.ChannelIdentifier); err != nil {
			logrus.WithError(err).Debug("[INGEST] Profile update failed")
		}
	}
}

// fetchMedia tries the provider's media sources in order: s3 URL, inline
// base64, then the JPEG thumbnail fallback for images. A nil send means the
// message proceeds with has_media=true and no URLs.
func (service *serviceIngest) fetchMedia(channelIdentifier, messageID string, payload *webhook.Payload, normalized webhook.NormalizedMessage, out chan<- *media.Saved) {
	defer close(out)
	ctx, cancel := context.WithTimeout(context.Background(), service.mediaTimeout)
	defer cancel()

	if payload.S3 != nil && payload.S3.URL != "" {
		saved, err := service.media.SaveFromURL(ctx, channelIdentifier, messageID, payload.S3.URL, payload.MimeType)
		if err == nil {
			out <- saved
			return
		}
		logrus.WithError(err).Warnf("[INGEST] s3 fetch failed for %s", messageID)
	}

	if payload.Base64 != "" {
		mimeType := payload.MimeType
		if mimeType == "" {
			mimeType = normalized.MimeType
		}
		saved, err := service.media.SaveBase64(channelIdentifier, messageID, payload.Base64, mimeType)
		if err == nil {
			out <- saved
			return
		}
		logrus.WithError(err).Warnf("[INGEST] base64 decode failed for %s", messageID)
	}

	if len(normalized.JPEGThumbnail) > 0 {
		saved, err := service.media.SaveBytes(channelIdentifier, messageID, normalized.JPEGThumbnail, "image/jpeg")
		if err == nil {
			logrus.Debugf("[INGEST] Saved thumbnail fallback for %s", messageID)
			out <- saved
			return
		}
		logrus.WithError(err).Warnf("[INGEST] thumbnail save failed for %s", messageID)
	}

	out <- nil
}

// HandleWebchat pushes a webchat message through the same pipeline as a
// WhatsApp webhook, minus the provider-specific filters.
func (service *serviceIngest) HandleWebchat(ctx context.Context, req webhook.WebchatMessage) error {
	if req.VillageID == "" || req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		return pkgError.ValidationError("village_id, session_id and message are required")
	}
	messageID := req.MessageID
	if messageID == "" {
		messageID = "webchat-" + uuid.NewString()
	}

	exists, err := service.messages.Exists(ctx, messageID)
	if err == nil && exists {
		return nil
	}

	key := chat.ConversationKey{
		VillageID:         req.VillageID,
		Channel:           chat.ChannelWebchat,
		ChannelIdentifier: req.SessionID,
	}
	msg := &chat.Message{
		VillageID:         req.VillageID,
		WaUserID:          req.SessionID,
		Channel:           chat.ChannelWebchat,
		ChannelIdentifier: req.SessionID,
		MessageID:         messageID,
		MessageText:       req.Message,
		Direction:         chat.DirectionIn,
		Source:            chat.SourceWebhook,
		Timestamp:         time.Now().UTC(),
	}

	dispatched := service.pool.TryDispatch(convworker.Job{
		ConversationKey: key.String(),
		Handler: func(workerCtx context.Context) error {
			return service.processInbound(workerCtx, key, msg, req.UserName, &webhook.Payload{}, webhook.NormalizedMessage{Text: req.Message})
		},
	})
	if !dispatched {
		return pkgError.ServerError("inbound worker pool saturated")
	}
	return nil
}
