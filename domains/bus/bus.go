package bus

import "context"

// Routing keys on the govconnect.events topic exchange. These strings are
// part of the platform contract and must match the AI orchestrator exactly.
const (
	KeyMessageReceived = "whatsapp.message.received"
	KeyAIReply         = "ai.reply"
	KeyAIError         = "ai.error"
	KeyMessageStatus   = "message.status"
)

// Queue names are stable per consumer so redeliveries survive restarts.
const (
	QueueAIReply       = "channel.ai.reply"
	QueueAIError       = "channel.ai.error"
	QueueMessageStatus = "channel.message.status"
)

// ContextMessage is one entry of the accumulated bubble context.
type ContextMessage struct {
	MessageID   string `json:"message_id"`
	MessageText string `json:"message_text"`
}

// SpamGuardInfo travels with every inbound event so the orchestrator knows
// how the bubble was collapsed.
type SpamGuardInfo struct {
	IsDuplicate          bool             `json:"isDuplicate"`
	SupersedePrevious    bool             `json:"supersedePrevious"`
	SuppressedMessageIDs []string         `json:"suppressedMessageIds,omitempty"`
	ContextMessages      []ContextMessage `json:"contextMessages,omitempty"`
}

// InboundMessageEvent is published to whatsapp.message.received.
type InboundMessageEvent struct {
	VillageID         string        `json:"village_id"`
	WaUserID          string        `json:"wa_user_id"`
	Channel           string        `json:"channel"`
	ChannelIdentifier string        `json:"channel_identifier"`
	Message           string        `json:"message"`
	MessageID         string        `json:"message_id"`
	ReceivedAt        string        `json:"received_at"`
	BatchedMessageIDs []string      `json:"batched_message_ids"`
	HasMedia          bool          `json:"has_media"`
	MediaType         string        `json:"media_type,omitempty"`
	MediaURL          string        `json:"media_url,omitempty"`
	MediaPublicURL    string        `json:"media_public_url,omitempty"`
	IsRetry           bool          `json:"is_retry,omitempty"`
	SpamGuard         SpamGuardInfo `json:"spam_guard"`
}

// AIReplyEvent is consumed from ai.reply.
type AIReplyEvent struct {
	VillageID         string   `json:"village_id"`
	WaUserID          string   `json:"wa_user_id"`
	Channel           string   `json:"channel,omitempty"`
	ChannelIdentifier string   `json:"channel_identifier,omitempty"`
	ReplyText         string   `json:"reply_text"`
	GuidanceText      string   `json:"guidance_text,omitempty"`
	MessageID         string   `json:"message_id,omitempty"`
	BatchedMessageIDs []string `json:"batched_message_ids,omitempty"`
}

// AIErrorEvent is consumed from ai.error.
type AIErrorEvent struct {
	VillageID         string   `json:"village_id"`
	WaUserID          string   `json:"wa_user_id"`
	Channel           string   `json:"channel,omitempty"`
	ChannelIdentifier string   `json:"channel_identifier,omitempty"`
	ErrorMessage      string   `json:"error_message"`
	BatchedMessageIDs []string `json:"batched_message_ids,omitempty"`
}

// MessageStatusEvent is consumed from message.status and drives the
// pending-message queue.
type MessageStatusEvent struct {
	VillageID string `json:"village_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// IEventPublisher abstracts the producer side so usecases can be tested
// against an in-memory double.
type IEventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	IsConnected() bool
}

// HandlerFunc processes one delivery. A non-nil error nacks the delivery
// without requeue.
type HandlerFunc func(ctx context.Context, body []byte) error
