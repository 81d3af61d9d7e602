package livechat

import (
	"context"

	"github.com/govconnect/channel-gateway/domains/chat"
)

// Filter selects which conversations to list.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterTakeover Filter = "takeover"
	FilterBot      Filter = "bot"
)

type ListRequest struct {
	VillageID string `json:"village_id" query:"village_id"`
	Filter    Filter `json:"filter" query:"filter"`
	Limit     int    `json:"limit" query:"limit"`
	Offset    int    `json:"offset" query:"offset"`
}

type ListResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
	Total         int64               `json:"total"`
}

type DetailResponse struct {
	Conversation chat.Conversation     `json:"conversation"`
	Messages     []chat.Message        `json:"messages"`
	Takeover     *chat.TakeoverSession `json:"takeover,omitempty"`
}

type StartTakeoverRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
	AdminID           string `json:"admin_id"`
	AdminName         string `json:"admin_name,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

type EndTakeoverRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
}

type AdminSendRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
	Message           string `json:"message"`
	AdminID           string `json:"admin_id"`
}

// ILiveChatUsecase is the dashboard-facing conversation surface.
type ILiveChatUsecase interface {
	Conversations(ctx context.Context, req ListRequest) (*ListResponse, error)
	Conversation(ctx context.Context, villageID, id, channelIdentifier string) (*DetailResponse, error)
	ActiveTakeover(ctx context.Context, key chat.ConversationKey) (*chat.TakeoverSession, error)
	StartTakeover(ctx context.Context, req StartTakeoverRequest) (*chat.TakeoverSession, error)
	EndTakeover(ctx context.Context, req EndTakeoverRequest) error
	AdminSend(ctx context.Context, req AdminSendRequest) (*chat.Message, error)
	MarkAsRead(ctx context.Context, key chat.ConversationKey) error
	DeleteConversation(ctx context.Context, key chat.ConversationKey) error
	RetryAI(ctx context.Context, key chat.ConversationKey) error
}
