package messaging

import (
	"context"

	"github.com/govconnect/channel-gateway/domains/chat"
)

type StoreRequest struct {
	VillageID         string `json:"village_id"`
	WaUserID          string `json:"wa_user_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
	MessageID         string `json:"message_id,omitempty"`
	Message           string `json:"message"`
	Direction         string `json:"direction"`
	Source            string `json:"source,omitempty"`
}

type HistoryRequest struct {
	VillageID         string `json:"village_id" query:"village_id"`
	Channel           string `json:"channel" query:"channel"`
	ChannelIdentifier string `json:"channel_identifier" query:"channel_identifier"`
	WaUserID          string `json:"wa_user_id" query:"wa_user_id"`
	Limit             int    `json:"limit" query:"limit"`
}

type SendRequest struct {
	VillageID string `json:"village_id,omitempty"`
	WaUserID  string `json:"wa_user_id"`
	Message   string `json:"message"`
}

type SendResponse struct {
	MessageID string `json:"message_id"`
}

type TypingRequest struct {
	VillageID string `json:"village_id"`
	WaUserID  string `json:"wa_user_id"`
	Typing    bool   `json:"typing"`
}

type ReadRequest struct {
	VillageID         string   `json:"village_id"`
	Channel           string   `json:"channel,omitempty"`
	ChannelIdentifier string   `json:"channel_identifier,omitempty"`
	WaUserID          string   `json:"wa_user_id,omitempty"`
	MessageIDs        []string `json:"message_ids,omitempty"`
}

type UserProfileRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel,omitempty"`
	ChannelIdentifier string `json:"channel_identifier"`
	Name              string `json:"name,omitempty"`
	Phone             string `json:"phone,omitempty"`
}

// IMessagingUsecase backs the /internal/messages family of routes used by
// the AI orchestrator and the dashboard backend.
type IMessagingUsecase interface {
	Store(ctx context.Context, req StoreRequest) (*chat.Message, error)
	History(ctx context.Context, req HistoryRequest) ([]chat.Message, error)
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
	Typing(ctx context.Context, req TypingRequest) error
	MarkRead(ctx context.Context, req ReadRequest) error
	SetUserProfile(ctx context.Context, req UserProfileRequest) error
}
