package chatstorage

import (
	"time"

	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/govconnect/channel-gateway/domains/session"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type messageModel struct {
	ID                string    `gorm:"primaryKey;column:id"`
	VillageID         string    `gorm:"column:village_id;not null;index:idx_messages_conv,priority:1"`
	WaUserID          string    `gorm:"column:wa_user_id;index"`
	Channel           string    `gorm:"column:channel;not null;index:idx_messages_conv,priority:2"`
	ChannelIdentifier string    `gorm:"column:channel_identifier;not null;index:idx_messages_conv,priority:3"`
	MessageID         string    `gorm:"column:message_id;not null;uniqueIndex"`
	MessageText       string    `gorm:"column:message_text;type:text"`
	Direction         string    `gorm:"column:direction;not null"`
	Source            string    `gorm:"column:source;not null"`
	HasMedia          bool      `gorm:"column:has_media;default:false"`
	MediaType         string    `gorm:"column:media_type"`
	MediaURL          string    `gorm:"column:media_url"`
	MediaPublicURL    string    `gorm:"column:media_public_url"`
	Timestamp         time.Time `gorm:"column:timestamp;not null;index"`
}

func (messageModel) TableName() string { return "messages" }

type conversationModel struct {
	ID                string    `gorm:"primaryKey;column:id"`
	VillageID         string    `gorm:"column:village_id;not null;uniqueIndex:idx_conversations_key,priority:1"`
	Channel           string    `gorm:"column:channel;not null;uniqueIndex:idx_conversations_key,priority:2"`
	ChannelIdentifier string    `gorm:"column:channel_identifier;not null;uniqueIndex:idx_conversations_key,priority:3"`
	WaUserID          string    `gorm:"column:wa_user_id"`
	UserName          string    `gorm:"column:user_name"`
	UserPhone         string    `gorm:"column:user_phone"`
	LastMessage       string    `gorm:"column:last_message;type:text"`
	LastMessageAt     time.Time `gorm:"column:last_message_at;index"`
	UnreadCount       int       `gorm:"column:unread_count;default:0"`
	IsTakeover        bool      `gorm:"column:is_takeover;default:false"`
	AIStatus          string    `gorm:"column:ai_status"`
	AIErrorMessage    string    `gorm:"column:ai_error_message"`
	PendingMessageID  string    `gorm:"column:pending_message_id"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (conversationModel) TableName() string { return "conversations" }

type takeoverModel struct {
	ID                string     `gorm:"primaryKey;column:id"`
	VillageID         string     `gorm:"column:village_id;not null;index:idx_takeover_conv,priority:1"`
	Channel           string     `gorm:"column:channel;not null;index:idx_takeover_conv,priority:2"`
	ChannelIdentifier string     `gorm:"column:channel_identifier;not null;index:idx_takeover_conv,priority:3"`
	AdminID           string     `gorm:"column:admin_id;not null"`
	AdminName         string     `gorm:"column:admin_name"`
	Reason            string     `gorm:"column:reason"`
	StartedAt         time.Time  `gorm:"column:started_at;not null"`
	EndedAt           *time.Time `gorm:"column:ended_at;index"`
}

func (takeoverModel) TableName() string { return "takeover_sessions" }

type pendingModel struct {
	ID                string    `gorm:"primaryKey;column:id"`
	VillageID         string    `gorm:"column:village_id;not null;index"`
	WaUserID          string    `gorm:"column:wa_user_id"`
	Channel           string    `gorm:"column:channel;not null"`
	ChannelIdentifier string    `gorm:"column:channel_identifier;not null;index"`
	MessageID         string    `gorm:"column:message_id;not null;uniqueIndex"`
	MessageText       string    `gorm:"column:message_text;type:text"`
	Status            string    `gorm:"column:status;not null;index"`
	RetryCount        int       `gorm:"column:retry_count;default:0"`
	ErrorMsg          string    `gorm:"column:error_msg"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null;index"`
}

func (pendingModel) TableName() string { return "pending_messages" }

type sendLogModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	VillageID string    `gorm:"column:village_id;not null;index"`
	Channel   string    `gorm:"column:channel"`
	Target    string    `gorm:"column:target"`
	Status    string    `gorm:"column:status"`
	Error     string    `gorm:"column:error;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (sendLogModel) TableName() string { return "send_logs" }

type sessionModel struct {
	VillageID        string     `gorm:"primaryKey;column:village_id"`
	InstanceName     *string    `gorm:"column:instance_name;uniqueIndex"`
	AdminID          string     `gorm:"column:admin_id"`
	ProviderToken    string     `gorm:"column:provider_token"`
	Status           string     `gorm:"column:status"`
	WaNumber         string     `gorm:"column:wa_number;index"`
	SupportUserID    string     `gorm:"column:support_user_id"`
	SupportAPIKey    string     `gorm:"column:support_api_key"`
	SupportSessionID string     `gorm:"column:support_session_id"`
	LastConnectedAt  *time.Time `gorm:"column:last_connected_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type channelAccountModel struct {
	VillageID      string    `gorm:"primaryKey;column:village_id"`
	WaNumber       string    `gorm:"column:wa_number"`
	WaToken        string    `gorm:"column:wa_token"`
	WebhookURL     string    `gorm:"column:webhook_url"`
	EnabledWa      bool      `gorm:"column:enabled_wa;default:true"`
	EnabledWebchat bool      `gorm:"column:enabled_webchat;default:true"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (channelAccountModel) TableName() string { return "channel_accounts" }

// AutoMigrate creates every gateway table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&messageModel{},
		&conversationModel{},
		&takeoverModel{},
		&pendingModel{},
		&sendLogModel{},
		&sessionModel{},
		&channelAccountModel{},
	)
}

// --- Mapping ---

func (m *messageModel) toDomain() chat.Message {
	return chat.Message{
		ID:                m.ID,
		VillageID:         m.VillageID,
		WaUserID:          m.WaUserID,
		Channel:           chat.Channel(m.Channel),
		ChannelIdentifier: m.ChannelIdentifier,
		MessageID:         m.MessageID,
		MessageText:       m.MessageText,
		Direction:         chat.Direction(m.Direction),
		Source:            chat.Source(m.Source),
		HasMedia:          m.HasMedia,
		MediaType:         m.MediaType,
		MediaURL:          m.MediaURL,
		MediaPublicURL:    m.MediaPublicURL,
		Timestamp:         m.Timestamp,
	}
}

func (m *conversationModel) toDomain() chat.Conversation {
	return chat.Conversation{
		ID:                m.ID,
		VillageID:         m.VillageID,
		Channel:           chat.Channel(m.Channel),
		ChannelIdentifier: m.ChannelIdentifier,
		WaUserID:          m.WaUserID,
		UserName:          m.UserName,
		UserPhone:         m.UserPhone,
		LastMessage:       m.LastMessage,
		LastMessageAt:     m.LastMessageAt,
		UnreadCount:       m.UnreadCount,
		IsTakeover:        m.IsTakeover,
		AIStatus:          chat.AIStatus(m.AIStatus),
		AIErrorMessage:    m.AIErrorMessage,
		PendingMessageID:  m.PendingMessageID,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (m *takeoverModel) toDomain() chat.TakeoverSession {
	return chat.TakeoverSession{
		ID:                m.ID,
		VillageID:         m.VillageID,
		Channel:           chat.Channel(m.Channel),
		ChannelIdentifier: m.ChannelIdentifier,
		AdminID:           m.AdminID,
		AdminName:         m.AdminName,
		Reason:            m.Reason,
		StartedAt:         m.StartedAt,
		EndedAt:           m.EndedAt,
	}
}

func (m *pendingModel) toDomain() chat.PendingMessage {
	return chat.PendingMessage{
		ID:                m.ID,
		VillageID:         m.VillageID,
		WaUserID:          m.WaUserID,
		Channel:           chat.Channel(m.Channel),
		ChannelIdentifier: m.ChannelIdentifier,
		MessageID:         m.MessageID,
		MessageText:       m.MessageText,
		Status:            chat.PendingStatus(m.Status),
		RetryCount:        m.RetryCount,
		ErrorMsg:          m.ErrorMsg,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (m *sessionModel) toDomain() session.Session {
	instanceName := ""
	if m.InstanceName != nil {
		instanceName = *m.InstanceName
	}
	return session.Session{
		VillageID:        m.VillageID,
		InstanceName:     instanceName,
		AdminID:          m.AdminID,
		ProviderToken:    m.ProviderToken,
		Status:           m.Status,
		WaNumber:         m.WaNumber,
		SupportUserID:    m.SupportUserID,
		SupportAPIKey:    m.SupportAPIKey,
		SupportSessionID: m.SupportSessionID,
		LastConnectedAt:  m.LastConnectedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func (m *channelAccountModel) toDomain() session.ChannelAccount {
	return session.ChannelAccount{
		VillageID:      m.VillageID,
		WaNumber:       m.WaNumber,
		WaToken:        m.WaToken,
		WebhookURL:     m.WebhookURL,
		EnabledWa:      m.EnabledWa,
		EnabledWebchat: m.EnabledWebchat,
		UpdatedAt:      m.UpdatedAt,
	}
}
