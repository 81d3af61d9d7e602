package chat

import (
	"context"
	"time"
)

// Channel identifies where a conversation lives.
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelWebchat  Channel = "WEBCHAT"
)

// Direction of a stored message.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Source of a stored message.
type Source string

const (
	SourceWebhook Source = "WA_WEBHOOK"
	SourceAI      Source = "AI"
	SourceSystem  Source = "SYSTEM"
	SourceAdmin   Source = "ADMIN"
)

// AIStatus reflects what the orchestrator is doing with a conversation.
type AIStatus string

const (
	AIStatusProcessing AIStatus = "processing"
	AIStatusError      AIStatus = "error"
)

// ConversationKey is the tuple every per-conversation operation is scoped by.
type ConversationKey struct {
	VillageID         string
	Channel           Channel
	ChannelIdentifier string
}

func (k ConversationKey) String() string {
	return k.VillageID + "|" + string(k.Channel) + "|" + k.ChannelIdentifier
}

// Message is a single stored chat message. MessageID is globally unique and
// is the idempotency primitive for the whole inbound path.
type Message struct {
	ID                string
	VillageID         string
	WaUserID          string
	Channel           Channel
	ChannelIdentifier string
	MessageID         string
	MessageText       string
	Direction         Direction
	Source            Source
	HasMedia          bool
	MediaType         string
	MediaURL          string
	MediaPublicURL    string
	Timestamp         time.Time
}

// Conversation is the per-user thread state shown on the dashboard.
type Conversation struct {
	ID                string
	VillageID         string
	Channel           Channel
	ChannelIdentifier string
	WaUserID          string
	UserName          string
	UserPhone         string
	LastMessage       string
	LastMessageAt     time.Time
	UnreadCount       int
	IsTakeover        bool
	AIStatus          AIStatus
	AIErrorMessage    string
	PendingMessageID  string
	UpdatedAt         time.Time
}

// TakeoverSession records a human admin replacing the AI for a conversation.
// At most one row per conversation has EndedAt == nil.
type TakeoverSession struct {
	ID                string
	VillageID         string
	Channel           Channel
	ChannelIdentifier string
	AdminID           string
	AdminName         string
	Reason            string
	StartedAt         time.Time
	EndedAt           *time.Time
}

// PendingStatus is the lifecycle state of a queued inbound message.
type PendingStatus string

const (
	PendingStatusPending    PendingStatus = "pending"
	PendingStatusProcessing PendingStatus = "processing"
	PendingStatusCompleted  PendingStatus = "completed"
	PendingStatusFailed     PendingStatus = "failed"
)

// MaxPendingRetries caps retry_count before a pending row is marked failed.
const MaxPendingRetries = 5

// PendingMessage tracks an inbound message awaiting (or undergoing) an AI turn.
type PendingMessage struct {
	ID                string
	VillageID         string
	WaUserID          string
	Channel           Channel
	ChannelIdentifier string
	MessageID         string
	MessageText       string
	Status            PendingStatus
	RetryCount        int
	ErrorMsg          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SendLog is an append-only audit row for outbound provider attempts.
type SendLog struct {
	ID        string
	VillageID string
	Channel   Channel
	Target    string
	Status    string
	Error     string
	CreatedAt time.Time
}

// InsertResult tells the caller whether a message row was actually created.
// Duplicates are a result, not an error, so callers pattern-match instead of
// unwrapping exceptions.
type InsertResult int

const (
	Inserted InsertResult = iota
	Duplicate
)

// MaxMessagesPerConversation is the FIFO truncation bound.
const MaxMessagesPerConversation = 30

// IMessageRepository persists messages with per-conversation FIFO truncation.
type IMessageRepository interface {
	Insert(ctx context.Context, msg *Message) (InsertResult, error)
	UpdateMedia(ctx context.Context, messageID, mediaType, mediaURL, mediaPublicURL string) error
	Delete(ctx context.Context, messageID string) error
	Exists(ctx context.Context, messageID string) (bool, error)
	ListByConversation(ctx context.Context, key ConversationKey, limit int) ([]Message, error)
	DeleteByConversation(ctx context.Context, key ConversationKey) error
	CountByConversation(ctx context.Context, key ConversationKey) (int64, error)
}

// IConversationRepository upserts conversation state on composite keys.
type IConversationRepository interface {
	Upsert(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, key ConversationKey) (*Conversation, error)
	GetByID(ctx context.Context, villageID, id string) (*Conversation, error)
	List(ctx context.Context, villageID string, takeoverOnly *bool, limit, offset int) ([]Conversation, int64, error)
	TouchInbound(ctx context.Context, key ConversationKey, lastMessage string, at time.Time) error
	TouchOutbound(ctx context.Context, key ConversationKey, lastMessage string, at time.Time) error
	SetAIStatus(ctx context.Context, key ConversationKey, status AIStatus, errMsg string) error
	ClearAIStatus(ctx context.Context, key ConversationKey) error
	SetTakeover(ctx context.Context, key ConversationKey, takeover bool) error
	SetUserProfile(ctx context.Context, key ConversationKey, name, phone string) error
	MarkRead(ctx context.Context, key ConversationKey) error
	Delete(ctx context.Context, key ConversationKey) error
}

// ITakeoverRepository keeps takeover rows in lockstep with the conversation flag.
type ITakeoverRepository interface {
	Active(ctx context.Context, key ConversationKey) (*TakeoverSession, error)
	Start(ctx context.Context, session *TakeoverSession) error
	End(ctx context.Context, key ConversationKey, at time.Time) (int64, error)
	DeleteByConversation(ctx context.Context, key ConversationKey) error
}

// IPendingRepository implements the pending-message queue lifecycle.
type IPendingRepository interface {
	Create(ctx context.Context, pm *PendingMessage) error
	Get(ctx context.Context, messageID string) (*PendingMessage, error)
	Latest(ctx context.Context, key ConversationKey) (*PendingMessage, error)
	MarkProcessing(ctx context.Context, messageID string) error
	MarkCompleted(ctx context.Context, messageIDs ...string) error
	MarkFailed(ctx context.Context, messageID, errMsg string) error
	List(ctx context.Context, villageID string, limit int) ([]PendingMessage, error)
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ISendLogRepository appends outbound audit rows.
type ISendLogRepository interface {
	Append(ctx context.Context, log *SendLog) error
}
