package session

import (
	"context"
	"time"
)

// Status values for a tenant session.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Session is the single WhatsApp session row a tenant owns.
type Session struct {
	VillageID        string
	InstanceName     string
	AdminID          string
	ProviderToken    string
	Status           string
	WaNumber         string
	SupportUserID    string
	SupportAPIKey    string
	SupportSessionID string
	LastConnectedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ChannelAccount carries the per-tenant channel toggles and reserved token.
// EnabledWa=false short-circuits every outbound WhatsApp send regardless of
// session state.
type ChannelAccount struct {
	VillageID      string
	WaNumber       string
	WaToken        string
	WebhookURL     string
	EnabledWa      bool
	EnabledWebchat bool
	UpdatedAt      time.Time
}

// ISessionRepository persists sessions keyed by village_id with
// instance_name as a second unique key.
type ISessionRepository interface {
	Upsert(ctx context.Context, s *Session) error
	Get(ctx context.Context, villageID string) (*Session, error)
	GetByInstanceName(ctx context.Context, instanceName string) (*Session, error)
	FindConnectedByNumber(ctx context.Context, waNumber, excludeVillageID string) (*Session, error)
	UpdateStatus(ctx context.Context, villageID, status string, at time.Time) error
	UpdateNumber(ctx context.Context, villageID, waNumber string) error
	Delete(ctx context.Context, villageID string) error
}

// IChannelAccountRepository persists per-tenant channel accounts.
type IChannelAccountRepository interface {
	Upsert(ctx context.Context, a *ChannelAccount) error
	Get(ctx context.Context, villageID string) (*ChannelAccount, error)
	List(ctx context.Context) ([]ChannelAccount, error)
	SetEnabled(ctx context.Context, villageID string, wa, webchat bool) error
	UpdateNumber(ctx context.Context, villageID, waNumber string) error
}

// CreateRequest provisions a provider-side account for a tenant.
type CreateRequest struct {
	VillageID    string `json:"village_id"`
	AdminID      string `json:"admin_id,omitempty"`
	InstanceName string `json:"instance_name,omitempty"`
}

// StatusResponse is the reconciled provider status for a tenant session.
type StatusResponse struct {
	VillageID    string `json:"village_id"`
	Status       string `json:"status"`
	WaNumber     string `json:"wa_number,omitempty"`
	InstanceName string `json:"instance_name,omitempty"`
	LoggedIn     bool   `json:"logged_in"`
}

// QRResponse carries the pairing QR for a not-yet-connected session.
type QRResponse struct {
	QRCode    string `json:"qr_code,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// PairPhoneRequest asks the provider for a pairing code.
type PairPhoneRequest struct {
	VillageID string `json:"village_id"`
	Phone     string `json:"phone"`
}

// DuplicateCheckResponse reports a cross-tenant number conflict.
type DuplicateCheckResponse struct {
	IsDuplicate       bool   `json:"isDuplicate"`
	ExistingVillageID string `json:"existingVillageId,omitempty"`
}

// ForceDisconnectRequest is the explicit admin override for a hijacked number.
type ForceDisconnectRequest struct {
	TargetVillageID string `json:"target_village_id"`
}

// ISessionUsecase is the tenant session lifecycle.
type ISessionUsecase interface {
	Create(ctx context.Context, req CreateRequest) (*Session, error)
	Status(ctx context.Context, villageID string) (*StatusResponse, error)
	Connect(ctx context.Context, villageID string) (*StatusResponse, error)
	Disconnect(ctx context.Context, villageID string) (*StatusResponse, error)
	Logout(ctx context.Context, villageID string) error
	Delete(ctx context.Context, villageID string) error
	QR(ctx context.Context, villageID string) (*QRResponse, error)
	PairPhone(ctx context.Context, req PairPhoneRequest) (string, error)
	SessionSettings(ctx context.Context, villageID string) (map[string]interface{}, error)
	CheckDuplicate(ctx context.Context, villageID, waNumber string) (*DuplicateCheckResponse, error)
	ForceDisconnectOther(ctx context.Context, currentVillageID, targetVillageID string) error
}
