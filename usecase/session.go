package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type serviceSession struct {
	sessions      domainSession.ISessionRepository
	accounts      domainSession.IChannelAccountRepository
	provider      *provider.Client
	publicBaseURL string
}

func NewSessionService(
	sessions domainSession.ISessionRepository,
	accounts domainSession.IChannelAccountRepository,
	providerClient *provider.Client,
	publicBaseURL string,
) domainSession.ISessionUsecase {
	return &serviceSession{
		sessions:      sessions,
		accounts:      accounts,
		provider:      providerClient,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Create provisions the provider-side account and session for a tenant.
// Legacy sessions (no support user) are logged out and deleted first so the
// tenant lands on the control-plane model.
func (service *serviceSession) Create(ctx context.Context, req domainSession.CreateRequest) (*domainSession.Session, error) {
	if req.VillageID == "" {
		return nil, pkgError.ValidationError("village_id: cannot be blank.")
	}

	existing, err := service.sessions.Get(ctx, req.VillageID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SupportUserID == "" {
		logrus.Infof("[SESSION] Legacy session for %s, cleaning up before re-provisioning", req.VillageID)
		if existing.ProviderToken != "" {
			if err := service.provider.Logout(ctx, existing.ProviderToken); err != nil {
				logrus.WithError(err).Warn("[SESSION] Legacy logout failed, continuing")
			}
		}
		if err := service.sessions.Delete(ctx, req.VillageID); err != nil {
			return nil, err
		}
		existing = nil
	}

	instanceName := req.InstanceName
	if instanceName == "" {
		instanceName = req.VillageID
	}

	if !service.provider.HasSupportPlane() {
		// Degraded mode: no control plane configured, the gateway session
		// is created directly.
		return service.createDirect(ctx, req, instanceName)
	}

	user, err := service.provider.CreateUser(ctx, instanceName)
	if err != nil {
		return nil, err
	}
	apiKey := user.APIKey
	if apiKey == "" {
		// Existing user: the key is only returned on first creation, so a
		// rotation is required to hold a usable credential.
		apiKey, err = service.provider.RotateUserKey(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}

	supportSession, err := service.provider.CreateSession(ctx, provider.CreateSessionRequest{
		UserID:          user.ID,
		Name:            instanceName,
		AutoReadEnabled: true,
		TypingEnabled:   true,
		Events:          "All",
		WebhookURL:      service.publicBaseURL + "/webhook",
	})
	if err != nil {
		return nil, err
	}

	s := &domainSession.Session{
		VillageID:        req.VillageID,
		InstanceName:     instanceName,
		AdminID:          req.AdminID,
		ProviderToken:    supportSession.Token,
		Status:           domainSession.StatusDisconnected,
		SupportUserID:    user.ID,
		SupportAPIKey:    apiKey,
		SupportSessionID: supportSession.ID,
	}
	if err := service.sessions.Upsert(ctx, s); err != nil {
		return nil, err
	}
	if err := service.accounts.Upsert(ctx, &domainSession.ChannelAccount{
		VillageID:      req.VillageID,
		WaToken:        supportSession.Token,
		WebhookURL:     service.publicBaseURL + "/webhook",
		EnabledWa:      true,
		EnabledWebchat: true,
	}); err != nil {
		logrus.WithError(err).Warn("[SESSION] Channel account upsert failed")
	}

	logrus.Infof("[SESSION] Provisioned session for %s (instance %s)", req.VillageID, instanceName)
	return s, nil
}

func (service *serviceSession) createDirect(ctx context.Context, req domainSession.CreateRequest, instanceName string) (*domainSession.Session, error) {
	s := &domainSession.Session{
		VillageID:     req.VillageID,
		InstanceName:  instanceName,
		AdminID:       req.AdminID,
		ProviderToken: uuid.NewString(),
		Status:        domainSession.StatusDisconnected,
	}
	if err := service.sessions.Upsert(ctx, s); err != nil {
		return nil, err
	}
	logrus.Warnf("[SESSION] Created session for %s without support plane (degraded mode)", req.VillageID)
	return s, nil
}

// Status reconciles provider status and wa_number into the local rows.
func (service *serviceSession) Status(ctx context.Context, villageID string) (*domainSession.StatusResponse, error) {
	s, err := service.requireSession(ctx, villageID)
	if err != nil {
		return nil, err
	}

	status, err := service.provider.Status(ctx, s.ProviderToken)
	if err != nil {
		return nil, err
	}

	newStatus := domainSession.StatusDisconnected
	if status.Connected {
		newStatus = domainSession.StatusConnected
	}
	if err := service.sessions.UpdateStatus(ctx, villageID, newStatus, time.Now().UTC()); err != nil {
		logrus.WithError(err).Warn("[SESSION] Status persist failed")
	}

	waNumber := s.WaNumber
	if status.JID != "" {
		waNumber = utils.StripJID(status.JID)
		if waNumber != s.WaNumber {
			if err := service.sessions.UpdateNumber(ctx, villageID, waNumber); err != nil {
				logrus.WithError(err).Warn("[SESSION] Number reconcile failed on session")
			}
			if err := service.accounts.UpdateNumber(ctx, villageID, waNumber); err != nil {
				logrus.WithError(err).Warn("[SESSION] Number reconcile failed on channel account")
			}
		}
	}

	return &domainSession.StatusResponse{
		VillageID:    villageID,
		Status:       newStatus,
		WaNumber:     waNumber,
		InstanceName: s.InstanceName,
		LoggedIn:     status.LoggedIn,
	}, nil
}

// Connect refuses to proceed while another tenant holds the same number
// connected; the admin resolves the conflict with ForceDisconnectOther.
func (service *serviceSession) Connect(ctx context.Context, villageID string) (*domainSession.StatusResponse, error) {
	s, err := service.requireSession(ctx, villageID)
	if err != nil {
		return nil, err
	}

	if s.WaNumber != "" {
		dup, err := service.CheckDuplicate(ctx, villageID, s.WaNumber)
		if err != nil {
			return nil, err
		}
		if dup.IsDuplicate {
			return nil, pkgError.ValidationError(fmt.Sprintf(
				"number %s is already connected on village %s", s.WaNumber, dup.ExistingVillageID))
		}
	}

	if err := service.provider.Connect(ctx, s.ProviderToken); err != nil {
		return nil, err
	}
	return service.resyncStatus(ctx, villageID)
}

func (service *serviceSession) Disconnect(ctx context.Context, villageID string) (*domainSession.StatusResponse, error) {
	s, err := service.requireSession(ctx, villageID)
	if err != nil {
		return nil, err
	}
	if err := service.provider.Disconnect(ctx, s.ProviderToken); err != nil {
		return nil, err
	}
	return service.resyncStatus(ctx, villageID)
}

func (service *serviceSession) Logout(ctx context.Context, villageID string) error {
	s, err := service.requireSession(ctx, villageID)
	if err != nil {
		return err
	}
	if err := service.provider.Logout(ctx, s.ProviderToken); err != nil {
		return err
	}
	if _, err := service.resyncStatus(ctx, villageID); err != nil {
		logrus.WithError(err).Debug("[SESSION] Post-logout resync failed")
	}
	return nil
}

// Delete tears a tenant session down: provider logout and support-side
// session removal are best-effort, the local row removal is not.
func (service *serviceSession) Delete(ctx context.Context, villageID string) error {
	s, err := service.sessions.Get(ctx, villageID)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}

	if s.ProviderToken != "" {
		if err := service.provider.Logout(ctx, s.ProviderToken); err != nil {
			logrus.WithError(err).Warn("[SESSION] Upstream logout failed during delete")
		}
	}
	if s.SupportSessionID != "" {
		if err := service.provider.DeleteSession(ctx, s.SupportSessionID); err != nil {
			logrus.WithError(err).Warn("[SESSION] Support session delete failed")
		}
	}
	if err := service.sessions.Delete(ctx, villageID); err != nil {
		return err
	}
	if err := service.accounts.SetEnabled(ctx, villageID, false, false); err != nil {
		logrus.WithError(err).Warn("[SESSION] Channel account disable failed")
	}
	logrus.Infof("[SESSION] Deleted session for %s", villageID)
	return nil
}

func (service *serviceSession) QR(ctx context.Context, villageID string) (*domainSession.QRResponse, error) {
	s, err := service.requireSession(ctx, villageID)
	if err != nil {
		return nil, err
	}
	qr, err := service.provider.QR(ctx, s.ProviderToken)
	if err != nil {
		return nil, err
	}
	return &domainSession.QRResponse{QRCode: qr.QRCode, ExpiresIn: qr.Duration}, nil
}

func (service *serviceSession) PairPhone(ctx context.Context, req domainSession.PairPhoneRequest) (string, error) {
	if req.Phone == "" {
		return "", pkgError.ValidationError("phone: cannot be blank.")
	}
	s, err := service.requireSession(ctx, req.VillageID)
	if err != nil {
		return "", err
	}
	return service.provider.PairPhone(ctx, s.ProviderToken, req.Phone)
}

func (service *serviceSession) SessionSettings(ctx context.Context, villageID string) (map[string]interface{}, error) {
	s, err := service.requireSession(ctx, villageID)
	if err != nil {
		return nil, err
	}
	if s.SupportSessionID == "" {
		return nil, pkgError.TenantNotConfiguredError("session has no support-plane identity")
	}
	settings, err := service.provider.GetSessionSettings(ctx, s.SupportSessionID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"auto_read_enabled": settings.AutoReadEnabled,
		"typing_enabled":    settings.TypingEnabled,
		"events":            settings.Events,
		"webhook_url":       settings.WebhookURL,
	}, nil
}

// CheckDuplicate probes whether another tenant holds wa_number connected.
func (service *serviceSession) CheckDuplicate(ctx context.Context, villageID, waNumber string) (*domainSession.DuplicateCheckResponse, error) {
	if waNumber == "" {
		return &domainSession.DuplicateCheckResponse{}, nil
	}
	other, err := service.sessions.FindConnectedByNumber(ctx, utils.NormalizePhone(waNumber), villageID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return &domainSession.DuplicateCheckResponse{}, nil
	}
	return &domainSession.DuplicateCheckResponse{
		IsDuplicate:       true,
		ExistingVillageID: other.VillageID,
	}, nil
}

// ForceDisconnectOther is the explicit admin override for a number held by
// another tenant. Never called implicitly.
func (service *serviceSession) ForceDisconnectOther(ctx context.Context, currentVillageID, targetVillageID string) error {
	if targetVillageID == "" || targetVillageID == currentVillageID {
		return pkgError.ValidationError("target_village_id must name another village")
	}
	target, err := service.sessions.Get(ctx, targetVillageID)
	if err != nil {
		return err
	}
	if target == nil {
		return pkgError.NotFoundError(fmt.Sprintf("village %s has no session", targetVillageID))
	}

	logrus.Warnf("[SESSION] Force disconnect of %s requested by %s", targetVillageID, currentVillageID)
	if target.ProviderToken != "" {
		if err := service.provider.Disconnect(ctx, target.ProviderToken); err != nil {
			logrus.WithError(err).Warn("[SESSION] Forced disconnect upstream call failed")
		}
	}
	return service.Delete(ctx, targetVillageID)
}

func (service *serviceSession) requireSession(ctx context.Context, villageID string) (*domainSession.Session, error) {
	if villageID == "" {
		return nil, pkgError.ValidationError("village_id: cannot be blank.")
	}
	s, err := service.sessions.Get(ctx, villageID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, pkgError.TenantNotConfiguredError(fmt.Sprintf("village %s has no session", villageID))
	}
	return s, nil
}

func (service *serviceSession) resyncStatus(ctx context.Context, villageID string) (*domainSession.StatusResponse, error) {
	status, err := service.Status(ctx, villageID)
	if err != nil {
		logrus.WithError(err).Debug("[SESSION] Best-effort resync failed")
		s, getErr := service.sessions.Get(ctx, villageID)
		if getErr != nil || s == nil {
			return nil, err
		}
		return &domainSession.StatusResponse{
			VillageID:    villageID,
			Status:       s.Status,
			WaNumber:     s.WaNumber,
			InstanceName: s.InstanceName,
		}, nil
	}
	return status, nil
}
