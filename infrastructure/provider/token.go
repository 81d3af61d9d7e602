package provider

import (
	"context"
	"fmt"

	"github.com/govconnect/channel-gateway/domains/session"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

// TokenResolver resolves the gateway token for a tenant on every outbound
// call. Order: session by village_id, then session by instance_name, then
// the channel account's reserved token. There is no process-wide fallback
// token by design of the tenancy model.
type TokenResolver struct {
	sessions session.ISessionRepository
	accounts session.IChannelAccountRepository
}

func NewTokenResolver(sessions session.ISessionRepository, accounts session.IChannelAccountRepository) *TokenResolver {
	return &TokenResolver{sessions: sessions, accounts: accounts}
}

// Resolve returns the token for villageID, trying instanceName as a
// secondary key when the direct lookup misses.
func (r *TokenResolver) Resolve(ctx context.Context, villageID, instanceName string) (string, error) {
	if villageID != "" {
		s, err := r.sessions.Get(ctx, villageID)
		if err != nil {
			return "", err
		}
		if s != nil && s.ProviderToken != "" {
			return s.ProviderToken, nil
		}
	}

	if instanceName != "" {
		s, err := r.sessions.GetByInstanceName(ctx, instanceName)
		if err != nil {
			return "", err
		}
		if s != nil && s.ProviderToken != "" {
			return s.ProviderToken, nil
		}
	}

	if villageID != "" {
		a, err := r.accounts.Get(ctx, villageID)
		if err != nil {
			return "", err
		}
		if a != nil && a.WaToken != "" {
			return a.WaToken, nil
		}
	}

	return "", pkgError.ConfigError(fmt.Sprintf("no provider token configured for village %q", villageID))
}
