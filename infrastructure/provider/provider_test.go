package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govconnect/channel-gateway/domains/session"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

func TestSendTextNormalizesPhone(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/send/message", r.URL.Path)
		require.Equal(t, "tok-1", r.Header.Get("X-Instance-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(SendResult{MessageID: "wamid.out.1"})
	}))
	defer srv.Close()

	c := NewClient(Options{GatewayURL: srv.URL})
	res, err := c.SendText(context.Background(), "tok-1", "08111222333@s.whatsapp.net", "halo")
	require.NoError(t, err)
	assert.Equal(t, "wamid.out.1", res.MessageID)
	assert.Equal(t, "628111222333", got["phone"])
}

func TestSendTextDryRun(t *testing.T) {
	c := NewClient(Options{DryRun: true})
	res, err := c.SendText(context.Background(), "", "628111", "halo")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "dryrun-"))
}

func TestSendTextWithoutGatewayURL(t *testing.T) {
	c := NewClient(Options{})
	_, err := c.SendText(context.Background(), "tok", "628111", "halo")
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "CONFIG_ERROR", ge.ErrCode())
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, "AUTH_ERROR"},
		{http.StatusForbidden, "AUTH_ERROR"},
		{http.StatusBadRequest, "VALIDATION_ERROR"},
		{http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{http.StatusInternalServerError, "SERVER_ERROR"},
		{http.StatusBadGateway, "SERVER_ERROR"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewClient(Options{GatewayURL: srv.URL})
		_, err := c.SendText(context.Background(), "tok", "628111", "halo")
		srv.Close()

		var ge pkgError.GenericError
		require.ErrorAs(t, err, &ge, "status %d", tc.status)
		assert.Equal(t, tc.code, ge.ErrCode(), "status %d", tc.status)
	}
}

func TestNetworkAndTimeoutErrors(t *testing.T) {
	c := NewClient(Options{GatewayURL: "http://127.0.0.1:1"})
	_, err := c.SendText(context.Background(), "tok", "628111", "halo")
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "NETWORK_ERROR", ge.ErrCode())

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	c = NewClient(Options{GatewayURL: slow.URL, RequestTimeout: 50 * time.Millisecond})
	_, err = c.SendText(context.Background(), "tok", "628111", "halo")
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "TIMEOUT", ge.ErrCode())
}

func TestSupportKeySourcePrefixStripped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret-key", r.Header.Get("X-Api-Key"))
		json.NewEncoder(w).Encode(SupportUser{ID: "u1", APIKey: "fresh"})
	}))
	defer srv.Close()

	c := NewClient(Options{SupportURL: srv.URL, SupportAPIKey: "dashboard:secret-key"})
	u, err := c.CreateUser(context.Background(), "desa-a")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "fresh", u.APIKey)
}

func TestSupportPlaneUnconfigured(t *testing.T) {
	c := NewClient(Options{})
	_, err := c.CreateUser(context.Background(), "desa-a")
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "CONFIG_ERROR", ge.ErrCode())
	assert.False(t, c.HasSupportPlane())
}

func TestBuildVCard(t *testing.T) {
	v := BuildVCard("Budi Santoso", "08123456789")
	assert.Contains(t, v, "BEGIN:VCARD")
	assert.Contains(t, v, "N:Santoso;Budi;;;")
	assert.Contains(t, v, "FN:Budi Santoso")
	assert.Contains(t, v, "TEL;type=CELL;type=pref:+628123456789")
	assert.True(t, strings.HasSuffix(v, "END:VCARD"))

	single := BuildVCard("Siti", "628999")
	assert.Contains(t, single, "N:;Siti;;;")
}

type fakeSessionRepo struct {
	session.ISessionRepository
	byVillage  map[string]*session.Session
	byInstance map[string]*session.Session
}

func (f *fakeSessionRepo) Get(ctx context.Context, villageID string) (*session.Session, error) {
	return f.byVillage[villageID], nil
}

func (f *fakeSessionRepo) GetByInstanceName(ctx context.Context, name string) (*session.Session, error) {
	return f.byInstance[name], nil
}

type fakeAccountRepo struct {
	session.IChannelAccountRepository
	accounts map[string]*session.ChannelAccount
}

func (f *fakeAccountRepo) Get(ctx context.Context, villageID string) (*session.ChannelAccount, error) {
	return f.accounts[villageID], nil
}

func TestTokenResolutionOrder(t *testing.T) {
	sessions := &fakeSessionRepo{
		byVillage: map[string]*session.Session{
			"V1": {VillageID: "V1", ProviderToken: "session-token"},
		},
		byInstance: map[string]*session.Session{
			"desa-b": {VillageID: "V2", ProviderToken: "instance-token"},
		},
	}
	accounts := &fakeAccountRepo{
		accounts: map[string]*session.ChannelAccount{
			"V3": {VillageID: "V3", WaToken: "reserved-token"},
		},
	}
	r := NewTokenResolver(sessions, accounts)
	ctx := context.Background()

	tok, err := r.Resolve(ctx, "V1", "")
	require.NoError(t, err)
	assert.Equal(t, "session-token", tok)

	tok, err = r.Resolve(ctx, "V2", "desa-b")
	require.NoError(t, err)
	assert.Equal(t, "instance-token", tok)

	tok, err = r.Resolve(ctx, "V3", "")
	require.NoError(t, err)
	assert.Equal(t, "reserved-token", tok)

	_, err = r.Resolve(ctx, "V4", "missing")
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "CONFIG_ERROR", ge.ErrCode())
}
