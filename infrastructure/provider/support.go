package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// SupportUser is a tenant account on the provider's customer control plane.
type SupportUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key,omitempty"`
}

// SupportSession is a customer session owned by a support user.
type SupportSession struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	WebhookURL string `json:"webhook_url,omitempty"`
	Connected  bool   `json:"connected"`
}

// SessionSettings is the provider-side per-session configuration.
type SessionSettings struct {
	AutoReadEnabled bool   `json:"auto_read_enabled"`
	TypingEnabled   bool   `json:"typing_enabled"`
	Events          string `json:"events"`
	WebhookURL      string `json:"webhook_url,omitempty"`
}

// CreateUser provisions (or re-uses) a support-plane user. The provider
// treats the call as an idempotent upsert; the api_key field is only
// populated on first creation.
func (c *Client) CreateUser(ctx context.Context, name string) (*SupportUser, error) {
	if err := c.supportConfigured(); err != nil {
		return nil, err
	}
	body := map[string]string{"name": name}
	var out SupportUser
	if err := c.doJSON(ctx, c.sessionClient, http.MethodPost, c.supportURL+"/admin/users", c.supportHeaders(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RotateUserKey issues a fresh api-key for an existing support user.
func (c *Client) RotateUserKey(ctx context.Context, userID string) (string, error) {
	if err := c.supportConfigured(); err != nil {
		return "", err
	}
	var out struct {
		APIKey string `json:"api_key"`
	}
	path := fmt.Sprintf("/admin/users/%s/rotate-key", url.PathEscape(userID))
	if err := c.doJSON(ctx, c.sessionClient, http.MethodPost, c.supportURL+path, c.supportHeaders(), nil, &out); err != nil {
		return "", err
	}
	return out.APIKey, nil
}

// CreateSessionRequest provisions a provider session for a tenant.
type CreateSessionRequest struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	AutoReadEnabled bool   `json:"auto_read_enabled"`
	TypingEnabled   bool   `json:"typing_enabled"`
	Events          string `json:"events"`
	WebhookURL      string `json:"webhook_url"`
}

// CreateSession creates a customer session under the given support user.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*SupportSession, error) {
	if err := c.supportConfigured(); err != nil {
		return nil, err
	}
	var out SupportSession
	if err := c.doJSON(ctx, c.sessionClient, http.MethodPost, c.supportURL+"/admin/sessions", c.supportHeaders(), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns every session owned by a support user.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]SupportSession, error) {
	if err := c.supportConfigured(); err != nil {
		return nil, err
	}
	var out []SupportSession
	path := fmt.Sprintf("/admin/users/%s/sessions", url.PathEscape(userID))
	if err := c.doJSON(ctx, c.sessionClient, http.MethodGet, c.supportURL+path, c.supportHeaders(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession removes a customer session from the control plane.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.supportConfigured(); err != nil {
		return err
	}
	path := fmt.Sprintf("/admin/sessions/%s", url.PathEscape(sessionID))
	return c.doJSON(ctx, c.sessionClient, http.MethodDelete, c.supportURL+path, c.supportHeaders(), nil, nil)
}

// GetSessionSettings fetches the provider-side settings of a session.
func (c *Client) GetSessionSettings(ctx context.Context, sessionID string) (*SessionSettings, error) {
	if err := c.supportConfigured(); err != nil {
		return nil, err
	}
	var out SessionSettings
	path := fmt.Sprintf("/admin/sessions/%s/settings", url.PathEscape(sessionID))
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, c.supportURL+path, c.supportHeaders(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
