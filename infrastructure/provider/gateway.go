package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/govconnect/channel-gateway/pkg/utils"
)

// SendResult is the provider's acknowledgement of an outbound message.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status,omitempty"`
}

// SessionStatus is the raw gateway-plane status payload.
type SessionStatus struct {
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
	JID       string `json:"jid,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// QRResult carries the login QR for a disconnected session.
type QRResult struct {
	QRCode   string `json:"qr_code"`
	Duration int    `json:"duration,omitempty"`
}

// SendText delivers a plain text message. The phone is normalized to the
// 62-prefixed form before it reaches the wire.
func (c *Client) SendText(ctx context.Context, token, phone, message string) (*SendResult, error) {
	if c.dryRun {
		logrus.Infof("[PROVIDER] DRY RUN send text to %s (%d chars)", phone, len(message))
		return &SendResult{MessageID: "dryrun-" + uuid.NewString(), Status: "sent"}, nil
	}
	if err := c.gatewayConfigured(); err != nil {
		return nil, err
	}
	body := map[string]string{
		"phone":   utils.NormalizePhone(phone),
		"message": message,
	}
	var out SendResult
	if err := c.doJSON(ctx, c.httpClient, http.MethodPost, c.gatewayURL+"/send/message", c.gatewayHeaders(token), body, &out); err != nil {
		return nil, err
	}
	if out.MessageID == "" {
		out.MessageID = uuid.NewString()
	}
	return &out, nil
}

// SendContact delivers a vCard built from the contact name and phone.
func (c *Client) SendContact(ctx context.Context, token, phone, contactName, contactPhone string) (*SendResult, error) {
	if c.dryRun {
		logrus.Infof("[PROVIDER] DRY RUN send contact %q to %s", contactName, phone)
		return &SendResult{MessageID: "dryrun-" + uuid.NewString(), Status: "sent"}, nil
	}
	if err := c.gatewayConfigured(); err != nil {
		return nil, err
	}
	body := map[string]string{
		"phone": utils.NormalizePhone(phone),
		"vcard": BuildVCard(contactName, contactPhone),
	}
	var out SendResult
	if err := c.doJSON(ctx, c.httpClient, http.MethodPost, c.gatewayURL+"/send/contact", c.gatewayHeaders(token), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks messages as read upstream so the user sees blue ticks.
func (c *Client) MarkRead(ctx context.Context, token, phone string, messageIDs []string) error {
	if c.dryRun {
		return nil
	}
	if err := c.gatewayConfigured(); err != nil {
		return err
	}
	body := map[string]interface{}{
		"phone":       utils.NormalizePhone(phone),
		"message_ids": messageIDs,
	}
	return c.doJSON(ctx, c.httpClient, http.MethodPost, c.gatewayURL+"/chat/markread", c.gatewayHeaders(token), body, nil)
}

// SendPresence pushes a composing or paused chat state.
func (c *Client) SendPresence(ctx context.Context, token, phone, state string) error {
	if c.dryRun {
		return nil
	}
	if err := c.gatewayConfigured(); err != nil {
		return err
	}
	if state != "composing" && state != "paused" {
		state = "paused"
	}
	body := map[string]string{
		"phone": utils.NormalizePhone(phone),
		"state": state,
	}
	return c.doJSON(ctx, c.httpClient, http.MethodPost, c.gatewayURL+"/chat/presence", c.gatewayHeaders(token), body, nil)
}

// QR fetches the login QR code for pairing.
func (c *Client) QR(ctx context.Context, token string) (*QRResult, error) {
	if err := c.gatewayConfigured(); err != nil {
		return nil, err
	}
	var out QRResult
	if err := c.doJSON(ctx, c.sessionClient, http.MethodGet, c.gatewayURL+"/app/login", c.gatewayHeaders(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PairPhone requests a pairing code for the given phone.
func (c *Client) PairPhone(ctx context.Context, token, phone string) (string, error) {
	if err := c.gatewayConfigured(); err != nil {
		return "", err
	}
	body := map[string]string{"phone": utils.NormalizePhone(phone)}
	var out struct {
		PairCode string `json:"pair_code"`
	}
	if err := c.doJSON(ctx, c.sessionClient, http.MethodPost, c.gatewayURL+"/app/login-with-code", c.gatewayHeaders(token), body, &out); err != nil {
		return "", err
	}
	return out.PairCode, nil
}

// Connect asks the provider to (re)connect the session socket.
func (c *Client) Connect(ctx context.Context, token string) error {
	if err := c.gatewayConfigured(); err != nil {
		return err
	}
	return c.doJSON(ctx, c.sessionClient, http.MethodPost, c.gatewayURL+"/app/reconnect", c.gatewayHeaders(token), nil, nil)
}

// Disconnect drops the session socket but keeps credentials.
func (c *Client) Disconnect(ctx context.Context, token string) error {
	if err := c.gatewayConfigured(); err != nil {
		return err
	}
	return c.doJSON(ctx, c.sessionClient, http.MethodPost, c.gatewayURL+"/app/disconnect", c.gatewayHeaders(token), nil, nil)
}

// Logout invalidates the WhatsApp login entirely.
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.gatewayConfigured(); err != nil {
		return err
	}
	return c.doJSON(ctx, c.sessionClient, http.MethodPost, c.gatewayURL+"/app/logout", c.gatewayHeaders(token), nil, nil)
}

// Status fetches the live session status.
func (c *Client) Status(ctx context.Context, token string) (*SessionStatus, error) {
	if err := c.gatewayConfigured(); err != nil {
		return nil, err
	}
	var out SessionStatus
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, c.gatewayURL+"/app/status", c.gatewayHeaders(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BuildVCard renders a minimal vCard: the first name token becomes the
// given name, the remainder the family name, and the phone always carries
// the pref CELL type.
func BuildVCard(name, phone string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Kontak"
	}
	first := name
	rest := ""
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		first = name[:idx]
		rest = strings.TrimSpace(name[idx+1:])
	}
	normalized := utils.NormalizePhone(phone)
	var b strings.Builder
	b.WriteString("BEGIN:VCARD\n")
	b.WriteString("VERSION:3.0\n")
	fmt.Fprintf(&b, "N:%s;%s;;;\n", rest, first)
	fmt.Fprintf(&b, "FN:%s\n", name)
	fmt.Fprintf(&b, "TEL;type=CELL;type=pref:+%s\n", normalized)
	b.WriteString("END:VCARD")
	return b.String()
}
