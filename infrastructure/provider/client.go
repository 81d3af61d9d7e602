package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

// Client talks to the upstream WhatsApp provider on two planes: the
// customer "support" control plane (X-Api-Key) and the per-session gateway
// plane (X-Instance-Token).
type Client struct {
	gatewayURL    string
	supportURL    string
	supportAPIKey string
	dryRun        bool

	httpClient    *http.Client
	sessionClient *http.Client
}

type Options struct {
	GatewayURL       string
	SupportURL       string
	SupportAPIKey    string
	DryRun           bool
	RequestTimeout   time.Duration
	SessionOpTimeout time.Duration
}

func NewClient(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.SessionOpTimeout <= 0 {
		opts.SessionOpTimeout = 30 * time.Second
	}
	// The support key may arrive as "source:key"; only the key is sent.
	key := opts.SupportAPIKey
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		key = key[idx+1:]
	}
	return &Client{
		gatewayURL:    strings.TrimRight(opts.GatewayURL, "/"),
		supportURL:    strings.TrimRight(opts.SupportURL, "/"),
		supportAPIKey: key,
		dryRun:        opts.DryRun,
		httpClient:    &http.Client{Timeout: opts.RequestTimeout},
		sessionClient: &http.Client{Timeout: opts.SessionOpTimeout},
	}
}

// DryRun reports whether send paths are short-circuited.
func (c *Client) DryRun() bool { return c.dryRun }

// HasSupportPlane reports whether the control plane is configured. Without
// it, session provisioning degrades to direct gateway calls.
func (c *Client) HasSupportPlane() bool { return c.supportURL != "" }

func (c *Client) gatewayConfigured() error {
	if c.gatewayURL == "" {
		return pkgError.ConfigError("WA_API_URL is not configured")
	}
	return nil
}

func (c *Client) supportConfigured() error {
	if c.supportURL == "" {
		return pkgError.ConfigError("WA_SUPPORT_URL is not configured")
	}
	if c.supportAPIKey == "" {
		return pkgError.ConfigError("WA_SUPPORT_INTERNAL_API_KEY is not configured")
	}
	return nil
}

// doJSON performs one provider request and maps the response onto the error
// taxonomy: 401/403 AUTH_ERROR, 400/422 VALIDATION_ERROR, 5xx SERVER_ERROR,
// transport failures NETWORK_ERROR or TIMEOUT.
func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, url string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgError.InternalServerError(fmt.Sprintf("encode provider request: %v", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return pkgError.InternalServerError(fmt.Sprintf("build provider request: %v", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return pkgError.TimeoutError(fmt.Sprintf("provider request timed out: %s %s", method, url))
		}
		return pkgError.NetworkError(fmt.Sprintf("provider unreachable: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return pkgError.NetworkError(fmt.Sprintf("read provider response: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return pkgError.AuthError(fmt.Sprintf("provider rejected credentials (%d)", resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return pkgError.ValidationError(fmt.Sprintf("provider rejected request (%d): %s", resp.StatusCode, snippet(raw)))
	case resp.StatusCode >= 500:
		return pkgError.ServerError(fmt.Sprintf("provider error (%d): %s", resp.StatusCode, snippet(raw)))
	case resp.StatusCode >= 400:
		return pkgError.ValidationError(fmt.Sprintf("provider returned %d", resp.StatusCode))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			logrus.WithError(err).Warnf("[PROVIDER] Unparseable response from %s %s", method, url)
			return pkgError.ServerError("provider returned unparseable body")
		}
	}
	return nil
}

func (c *Client) gatewayHeaders(token string) map[string]string {
	return map[string]string{"X-Instance-Token": token}
}

func (c *Client) supportHeaders() map[string]string {
	return map[string]string{"X-Api-Key": c.supportAPIKey}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
