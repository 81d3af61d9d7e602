package rest

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govconnect/channel-gateway/domains/webhook"
	"github.com/govconnect/channel-gateway/ui/rest/middleware"
)

type stubIngest struct {
	webhooks []*webhook.Payload
	webchats []webhook.WebchatMessage
	err      error
}

func (s *stubIngest) HandleWebhook(_ context.Context, p *webhook.Payload) error {
	s.webhooks = append(s.webhooks, p)
	return s.err
}

func (s *stubIngest) HandleWebchat(_ context.Context, m webhook.WebchatMessage) error {
	s.webchats = append(s.webchats, m)
	return s.err
}

func newWebhookApp(ingest *stubIngest, verifyToken string) *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestWebhook(app, ingest, verifyToken)
	return app
}

const sampleWebhookJSON = `{
	"type": "Message",
	"instanceName": "desa-sukamaju",
	"event": {
		"Info": {
			"ID": "wamid.rest.1",
			"Timestamp": "2025-01-06T10:00:00Z",
			"Chat": "628123456789@s.whatsapp.net",
			"PushName": "Budi"
		},
		"Message": {"conversation": "halo"}
	}
}`

func TestWebhookAcceptsJSONBody(t *testing.T) {
	ingest := &stubIngest{}
	app := newWebhookApp(ingest, "")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(sampleWebhookJSON))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	require.Len(t, ingest.webhooks, 1)
	assert.Equal(t, "wamid.rest.1", ingest.webhooks[0].Event.Info.ID)
	assert.Equal(t, "desa-sukamaju", ingest.webhooks[0].InstanceName)
}

func TestWebhookAcceptsFormEncodedJSONData(t *testing.T) {
	ingest := &stubIngest{}
	app := newWebhookApp(ingest, "")

	form := url.Values{}
	form.Set("jsonData", sampleWebhookJSON)
	req := httptest.NewRequest("POST", "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, ingest.webhooks, 1)
	assert.Equal(t, "wamid.rest.1", ingest.webhooks[0].Event.Info.ID)
}

func TestWebhookRejectsUnparseableBody(t *testing.T) {
	ingest := &stubIngest{}
	app := newWebhookApp(ingest, "")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("not json at all"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Empty(t, ingest.webhooks)
}

func TestWebhookSwallowsProcessingErrors(t *testing.T) {
	ingest := &stubIngest{err: assert.AnError}
	app := newWebhookApp(ingest, "")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(sampleWebhookJSON))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode, "provider must never see a retryable status")
}

func TestWebhookChallengeWithoutToken(t *testing.T) {
	app := newWebhookApp(&stubIngest{}, "")

	req := httptest.NewRequest("GET", "/webhook/whatsapp?hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "12345", string(body))
}

func TestWebhookChallengeWithToken(t *testing.T) {
	app := newWebhookApp(&stubIngest{}, "secret-token")

	ok := httptest.NewRequest("GET", "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=ch1", nil)
	resp, err := app.Test(ok)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ch1", string(body))

	bad := httptest.NewRequest("GET", "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=ch1", nil)
	resp, err = app.Test(bad)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestWebchatEndpointValidates(t *testing.T) {
	ingest := &stubIngest{}
	app := newWebhookApp(ingest, "")

	valid := httptest.NewRequest("POST", "/webhook/webchat",
		strings.NewReader(`{"village_id":"v1","session_id":"web-1","message":"halo"}`))
	valid.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(valid)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, ingest.webchats, 1)
	assert.Equal(t, "web-1", ingest.webchats[0].SessionID)

	missing := httptest.NewRequest("POST", "/webhook/webchat",
		strings.NewReader(`{"village_id":"v1"}`))
	missing.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(missing)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Len(t, ingest.webchats, 1)
}
