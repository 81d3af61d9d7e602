package media

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(Options{
		Root:            t.TempDir(),
		InternalBaseURL: "http://gateway:3200/media",
		PublicBaseURL:   "https://chat.example.id/media",
	})
	require.NoError(t, err)
	return s
}

func TestSaveBase64(t *testing.T) {
	s := newStorage(t)
	payload := base64.StdEncoding.EncodeToString([]byte("fake-jpeg-bytes"))

	saved, err := s.SaveBase64("628111222333", "wamid.m1", payload, "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(saved.Path, ".jpg"))
	assert.Contains(t, saved.InternalURL, "http://gateway:3200/media/628111222333/")
	assert.Contains(t, saved.PublicURL, "https://chat.example.id/media/628111222333/")

	data, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, "fake-jpeg-bytes", string(data))
}

func TestSaveBase64DataURI(t *testing.T) {
	s := newStorage(t)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))
	saved, err := s.SaveBase64("628111", "wamid.m2", payload, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(saved.Path, ".png"))
}

func TestSaveFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	s := newStorage(t)
	saved, err := s.SaveFromURL(context.Background(), "628111", "wamid.m3", srv.URL, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(saved.Path, ".pdf"))
	assert.Equal(t, int64(13), saved.Size)
}

func TestSaveFromURLFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newStorage(t)
	_, err := s.SaveFromURL(context.Background(), "628111", "wamid.m4", srv.URL, "image/jpeg")
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "NETWORK_ERROR", ge.ErrCode())
}

func TestSaveUploadRejectsBadTypeAndSize(t *testing.T) {
	s := newStorage(t)

	_, err := s.SaveUpload("shell.exe", 100, strings.NewReader("nope"))
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "VALIDATION_ERROR", ge.ErrCode())

	_, err = s.SaveUpload("big.pdf", 6*1024*1024, strings.NewReader("data"))
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "VALIDATION_ERROR", ge.ErrCode())

	saved, err := s.SaveUpload("surat.pdf", 4, strings.NewReader("data"))
	require.NoError(t, err)
	assert.Contains(t, saved.InternalURL, "/uploads/")
}

func TestSanitizeSegment(t *testing.T) {
	assert.Equal(t, "628111_s.whatsapp.net", sanitizeSegment("628111@s.whatsapp.net"))
	assert.Equal(t, "unknown", sanitizeSegment(""))
}
