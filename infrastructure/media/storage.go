package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

// Storage saves inbound and uploaded media on the local filesystem and
// derives internal plus public URLs for each saved file.
type Storage struct {
	root        string
	internalURL string
	publicURL   string
	httpClient  *http.Client
	maxUpload   int64
}

type Options struct {
	Root            string
	InternalBaseURL string
	PublicBaseURL   string
	DownloadTimeout time.Duration
	MaxUploadSize   int64
}

// Saved describes one stored media file.
type Saved struct {
	Path        string
	InternalURL string
	PublicURL   string
	MimeType    string
	Size        int64
}

var allowedUploadExts = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".doc": true, ".docx": true,
}

func NewStorage(opts Options) (*Storage, error) {
	if opts.Root == "" {
		opts.Root = "storages/media"
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 5 * 1024 * 1024
	}
	if err := utils.CreateFolder(opts.Root); err != nil {
		return nil, err
	}
	return &Storage{
		root:        opts.Root,
		internalURL: strings.TrimRight(opts.InternalBaseURL, "/"),
		publicURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
		httpClient:  &http.Client{Timeout: opts.DownloadTimeout},
		maxUpload:   opts.MaxUploadSize,
	}, nil
}

// MaxUploadSize is the multipart upload cap in bytes.
func (s *Storage) MaxUploadSize() int64 { return s.maxUpload }

// SaveFromURL downloads media from the provider's s3 URL and stores it.
func (s *Storage) SaveFromURL(ctx context.Context, channelIdentifier, messageID, url, mimeType string) (*Saved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgError.InternalServerError(fmt.Sprintf("build media request: %v", err))
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgError.NetworkError(fmt.Sprintf("fetch media: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, pkgError.NetworkError(fmt.Sprintf("fetch media: status %d", resp.StatusCode))
	}
	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	return s.write(channelIdentifier, messageID, mimeType, resp.Body)
}

// SaveBase64 decodes inline base64 media and stores it.
func (s *Storage) SaveBase64(channelIdentifier, messageID, b64, mimeType string) (*Saved, error) {
	// Data-URI prefixes occasionally leak in; keep only the payload.
	if idx := strings.Index(b64, ","); idx >= 0 && strings.Contains(b64[:idx], ";base64") {
		b64 = b64[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, pkgError.ValidationError(fmt.Sprintf("decode media base64: %v", err))
	}
	return s.write(channelIdentifier, messageID, mimeType, strings.NewReader(string(raw)))
}

// SaveBytes stores raw media bytes (thumbnail fallback path).
func (s *Storage) SaveBytes(channelIdentifier, messageID string, data []byte, mimeType string) (*Saved, error) {
	return s.write(channelIdentifier, messageID, mimeType, strings.NewReader(string(data)))
}

// SaveUpload stores an admin-uploaded file after extension and size checks.
func (s *Storage) SaveUpload(filename string, size int64, r io.Reader) (*Saved, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedUploadExts[ext] {
		return nil, pkgError.ValidationError(fmt.Sprintf("file type %s not allowed (PDF/JPG/PNG/DOC/DOCX)", ext))
	}
	if size > s.maxUpload {
		return nil, pkgError.ValidationError(fmt.Sprintf("file too large: %s exceeds %s",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.maxUpload))))
	}
	mimeType := mime.TypeByExtension(ext)
	name := fmt.Sprintf("upload_%d%s", time.Now().UnixNano(), ext)
	return s.writeNamed("uploads", name, mimeType, io.LimitReader(r, s.maxUpload))
}

func (s *Storage) write(channelIdentifier, messageID, mimeType string, r io.Reader) (*Saved, error) {
	ext := extensionFor(mimeType)
	name := fmt.Sprintf("%s_%d%s", sanitizeSegment(messageID), time.Now().Unix(), ext)
	return s.writeNamed(sanitizeSegment(channelIdentifier), name, mimeType, r)
}

func (s *Storage) writeNamed(dir, name, mimeType string, r io.Reader) (*Saved, error) {
	folder := filepath.Join(s.root, dir)
	if err := utils.CreateFolder(folder); err != nil {
		return nil, err
	}
	path := filepath.Join(folder, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, pkgError.InternalServerError(fmt.Sprintf("create media file: %v", err))
	}
	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return nil, pkgError.InternalServerError(fmt.Sprintf("write media file: %v", err))
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, pkgError.InternalServerError(fmt.Sprintf("close media file: %v", closeErr))
	}

	rel := dir + "/" + name
	saved := &Saved{
		Path:        path,
		InternalURL: s.internalURL + "/" + rel,
		PublicURL:   s.publicURL + "/" + rel,
		MimeType:    mimeType,
		Size:        size,
	}
	logrus.Debugf("[INGEST] Saved media %s (%s)", rel, humanize.Bytes(uint64(size)))
	return saved, nil
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mimeType, "image/png"):
		return ".png"
	case strings.HasPrefix(mimeType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mimeType, "video/"):
		return ".mp4"
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/"):
		return ".mp3"
	case strings.HasPrefix(mimeType, "application/pdf"):
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
