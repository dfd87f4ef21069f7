package service

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"posts-api/internal/filestore"
)

// imageType asocia un MIME aceptado con su forma canónica y su extensión.
type imageType struct {
	mime      string
	canonical string
	ext       string
}

var allowedImageTypes = []imageType{
	{mime: "image/png", canonical: "image/png", ext: "png"},
	{mime: "image/jpeg", canonical: "image/jpeg", ext: "jpg"},
	{mime: "image/jpg", canonical: "image/jpeg", ext: "jpg"},
}

func lookupImageType(mimeType string) (imageType, bool) {
	for _, t := range allowedImageTypes {
		if t.mime == mimeType {
			return t, true
		}
	}
	return imageType{}, false
}

const (
	defaultMaxUploadBytes = 5 << 20
	maxStorageBaseLen     = 64
)

// AttachmentService valida imágenes subidas y las guarda con un nombre único.
type AttachmentService struct {
	store    filestore.Store
	maxBytes int64
	now      func() time.Time
}

func NewAttachmentService(store filestore.Store, maxBytes int64) *AttachmentService {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &AttachmentService{store: store, maxBytes: maxBytes, now: time.Now}
}

// Accept valida el MIME declarado contra la lista permitida y contra el contenido,
// guarda los bytes y devuelve la ruta pública. La extensión sale del MIME, nunca
// del nombre original.
func (s *AttachmentService) Accept(ctx context.Context, mimeType, rawName string, data []byte) (string, error) {
	declared := normalizeMediaType(mimeType)
	kind, ok := lookupImageType(declared)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, declared)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty attachment", ErrValidation)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: attachment too large", ErrValidation)
	}
	if detected := mimetype.Detect(data); !detected.Is(kind.canonical) {
		return "", fmt.Errorf("%w: content is %s", ErrUnsupportedMediaType, detected.String())
	}

	key := StorageName(rawName, kind.ext, s.now())
	if err := s.store.Save(ctx, key, bytes.NewReader(data), int64(len(data)), kind.canonical); err != nil {
		return "", fmt.Errorf("save attachment: %w", err)
	}
	return s.store.URL(key), nil
}

// Remove borra el binario detrás de una ruta pública; ignora rutas ajenas al store.
func (s *AttachmentService) Remove(ctx context.Context, path string) error {
	key, ok := s.store.KeyFromURL(path)
	if !ok {
		return nil
	}
	return s.store.Delete(ctx, key)
}

// StorageName arma "<nombre-normalizado>-<unixMillis>-<token>.<ext>".
func StorageName(rawName, ext string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(rawName, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Join(strings.Fields(strings.ToLower(base)), "-")

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), "-_")
	if len(name) > maxStorageBaseLen {
		name = name[:maxStorageBaseLen]
	}
	if name == "" || name == "." {
		name = "image"
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s.%s", name, now.UnixMilli(), token, ext)
}

func normalizeMediaType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		return parsed
	}
	return value
}
