package filestore

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Store persiste binarios de adjuntos bajo una clave plana y los expone por URL.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL devuelve la ruta pública de la clave.
	URL(key string) string
	// KeyFromURL invierte URL; false si la ruta no pertenece a este store.
	KeyFromURL(path string) (string, bool)
}

var ErrInvalidKey = errors.New("invalid file key")

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

func keyFromURL(base, path string) (string, bool) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(path, prefix)
	if !validKey(key) {
		return "", false
	}
	return key, true
}
