package filestore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Local writes objects beneath a directory and serves them over HTTP.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates dir if needed. baseURL is the public prefix under which
// Handler is mounted, e.g. http://localhost:8080/files.
func NewLocal(dir, baseURL string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("filestore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Store(ctx context.Context, data []byte, meta Meta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := objectKey(meta)
	if err != nil {
		return "", err
	}
	full := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("filestore: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("filestore: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("filestore: %w", err)
	}
	return l.baseURL + "/" + key, nil
}

// Handler serves stored files; mount it with http.StripPrefix.
func (l *Local) Handler() http.Handler {
	return http.FileServer(http.Dir(l.dir))
}
