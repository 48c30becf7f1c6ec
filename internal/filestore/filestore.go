package filestore

import (
	"context"
	"errors"
	"path"
	"strings"

	"vedarc.org/internal/ids"
)

// Meta describes an object being stored.
type Meta struct {
	// Folder groups objects, e.g. "certificates" or "resumes".
	Folder      string
	Filename    string
	ContentType string
}

// Store persists bytes and returns a URL where they can be retrieved.
type Store interface {
	Store(ctx context.Context, data []byte, meta Meta) (string, error)
}

// objectKey builds a unique, URL-safe key: folder/ULID-filename.
func objectKey(meta Meta) (string, error) {
	name := sanitize(meta.Filename)
	if name == "" {
		return "", errors.New("filestore: filename is required")
	}
	folder := strings.Trim(sanitizePath(meta.Folder), "/")
	key := strings.ToLower(ids.New()) + "-" + name
	if folder != "" {
		key = path.Join(folder, key)
	}
	return key, nil
}

func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

func sanitizePath(p string) string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if s := sanitize(part); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}
