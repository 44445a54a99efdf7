// Package storage archives uploaded slip images.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Archive stores slip bytes and returns a reference that Open understands.
type Archive interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
	Open(ctx context.Context, ref string) ([]byte, error)
}

// ObjectName builds a collision-free relative name under a per-user folder.
func ObjectName(userID uint, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "slip"
	}
	return path.Join(fmt.Sprintf("user-%d", userID), uuid.NewString()+"-"+base)
}

// Local keeps files below a base directory.
type Local struct {
	base string
}

func NewLocal(base string) (*Local, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Local{base: base}, nil
}

func (l *Local) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	full := filepath.Join(l.base, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating folder: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

func (l *Local) Open(_ context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(ref))
	data, err := os.ReadFile(filepath.Join(l.base, clean))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// GCS stores objects in a bucket; refs are gs:// URIs.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS uses Application Default Credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	object := name
	if g.prefix != "" {
		object = g.prefix + "/" + name
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return "gs://" + g.bucket + "/" + object, nil
}

func (g *GCS) Open(ctx context.Context, ref string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(ref)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ParseGCSURI splits gs://bucket/object.
func ParseGCSURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
