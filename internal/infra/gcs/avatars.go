// Package gcs stores avatars in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-admin/internal/avatar"
	"github.com/dvloznov/finance-admin/internal/domain"
	"google.golang.org/api/googleapi"
)

// DefaultPrefix is the object prefix used when the location names only a bucket.
const DefaultPrefix = "avatars"

// AvatarStore implements avatar.Store on a GCS bucket. It holds a shared
// storage client.
type AvatarStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewAvatarStore creates a storage client for location, which is either a
// bucket name or a gs://bucket/prefix URI. It assumes Application Default
// Credentials are configured.
func NewAvatarStore(ctx context.Context, location string) (*AvatarStore, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return nil, fmt.Errorf("NewAvatarStore: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewAvatarStore: creating storage client: %w", err)
	}

	return &AvatarStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close closes the storage client.
func (s *AvatarStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Save uploads data under name. Objects are content addressed, so an existing
// object with the same name already holds the same bytes and is left alone.
func (s *AvatarStore) Save(ctx context.Context, name string, data []byte) error {
	if !avatar.ValidKey(name) {
		return fmt.Errorf("AvatarStore.Save: invalid avatar name %q", name)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(ObjectName(s.prefix, name)).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = avatar.ContentType
	w.CacheControl = "public, max-age=31536000, immutable"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("AvatarStore.Save: copying %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("AvatarStore.Save: finalizing upload of %s: %w", name, err)
	}

	return nil
}

// Open returns a reader for the stored object.
func (s *AvatarStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !avatar.ValidKey(name) {
		return nil, &domain.NotFoundError{Kind: "avatar", ID: name}
	}

	rc, err := s.client.Bucket(s.bucket).Object(ObjectName(s.prefix, name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, &domain.NotFoundError{Kind: "avatar", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("AvatarStore.Open: reading object %s: %w", name, err)
	}
	return rc, nil
}

// ParseLocation splits "bucket", "bucket/prefix" or "gs://bucket/prefix" into
// bucket and prefix. The prefix defaults to DefaultPrefix.
func ParseLocation(location string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(location), "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS location: %q", location)
	}

	bucket = parts[0]
	prefix = DefaultPrefix
	if len(parts) == 2 {
		if p := strings.Trim(parts[1], "/"); p != "" {
			prefix = p
		}
	}
	return bucket, prefix, nil
}

// ObjectName joins prefix and an avatar name into an object path.
func ObjectName(prefix, name string) string {
	return path.Join(prefix, name)
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var _ avatar.Store = (*AvatarStore)(nil)
