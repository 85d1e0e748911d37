// Package gcs implements blob.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/receipt-ledger/internal/blob"
)

// Store uploads into a single bucket, optionally under a key prefix.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ blob.Store = (*Store)(nil)

// NewStore creates a storage client. It uses Application Default Credentials
// unless opts say otherwise (for example option.WithCredentialsFile).
func NewStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Close closes the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

// Upload implements blob.Store.
func (s *Store) Upload(ctx context.Context, p, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.objectName(p)).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Download implements blob.Store.
func (s *Store) Download(ctx context.Context, p string) ([]byte, error) {
	return readObject(ctx, s.client, s.bucket, s.objectName(p))
}

// SignedURL implements blob.Store with a V4 GET URL.
func (s *Store) SignedURL(ctx context.Context, p string, expires time.Time) (string, error) {
	opts := &storage.SignedURLOptions{
		Method:  "GET",
		Expires: expires,
		Scheme:  storage.SigningSchemeV4,
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(s.objectName(p), opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

// FetchURI downloads the object behind a gs://bucket/path URI.
func (s *Store) FetchURI(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}
	return readObject(ctx, s.client, bucket, object)
}

func readObject(ctx context.Context, client *storage.Client, bucket, object string) ([]byte, error) {
	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, object, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes: %w", err)
	}
	return data, nil
}

// ParseURI splits gs://bucket/path/to/object into bucket and object name.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/receipt.jpg" → "receipt.jpg"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
