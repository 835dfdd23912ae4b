package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/noah-isme/admission-portal-api/pkg/config"
)

// GCSStorage stores artifacts in Google Cloud Storage and reads gs:// documents.
type GCSStorage struct {
	client *gcs.Client
	bucket string
}

// NewGCSStorage creates a client. When an emulator host is configured the client
// runs unauthenticated against it.
func NewGCSStorage(ctx context.Context, cfg config.GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.EmulatorHost) != "":
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"))
		opts = append(opts, option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(gcs.ScopeReadWrite))
	default:
		opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// Upload writes the artifact into the configured bucket.
func (s *GCSStorage) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if s.bucket == "" {
		return "", fmt.Errorf("gcs bucket not configured")
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer %s: %w", name, err)
	}
	return ObjectRef{Scheme: SchemeGCS, Bucket: s.bucket, Key: name}.String(), nil
}

// Read loads an object referenced by a gs:// locator.
func (s *GCSStorage) Read(ctx context.Context, locator string) ([]byte, error) {
	ref, ok := ParseObjectRef(locator)
	if !ok || ref.Scheme != SchemeGCS {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return s.ReadObject(ctx, ref.Bucket, ref.Key)
}

// ReadObject reads bucket/key fully.
func (s *GCSStorage) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object %s/%s: %w", bucket, key, err)
	}
	defer r.Close() //nolint:errcheck
	return io.ReadAll(r)
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
