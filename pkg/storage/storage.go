package storage

import (
	"context"
	"errors"
	"strings"
)

// Locator schemes understood by the fetcher and the artifact stores.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// ErrInvalidLocator is returned when a locator cannot be resolved.
var ErrInvalidLocator = errors.New("invalid storage locator")

// ArtifactStorage persists generated artifacts and reads them back for download.
type ArtifactStorage interface {
	// Upload stores data under name and returns the locator to persist.
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// Read returns the bytes referenced by a locator previously returned by Upload.
	Read(ctx context.Context, locator string) ([]byte, error)
}

// ObjectRef identifies an object in a cloud bucket.
type ObjectRef struct {
	Scheme string
	Bucket string
	Key    string
}

// String renders the ref back into locator form.
func (r ObjectRef) String() string {
	return r.Scheme + "://" + r.Bucket + "/" + r.Key
}

// ParseObjectRef parses `s3://bucket/key` and `gs://bucket/key` locators.
func ParseObjectRef(raw string) (ObjectRef, bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok {
		return ObjectRef{}, false
	}
	scheme = strings.ToLower(scheme)
	if scheme != SchemeS3 && scheme != SchemeGCS {
		return ObjectRef{}, false
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return ObjectRef{}, false
	}
	return ObjectRef{Scheme: scheme, Bucket: bucket, Key: key}, true
}
