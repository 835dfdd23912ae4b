package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEmptyPayload is returned when a fetched document has no bytes.
var ErrEmptyPayload = errors.New("empty payload")

const (
	defaultFetchTimeout = 90 * time.Second
	defaultMaxBytes     = 50 << 20
)

// Presigner issues short-lived GET URLs for s3:// references.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string) (string, error)
}

// ObjectReader reads gs:// references directly.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Fetcher resolves document locators and downloads their bytes. Supported forms:
// absolute http(s) URLs, s3://bucket/key (through a presigned URL), gs://bucket/key
// and paths relative to the configured document base URL.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	timeout   time.Duration
	maxBytes  int64
	presigner Presigner
	objects   ObjectReader
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithFetchTimeout sets the per-document timeout.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes caps the payload size accepted per document.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithPresigner enables s3:// locators.
func WithPresigner(p Presigner) FetcherOption {
	return func(f *Fetcher) { f.presigner = p }
}

// WithObjectReader enables gs:// locators.
func WithObjectReader(r ObjectReader) FetcherOption {
	return func(f *Fetcher) { f.objects = r }
}

// NewFetcher builds a fetcher resolving relative locators against baseURL.
func NewFetcher(baseURL string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{},
		baseURL:  strings.TrimSpace(baseURL),
		timeout:  defaultFetchTimeout,
		maxBytes: defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the document referenced by locator within the fetch timeout.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidLocator)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var (
		data []byte
		err  error
	)
	if ref, ok := ParseObjectRef(locator); ok {
		data, err = f.fetchObject(ctx, ref)
	} else {
		var target string
		target, err = f.ResolveURL(locator)
		if err == nil {
			data, err = f.get(ctx, target)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}

// ResolveURL maps a non-object locator to an absolute URL.
func (f *Fetcher) ResolveURL(locator string) (string, error) {
	lower := strings.ToLower(locator)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if _, err := url.ParseRequestURI(locator); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
		}
		return locator, nil
	}
	if strings.Contains(locator, "://") {
		return "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidLocator, locator)
	}
	if f.baseURL == "" {
		return "", fmt.Errorf("%w: no document base URL for %q", ErrInvalidLocator, locator)
	}
	joined, err := url.JoinPath(f.baseURL, strings.TrimLeft(locator, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	return joined, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, ref ObjectRef) ([]byte, error) {
	switch ref.Scheme {
	case SchemeS3:
		if f.presigner == nil {
			return nil, fmt.Errorf("%w: s3 not configured", ErrInvalidLocator)
		}
		signed, err := f.presigner.PresignGet(ctx, ref.Bucket, ref.Key)
		if err != nil {
			return nil, err
		}
		return f.get(ctx, signed)
	case SchemeGCS:
		if f.objects == nil {
			return nil, fmt.Errorf("%w: gcs not configured", ErrInvalidLocator)
		}
		return f.objects.ReadObject(ctx, ref.Bucket, ref.Key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidLocator, ref.Scheme)
	}
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetch %s: unexpected status %d", redact(target), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: payload exceeds %d bytes", redact(target), f.maxBytes)
	}
	return data, nil
}

// redact strips query strings so presigned credentials never reach the logs.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
