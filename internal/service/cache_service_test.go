package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

type cacheRepoStub struct {
	mu      sync.Mutex
	items   map[string][]byte
	getErr  error
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{items: map[string][]byte{}}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *cacheRepoStub) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(newCacheRepoStub(), nil, 0, nil, false)
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, hit)

	var nilSvc *CacheService
	require.False(t, nilSvc.Enabled())
	_, ok := nilSvc.GetApplication(context.Background(), "app-1")
	require.False(t, ok)
}

func TestCacheServiceApplicationRoundTrip(t *testing.T) {
	repo := newCacheRepoStub()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)

	_, ok := svc.GetApplication(context.Background(), "app-1")
	require.False(t, ok)

	svc.PutApplication(context.Background(), reviewApplication(models.ApplicationStatusSubmitted))
	cached, ok := svc.GetApplication(context.Background(), "app-1")
	require.True(t, ok)
	require.Equal(t, models.ApplicationStatusSubmitted, cached.Status)

	svc.InvalidateApplication(context.Background(), "app-1")
	_, ok = svc.GetApplication(context.Background(), "app-1")
	require.False(t, ok)
	require.Equal(t, []string{"admission:application:app-1"}, repo.deleted)
	require.InDelta(t, 1.0/3.0, metrics.Snapshot().CacheHitRatio, 0.001)
}

func TestCacheServiceBackendErrorIsMiss(t *testing.T) {
	repo := newCacheRepoStub()
	repo.getErr = errors.New("connection reset")
	svc := NewCacheService(repo, nil, 0, nil, true)

	_, ok := svc.GetApplication(context.Background(), "app-1")
	require.False(t, ok)
}

func TestApplicationReadsServedFromCacheAndInvalidatedOnWrite(t *testing.T) {
	store := newApplicationStoreStub(reviewApplication(models.ApplicationStatusDraft))
	repo := newCacheRepoStub()
	svc := newTestApplicationService(store, WithApplicationCache(NewCacheService(repo, nil, time.Minute, nil, true)))

	_, hit, err := svc.Lookup(context.Background(), "app-1", student)
	require.NoError(t, err)
	require.False(t, hit)

	_, hit, err = svc.Lookup(context.Background(), "app-1", student)
	require.NoError(t, err)
	require.True(t, hit)

	_, err = svc.Withdraw(context.Background(), "app-1", dto.WithdrawApplicationRequest{}, student)
	require.NoError(t, err)

	app, hit, err := svc.Lookup(context.Background(), "app-1", student)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, models.ApplicationStatusWithdrawn, app.Status)
}
