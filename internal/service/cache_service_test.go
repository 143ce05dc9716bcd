package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pmb-api/internal/repository"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

var _ CacheRepository = (*repository.CacheRepository)(nil)

type mapCache struct {
	items  map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *mapCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func TestCacheServiceHitMissAndDefaultTTL(t *testing.T) {
	repo := newMapCache()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 2*time.Minute, nil, true)
	ctx := context.Background()

	var dest map[string]string
	hit, err := svc.Get(ctx, "candidate:1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "candidate:1", map[string]string{"status": "pending"}, 0))
	assert.Equal(t, 2*time.Minute, repo.ttls["candidate:1"])

	hit, err = svc.Get(ctx, "candidate:1", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "pending", dest["status"])

	require.NoError(t, svc.Delete(ctx, "candidate:1"))
	hit, _ = svc.Get(ctx, "candidate:1", &dest)
	assert.False(t, hit)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMapCache()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var dest map[string]string
	hit, err := svc.Get(context.Background(), "candidate:1", &dest)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMapCache()
	svc := NewCacheService(repo, nil, 0, nil, false)
	ctx := context.Background()

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(ctx, "k", "v", time.Minute))
	assert.Empty(t, repo.items)

	var nilSvc *CacheService
	hit, err := nilSvc.Get(ctx, "k", new(string))
	assert.NoError(t, err)
	assert.False(t, hit)
}
