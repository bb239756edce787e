package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type memoryCacheRepo struct {
	values    map[string][]byte
	getErr    error
	deleteErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			delete(m.values, key)
		}
	}
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)
	ctx := context.Background()

	var out map[string]int
	hit, err := svc.Get(ctx, "gradebook:c1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "gradebook:c1", map[string]int{"rows": 3}, 0))
	hit, err = svc.Get(ctx, "gradebook:c1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out["rows"])
	assert.Equal(t, 0.5, metrics.Snapshot().CacheHitRatio)
}

func TestCacheServiceInvalidateCourse(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, gradebookCacheKey("c1"), 1, 0))
	require.NoError(t, svc.Set(ctx, gradebookCacheKey("c2"), 2, 0))

	svc.InvalidateCourse(ctx, "c1")
	assert.NotContains(t, repo.values, "gradebook:c1")
	assert.Contains(t, repo.values, "gradebook:c2")

	repo.deleteErr = errors.New("redis down")
	svc.InvalidateCourse(ctx, "c2")
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.values)

	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
	nilSvc.InvalidateCourse(context.Background(), "c1")
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("timeout")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.Error(t, err)
	assert.False(t, hit)
}
