package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/loyalty"
)

type countingSource struct {
	calls   int
	configs map[loyalty.TenantID]*loyalty.TenantPointsConfig
}

func (s *countingSource) TenantConfig(_ context.Context, id loyalty.TenantID) (*loyalty.TenantPointsConfig, error) {
	s.calls++
	return s.configs[id], nil
}

func TestInMemoryCache_ExpiresEntries(t *testing.T) {
	c := NewInMemoryCache()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfigCache_ReadThroughAndInvalidate(t *testing.T) {
	// GIVEN: A tenant with face value 0.02 behind a read-through cache
	source := &countingSource{configs: map[loyalty.TenantID]*loyalty.TenantPointsConfig{
		"tenant-a": {
			TenantID:           "tenant-a",
			PointFaceValue:     decimal.RequireFromString("0.02"),
			BasePointsPerPound: decimal.NewFromInt(2),
		},
	}}
	cc := NewConfigCache(source, NewInMemoryCache(), time.Minute)
	ctx := context.Background()

	// WHEN: Reading twice
	first, err := cc.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)
	second, err := cc.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)

	// THEN: The source is hit once and values survive the JSON round trip
	assert.Equal(t, 1, source.calls)
	assert.True(t, first.PointFaceValue.Equal(second.PointFaceValue))
	assert.True(t, second.BasePointsPerPound.Equal(decimal.NewFromInt(2)))

	// WHEN: The config changes and the cache is invalidated
	source.configs["tenant-a"].PointFaceValue = decimal.RequireFromString("0.05")
	require.NoError(t, cc.Invalidate(ctx, "tenant-a"))
	third, err := cc.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)

	// THEN: The new value is read from the source
	assert.Equal(t, 2, source.calls)
	assert.True(t, third.PointFaceValue.Equal(decimal.RequireFromString("0.05")))
}

func TestConfigCache_RemembersAbsence(t *testing.T) {
	source := &countingSource{configs: map[loyalty.TenantID]*loyalty.TenantPointsConfig{}}
	cc := NewConfigCache(source, NewInMemoryCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cfg, err := cc.TenantConfig(ctx, "tenant-unknown")
		require.NoError(t, err)
		assert.Nil(t, cfg)
	}
	assert.Equal(t, 1, source.calls)
}

func TestConfigCache_InvalidateAll(t *testing.T) {
	// GIVEN: One cached config, one cached absence and an unrelated key
	source := &countingSource{configs: map[loyalty.TenantID]*loyalty.TenantPointsConfig{
		"tenant-a": {TenantID: "tenant-a", PointFaceValue: decimal.RequireFromString("0.02")},
	}}
	mem := NewInMemoryCache()
	cc := NewConfigCache(source, mem, time.Minute)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "other", []byte("x"), time.Minute))

	_, err := cc.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)
	_, err = cc.TenantConfig(ctx, "tenant-b")
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)

	// WHEN: Every tenant config is dropped
	delete(source.configs, "tenant-a")
	source.configs["tenant-b"] = &loyalty.TenantPointsConfig{TenantID: "tenant-b", PointFaceValue: decimal.RequireFromString("0.05")}
	require.NoError(t, cc.InvalidateAll(ctx))

	// THEN: Both tenants are read again and other keys survive
	a, err := cc.TenantConfig(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, a)
	b, err := cc.TenantConfig(ctx, "tenant-b")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.PointFaceValue.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 4, source.calls)

	got, err := mem.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}
