package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/testutil"
)

func TestRaiseInt_NeverLowers(t *testing.T) {
	ctx := context.Background()
	rc, mr := testutil.NewRedis(t)
	key := rc.KeyForUsedQuota(7, "2026-10-15")

	n, err := rc.RaiseInt(ctx, key, 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL(key))

	n, err = rc.RaiseInt(ctx, key, 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = rc.RaiseInt(ctx, key, 3, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 30*time.Minute, mr.TTL(key))

	got, ok, err := rc.GetInt(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), got)
}

func TestGetInt_Miss(t *testing.T) {
	rc, _ := testutil.NewRedis(t)

	_, ok, err := rc.GetInt(context.Background(), "discovery:used:1:2026-10-15")
	require.NoError(t, err)
	assert.False(t, ok)
}
