package db

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseInt(t *testing.T, value string) int64 {
	parsed, err := strconv.ParseInt(value, 10, 64)
	require.NoError(t, err)
	return parsed
}

func TestSetAndRemovePendingFlag(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()
	adapter := newTestAdapter(t, client)

	exists, err := adapter.PendingFlagExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, adapter.SetPendingFlag(ctx, "", 0))
	exists, err = adapter.PendingFlagExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	val, err := client.Get(ctx, "test:catalog-ui:pending").Result()
	require.NoError(t, err)
	assert.Equal(t, "true", val)

	require.NoError(t, adapter.RemovePendingFlag(ctx, ""))
	exists, err = adapter.PendingFlagExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAcquirePendingFlag(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t, NewMemoryClient())

	first, err := adapter.AcquirePendingFlag(ctx, "owner-1", time.Minute)
	require.NoError(t, err)
	second, err := adapter.AcquirePendingFlag(ctx, "owner-2", time.Minute)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestRemovePendingFlagChecksOwner(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t, NewMemoryClient())
	acquired, err := adapter.AcquirePendingFlag(ctx, "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, adapter.RemovePendingFlag(ctx, "owner-2"))
	exists, err := adapter.PendingFlagExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, adapter.RemovePendingFlag(ctx, "owner-1"))
	exists, err = adapter.PendingFlagExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemoveMissingPendingFlag(t *testing.T) {
	adapter := newTestAdapter(t, NewMemoryClient())

	err := adapter.RemovePendingFlag(context.Background(), "owner-1")

	assert.NoError(t, err)
}

func TestPendingFlagLeaseExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	client := NewMemoryClient()
	client.now = func() time.Time { return now }
	adapter := newTestAdapter(t, client)
	acquired, err := adapter.AcquirePendingFlag(ctx, "owner-1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	now = now.Add(31 * time.Second)
	acquired, err = adapter.AcquirePendingFlag(ctx, "owner-2", 30*time.Second)

	require.NoError(t, err)
	assert.True(t, acquired)
}
