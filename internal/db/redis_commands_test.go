package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gachaplan/authsession/internal/models"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTokensKey  string = "test:catalog-ui:tokens"
	testPendingKey string = "test:catalog-ui:pending"
)

func TestSetTokenSetWritesAllFields(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	adapter := newTestAdapter(t, client)
	tokens := models.TokenSet{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.UnixMilli(1700000000000),
		ExpiresIn:    300,
	}
	mock.ExpectHSet(testTokensKey, adapter.serializeStruct(newTokenSetRecord(tokens))...).SetVal(6)

	err := adapter.SetTokenSet(ctx, tokens)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTokenSetRedisError(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	adapter := newTestAdapter(t, client)
	mock.ExpectHGetAll(testTokensKey).SetErr(errors.New("connection refused"))

	_, err := adapter.GetTokenSet(ctx)

	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryPendingFlagCommands(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	adapter := newTestAdapter(t, client)
	mock.ExpectExists(testPendingKey).SetVal(0)
	mock.ExpectSet(testPendingKey, "true", 0).SetVal("OK")
	mock.ExpectDel(testPendingKey).SetVal(1)

	exists, err := adapter.PendingFlagExists(ctx)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, adapter.SetPendingFlag(ctx, "", 0))
	require.NoError(t, adapter.RemovePendingFlag(ctx, ""))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeasePendingFlagCommands(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	adapter := newTestAdapter(t, client)
	mock.ExpectSetNX(testPendingKey, "owner-1", time.Minute).SetVal(true)
	mock.ExpectSetNX(testPendingKey, "owner-2", time.Minute).SetVal(false)
	mock.ExpectGet(testPendingKey).SetVal("owner-1")
	mock.ExpectDel(testPendingKey).SetVal(1)

	first, err := adapter.AcquirePendingFlag(ctx, "owner-1", time.Minute)
	require.NoError(t, err)
	second, err := adapter.AcquirePendingFlag(ctx, "owner-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, adapter.RemovePendingFlag(ctx, "owner-1"))

	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemovePendingFlagHeldByAnotherOwner(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	adapter := newTestAdapter(t, client)
	mock.ExpectGet(testPendingKey).SetVal("owner-2")

	err := adapter.RemovePendingFlag(ctx, "owner-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveExpiredLease(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	adapter := newTestAdapter(t, client)
	mock.ExpectGet(testPendingKey).RedisNil()

	err := adapter.RemovePendingFlag(ctx, "owner-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
