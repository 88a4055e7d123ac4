package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitedRedisClient is the limited set of functionality expected from the redis client in this adapter.
// This allows for easy mocking and swapping of the client. The universal redis client interface is way too big.
type LimitedRedisClient interface {
	// General commands

	// DEL key [key ...]
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	// EXISTS key [key ...]
	Exists(ctx context.Context, keys ...string) *redis.IntCmd

	// String commands

	// GET key
	Get(ctx context.Context, key string) *redis.StringCmd
	// SET key value [PX milliseconds]
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	// SET key value NX [PX milliseconds]
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd

	// Hash commands

	// HGETALL key
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	// HSET key field value [field value ...]
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}
