package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingMarker is written when the flag has no owner
const pendingMarker string = "true"

func pendingValue(owner string) string {
	if owner == "" {
		return pendingMarker
	}
	return owner
}

func (r RedisAdapter) PendingFlagExists(ctx context.Context) (bool, error) {
	count, err := r.rdb.Exists(ctx, r.pendingFlagKey()).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetPendingFlag writes the flag without looking at what is there, a ttl of 0 keeps it until removed.
func (r RedisAdapter) SetPendingFlag(ctx context.Context, owner string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.pendingFlagKey(), pendingValue(owner), ttl).Err()
}

// AcquirePendingFlag is SET NX PX, only one caller gets true until the flag is removed or expires.
func (r RedisAdapter) AcquirePendingFlag(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, r.pendingFlagKey(), pendingValue(owner), ttl).Result()
}

// RemovePendingFlag deletes the flag. With an owner the flag is only deleted when that owner holds it,
// a lease that expired and was taken over by someone else is left alone.
func (r RedisAdapter) RemovePendingFlag(ctx context.Context, owner string) error {
	if owner == "" {
		return r.rdb.Del(ctx, r.pendingFlagKey()).Err()
	}
	current, err := r.rdb.Get(ctx, r.pendingFlagKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if current != owner {
		slog.Warn(
			"TOKEN STORE",
			"message",
			"the pending flag is held by another owner, not removing it",
			"owner",
			owner,
			"holder",
			current,
		)
		return nil
	}
	return r.rdb.Del(ctx, r.pendingFlagKey()).Err()
}
