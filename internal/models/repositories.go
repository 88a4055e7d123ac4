package models

import (
	"context"
	"time"
)

// TokenSetRepository represents the interface used to persist the token set
type TokenSetRepository interface {
	TokenSetGetter
	TokenSetSetter
	TokenSetRemover
}

type TokenSetGetter interface {
	GetTokenSet(ctx context.Context) (TokenSet, error)
}

type TokenSetSetter interface {
	SetTokenSet(ctx context.Context, tokens TokenSet) error
}

type TokenSetRemover interface {
	RemoveTokenSet(ctx context.Context) error
}

// PendingFlagRepository stores the marker that an authorization or refresh attempt is in flight
type PendingFlagRepository interface {
	PendingFlagExists(ctx context.Context) (bool, error)
	// SetPendingFlag writes the flag unconditionally
	SetPendingFlag(ctx context.Context, owner string, ttl time.Duration) error
	// AcquirePendingFlag writes the flag only when it is absent and reports whether it did
	AcquirePendingFlag(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	// RemovePendingFlag deletes the flag, when owner is not empty only if it is held by that owner
	RemovePendingFlag(ctx context.Context, owner string) error
}

type IDGenerator interface {
	ID() (string, error)
}
