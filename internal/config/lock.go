package config

import (
	"fmt"
	"time"
)

type LockMode string

const (
	// LockModeAdvisory checks for the pending flag and then sets it, two contexts may both get through
	LockModeAdvisory LockMode = "advisory"
	// LockModeLease sets the pending flag atomically with an owner and an expiry
	LockModeLease LockMode = "lease"
)

type LockScope string

const (
	// LockScopeLocal keeps the pending flag inside the running process
	LockScopeLocal LockScope = "local"
	// LockScopeShared keeps the pending flag in redis next to the tokens
	LockScopeShared LockScope = "shared"
)

type LockConfig struct {
	Mode            LockMode
	Scope           LockScope
	LeaseTTLSeconds int
}

func (c LockConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

func (c LockConfig) Validate() error {
	switch c.Mode {
	case LockModeAdvisory:
	case LockModeLease:
		if c.LeaseTTLSeconds <= 0 {
			return fmt.Errorf("the lease TTL has to be positive when the lock mode is %q", LockModeLease)
		}
	default:
		return fmt.Errorf("unknown lock mode %q (must be one of advisory, lease)", c.Mode)
	}
	switch c.Scope {
	case LockScopeLocal, LockScopeShared:
		return nil
	default:
		return fmt.Errorf("unknown lock scope %q (must be one of local, shared)", c.Scope)
	}
}
