package authservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{Idle, Refreshing, true},
		{Idle, Authorizing, true},
		{Idle, Authenticated, true},
		{Idle, Failed, false},
		{Refreshing, Authorizing, true},
		{Refreshing, Authenticated, true},
		{Refreshing, Idle, false},
		{Authorizing, Authenticated, true},
		{Authorizing, Failed, true},
		{Authorizing, Refreshing, false},
		{Authorizing, Authorizing, true},
		{Authenticated, Refreshing, true},
		{Authenticated, Idle, true},
		{Authenticated, Failed, false},
		{Failed, Authorizing, true},
		{Failed, Idle, true},
	}
	for _, test := range tests {
		assert.Equal(t, test.allowed, CanTransition(test.from, test.to), "%s -> %s", test.from, test.to)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "refreshing", Refreshing.String())
	assert.Equal(t, "authorizing", Authorizing.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestInvalidTransitionIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil, &fakeClient{}, false)

	ok := env.manager.transition(Failed)

	assert.False(t, ok)
	assert.Equal(t, Idle, env.manager.State())
}
