package authservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/authtest"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/db"
	"github.com/gachaplan/authsession/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racyPendingRepo never sees the flag, as if the write of another manager had not landed yet
type racyPendingRepo struct {
	models.PendingFlagRepository
}

func (racyPendingRepo) PendingFlagExists(ctx context.Context) (bool, error) {
	return false, nil
}

func seedTokens(t *testing.T, store *db.RedisAdapter, tokens models.TokenSet) {
	require.NoError(t, store.SetTokenSet(context.Background(), tokens))
}

func TestInitWithoutTokensRunsAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, Code: "abc", ExpiresIn: 3600})
	env := newTestEnv(t, server, nil, false, WithPKCEGenerator(staticGenerator{verifier: "v"}))

	env.manager.Init(ctx)

	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.Equal(t, Authenticated, env.manager.State())
	assert.Len(t, server.AuthorizeRequests(), 1)
	requests := server.TokenRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "authorization_code", requests[0].Form.Get("grant_type"))
	assert.Equal(t, "abc", requests[0].Form.Get("code"))
	assert.Equal(t, "v", requests[0].Form.Get("code_verifier"))
	assert.Equal(t, testClientID, requests[0].Form.Get("client_id"))
	assert.Equal(t, testRedirectURI, requests[0].Form.Get("redirect_uri"))
	assert.Empty(t, env.timer.Delays())
	assert.False(t, env.manager.IsPending(ctx))
	assert.Empty(t, env.sink.Errors())
	stored, err := env.store.GetTokenSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.manager.GetAccessToken(ctx), stored.AccessToken)
}

func TestLoginRefreshesExpiredTokens(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, models.TokenSet{
		AccessToken:  "expired",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().Add(-10 * time.Second),
	})
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, ExpiresIn: 300})
	env := newTestEnvWithStore(t, store, server, nil, true)
	require.True(t, env.manager.IsAccessTokenExpired(ctx))

	env.manager.Login(ctx)

	assert.Empty(t, server.AuthorizeRequests())
	requests := server.TokenRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "refresh_token", requests[0].Form.Get("grant_type"))
	assert.Equal(t, "refresh-0", requests[0].Form.Get("refresh_token"))
	assert.Equal(t, []time.Duration{300 * time.Second}, env.timer.Delays())
	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.Equal(t, "refresh-1", env.manager.GetRefreshToken(ctx))
	assert.Equal(t, Authenticated, env.manager.State())
}

func TestLoginWithExpiredTokensWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, models.TokenSet{AccessToken: "expired", ExpiresAt: time.Now().Add(-time.Minute)})
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true})
	env := newTestEnvWithStore(t, store, server, nil, false)

	env.manager.Login(ctx)

	assert.Len(t, server.AuthorizeRequests(), 1)
	requests := server.TokenRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "authorization_code", requests[0].Form.Get("grant_type"))
	assert.True(t, env.manager.IsAuthenticated(ctx))
}

func TestLoginWhenAuthenticatedDoesNothing(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	env := newTestEnv(t, nil, client, false)
	require.NoError(t, env.manager.SetTokens(ctx, freshTokens("access")))
	pending := &recorder{}
	env.manager.SetPendingCallback(pending.record)

	env.manager.Login(ctx)

	assert.Equal(t, int32(0), client.authorizes.Load())
	assert.Equal(t, int32(0), client.refreshes.Load())
	assert.Empty(t, pending.Values())
}

func TestRejectedRefreshFallsBackToAuthorization(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, models.TokenSet{
		AccessToken:  "expired",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().Add(-10 * time.Second),
	})
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, RejectRefresh: true})
	env := newTestEnvWithStore(t, store, server, nil, false)
	authenticated := &recorder{}
	env.manager.SetAuthenticatedCallback(authenticated.record)

	env.manager.Login(ctx)

	requests := server.TokenRequests()
	require.Len(t, requests, 2)
	assert.Equal(t, "refresh_token", requests[0].Form.Get("grant_type"))
	assert.Equal(t, "authorization_code", requests[1].Form.Get("grant_type"))
	assert.Len(t, server.AuthorizeRequests(), 1)
	assert.Equal(t, []bool{false, true}, authenticated.Values())
	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.Empty(t, env.sink.Errors())
}

func TestExhaustedFallbackClearsTokens(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, models.TokenSet{
		AccessToken:  "expired",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().Add(-10 * time.Second),
	})
	server := startAuthServer(t, &authtest.AuthServer{Authorized: false, RejectRefresh: true})
	env := newTestEnvWithStore(t, store, server, nil, false)
	authenticated := &recorder{}
	env.manager.SetAuthenticatedCallback(authenticated.record)

	env.manager.Login(ctx)

	assert.False(t, env.manager.IsAuthenticated(ctx))
	assert.Equal(t, "", env.manager.GetAccessToken(ctx))
	_, err := store.GetTokenSet(ctx)
	assert.ErrorIs(t, err, autherrors.ErrTokensNotFound)
	errs := env.sink.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], autherrors.ErrAuthorizationRejected)
	assert.Equal(t, Failed, env.manager.State())
	assert.False(t, env.manager.IsPending(ctx))
	assert.Equal(t, []bool{false, false}, authenticated.Values())
}

func TestFailedAuthorizationIsRetriedOnce(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, RejectTokens: true})
	env := newTestEnv(t, server, nil, false)

	env.manager.Login(ctx)

	assert.Len(t, server.AuthorizeRequests(), 2)
	assert.Len(t, server.TokenRequests(), 2)
	errs := env.sink.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], autherrors.ErrTokenExchangeRejected)
	assert.ErrorContains(t, errs[0], "invalid_grant")
	assert.Equal(t, Failed, env.manager.State())
}

func TestLoginCanRecoverAfterFailure(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: false})
	env := newTestEnv(t, server, nil, false)
	env.manager.Login(ctx)
	require.Equal(t, Failed, env.manager.State())

	server.Configure(func(s *authtest.AuthServer) { s.Authorized = true })
	env.manager.Login(ctx)

	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.Equal(t, Authenticated, env.manager.State())
}

func TestLoginTwiceStartsOneAttempt(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	env := newTestEnv(t, nil, client, false)
	done := make(chan struct{})

	go func() {
		env.manager.Login(ctx)
		close(done)
	}()
	<-client.started
	assert.True(t, env.manager.IsPending(ctx))
	env.manager.Login(ctx)
	close(client.gate)
	<-done

	assert.Equal(t, int32(1), client.authorizes.Load())
	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.False(t, env.manager.IsPending(ctx))
}

func TestPendingCallbackTogglesAroundAttempt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, &fakeClient{}, false)
	pending := &recorder{}
	env.manager.SetPendingCallback(pending.record)

	env.manager.Login(ctx)

	assert.Equal(t, []bool{true, false}, pending.Values())
}

func TestRacingManagersConverge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	gate := make(chan struct{})
	clientA := &fakeClient{gate: gate, started: make(chan struct{}, 1)}
	clientB := &fakeClient{gate: gate, started: make(chan struct{}, 1)}
	envA := newTestEnvWithStore(t, store, nil, clientA, false, WithPendingRepository(racyPendingRepo{store}))
	envB := newTestEnvWithStore(t, store, nil, clientB, false, WithPendingRepository(racyPendingRepo{store}))
	doneA, doneB := make(chan struct{}), make(chan struct{})

	go func() {
		envA.manager.Login(ctx)
		close(doneA)
	}()
	go func() {
		envB.manager.Login(ctx)
		close(doneB)
	}()
	<-clientA.started
	<-clientB.started
	close(gate)
	<-doneA
	<-doneB

	assert.Equal(t, int32(1), clientA.authorizes.Load())
	assert.Equal(t, int32(1), clientB.authorizes.Load())
	assert.True(t, envA.manager.IsAuthenticated(ctx))
	assert.True(t, envB.manager.IsAuthenticated(ctx))
	stored, err := store.GetTokenSet(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Authenticated(time.Now()))
	assert.Empty(t, envA.sink.Errors())
	assert.Empty(t, envB.sink.Errors())
}

func TestLeaseAllowsOneAttemptAcrossManagers(t *testing.T) {
	ctx := context.Background()
	shared := db.NewMemoryClient()
	store := newTestStore(t, shared)
	lease := WithLockConfig(config.LockConfig{
		Mode:            config.LockModeLease,
		Scope:           config.LockScopeShared,
		LeaseTTLSeconds: 60,
	})
	clientA := &fakeClient{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	clientB := &fakeClient{}
	envA := newTestEnvWithStore(t, store, nil, clientA, false, lease)
	envB := newTestEnvWithStore(t, store, nil, clientB, false, lease)
	done := make(chan struct{})

	go func() {
		envA.manager.Login(ctx)
		close(done)
	}()
	<-clientA.started
	holder, err := shared.Get(ctx, "test:catalog-ui:pending").Result()
	require.NoError(t, err)
	assert.Equal(t, envA.manager.InstanceID(), holder)
	envB.manager.Login(ctx)
	assert.Equal(t, int32(0), clientB.authorizes.Load())
	assert.True(t, envB.manager.IsPending(ctx))
	close(clientA.gate)
	<-done

	assert.False(t, envA.manager.IsPending(ctx))
	assert.True(t, envB.manager.IsAuthenticated(ctx))
}

func TestLeaseIsNotReleasedByOtherOwner(t *testing.T) {
	ctx := context.Background()
	shared := db.NewMemoryClient()
	store := newTestStore(t, shared)
	env := newTestEnvWithStore(t, store, nil, &fakeClient{}, false, WithLockConfig(config.LockConfig{
		Mode:            config.LockModeLease,
		Scope:           config.LockScopeShared,
		LeaseTTLSeconds: 60,
	}))
	acquired, err := store.AcquirePendingFlag(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	env.manager.Login(ctx)
	env.manager.releasePending(ctx)

	assert.False(t, env.manager.IsAuthenticated(ctx))
	holder, err := shared.Get(ctx, "test:catalog-ui:pending").Result()
	require.NoError(t, err)
	assert.Equal(t, "other", holder)
}

func TestCancelledLoginSkipsFallback(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	env := newTestEnv(t, nil, client, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		env.manager.Login(ctx)
		close(done)
	}()
	<-client.started
	cancel()
	<-done

	assert.Equal(t, int32(1), client.authorizes.Load())
	assert.Equal(t, Failed, env.manager.State())
	errs := env.sink.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.False(t, env.manager.IsPending(context.Background()))
}

func TestInitWithValidTokensArmsRenewal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, models.TokenSet{
		AccessToken:  "access",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	})
	client := &fakeClient{}
	env := newTestEnvWithStore(t, store, nil, client, true)

	env.manager.Init(ctx)

	assert.Equal(t, int32(0), client.authorizes.Load())
	assert.Equal(t, int32(0), client.refreshes.Load())
	delays := env.timer.Delays()
	require.Len(t, delays, 1)
	assert.InDelta(t, (10 * time.Minute).Seconds(), delays[0].Seconds(), 1)
	assert.Equal(t, Authenticated, env.manager.State())
}

func TestInitWithValidTokensWithoutAutoRefresh(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, freshTokens("access"))
	env := newTestEnvWithStore(t, store, nil, &fakeClient{}, false)

	env.manager.Init(ctx)

	assert.Empty(t, env.timer.Delays())
	assert.Equal(t, Authenticated, env.manager.State())
}

func TestInitWithNeverExpiringTokens(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, db.NewMemoryClient())
	seedTokens(t, store, models.TokenSet{AccessToken: "access", RefreshToken: "refresh"})
	env := newTestEnvWithStore(t, store, nil, &fakeClient{}, true)

	env.manager.Init(ctx)

	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.Empty(t, env.timer.Delays())
}

func TestNoRenewalWithoutExpiresIn(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true})
	env := newTestEnv(t, server, nil, true)

	env.manager.Login(ctx)

	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.Empty(t, env.timer.Delays())
}

func TestRenewalRefreshesTokens(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, ExpiresIn: 300})
	env := newTestEnv(t, server, nil, true)
	tokens := freshTokens("access-0")
	tokens.RefreshToken = "refresh-0"
	require.NoError(t, env.manager.SetTokens(ctx, tokens))

	env.manager.RefreshTimer("refresh-0", time.Minute)
	env.timer.Fire()

	requests := server.TokenRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "refresh_token", requests[0].Form.Get("grant_type"))
	assert.Equal(t, "refresh-0", requests[0].Form.Get("refresh_token"))
	assert.Equal(t, []time.Duration{time.Minute, 300 * time.Second}, env.timer.Delays())
	assert.Equal(t, "refresh-1", env.manager.GetRefreshToken(ctx))
	assert.Equal(t, Authenticated, env.manager.State())
	assert.True(t, env.timer.Armed())
}

func TestRenewalSkippedWhilePending(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, ExpiresIn: 300})
	env := newTestEnv(t, server, nil, true)
	require.NoError(t, env.store.SetPendingFlag(ctx, "other", 0))

	env.manager.RefreshTimer("refresh-0", time.Minute)
	env.timer.Fire()

	assert.Empty(t, server.TokenRequests())
	assert.True(t, env.manager.IsPending(ctx))
}

func TestRenewalFailureFallsBackToAuthorization(t *testing.T) {
	ctx := context.Background()
	server := startAuthServer(t, &authtest.AuthServer{Authorized: true, RejectRefresh: true, ExpiresIn: 300})
	env := newTestEnv(t, server, nil, true)
	require.NoError(t, env.manager.SetTokens(ctx, freshTokens("access-0")))

	env.manager.RefreshTimer("refresh-0", time.Minute)
	env.timer.Fire()

	assert.Len(t, server.AuthorizeRequests(), 1)
	assert.True(t, env.manager.IsAuthenticated(ctx))
	assert.NotEqual(t, "access-0", env.manager.GetAccessToken(ctx))
	assert.False(t, env.manager.IsPending(ctx))
}

func TestNegativeRenewalDelayIsClamped(t *testing.T) {
	env := newTestEnv(t, nil, &fakeClient{}, true)

	env.manager.RefreshTimer("refresh", -time.Minute)

	assert.Equal(t, []time.Duration{0}, env.timer.Delays())
}

func TestRenewalAfterCloseDoesNothing(t *testing.T) {
	client := &fakeClient{}
	env := newTestEnv(t, nil, client, true)
	env.manager.Close()

	env.manager.renew("refresh")

	assert.Equal(t, int32(0), client.refreshes.Load())
	assert.True(t, env.timer.stopped)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, &fakeClient{}, true)
	env.manager.Login(ctx)
	require.Equal(t, Authenticated, env.manager.State())
	require.True(t, env.timer.Armed())

	err := env.manager.Logout(ctx)

	require.NoError(t, err)
	assert.False(t, env.timer.Armed())
	assert.False(t, env.manager.IsAuthenticated(ctx))
	assert.Equal(t, Idle, env.manager.State())
	_, err = env.store.GetTokenSet(ctx)
	assert.ErrorIs(t, err, autherrors.ErrTokensNotFound)
}

// unwritableTokenRepo reads from the store but refuses every write
type unwritableTokenRepo struct {
	*db.RedisAdapter
}

func (unwritableTokenRepo) SetTokenSet(ctx context.Context, tokens models.TokenSet) error {
	return errors.New("redis is read only")
}

func TestStorageFailureCancelsRenewal(t *testing.T) {
	store := newTestStore(t, db.NewMemoryClient())
	env := newTestEnvWithStore(t, store, nil, &fakeClient{}, true, WithTokenRepository(unwritableTokenRepo{store}))

	env.manager.Login(context.Background())

	assert.Equal(t, Failed, env.manager.State())
	assert.Equal(t, []time.Duration{time.Hour}, env.timer.Delays())
	assert.False(t, env.timer.Armed())
	require.Len(t, env.sink.Errors(), 1)
	assert.ErrorContains(t, env.sink.Errors()[0], "redis is read only")
}
