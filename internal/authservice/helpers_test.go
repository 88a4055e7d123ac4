package authservice

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gachaplan/authsession/internal/authclient"
	"github.com/gachaplan/authsession/internal/authtest"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/db"
	"github.com/gachaplan/authsession/internal/models"
	"github.com/gachaplan/authsession/internal/pkce"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    string = "catalog-ui"
	testRedirectURI string = "http://localhost:3000/callback"
)

type fakeTimer struct {
	lock      sync.Mutex
	delays    []time.Duration
	fn        func()
	cancelled int
	stopped   bool
}

func (f *fakeTimer) Arm(delay time.Duration, fn func()) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.delays = append(f.delays, delay)
	f.fn = fn
	return nil
}

func (f *fakeTimer) Cancel() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fn = nil
	f.cancelled++
}

func (f *fakeTimer) Stop() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fn = nil
	f.stopped = true
}

func (f *fakeTimer) Delays() []time.Duration {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]time.Duration{}, f.delays...)
}

func (f *fakeTimer) Armed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.fn != nil
}

// Fire runs the armed callback on the calling goroutine
func (f *fakeTimer) Fire() {
	f.lock.Lock()
	fn := f.fn
	f.fn = nil
	f.lock.Unlock()
	if fn != nil {
		fn()
	}
}

type recordingSink struct {
	lock sync.Mutex
	errs []error
}

func (r *recordingSink) Report(ctx context.Context, err error, attrs ...slog.Attr) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSink) Errors() []error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]error{}, r.errs...)
}

type recorder struct {
	lock   sync.Mutex
	values []bool
}

func (r *recorder) record(value bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values = append(r.values, value)
}

func (r *recorder) Values() []bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]bool{}, r.values...)
}

type staticGenerator struct {
	verifier string
}

func (g staticGenerator) Generate() (pkce.Challenge, error) {
	return pkce.Challenge{Verifier: g.verifier, Challenge: pkce.ChallengeFor(g.verifier), Method: pkce.MethodS256}, nil
}

// fakeClient hands out tokens without a server, Authorize blocks while gate is not nil and not closed
type fakeClient struct {
	gate       chan struct{}
	started    chan struct{}
	authorizes atomic.Int32
	refreshes  atomic.Int32
	err        error
}

func (f *fakeClient) Authorize(ctx context.Context, challenge pkce.Challenge) (string, error) {
	f.authorizes.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "code", nil
}

func (f *fakeClient) ExchangeCode(ctx context.Context, code string, verifier string) (models.TokenSet, error) {
	return freshTokens("access-code"), nil
}

func (f *fakeClient) Refresh(ctx context.Context, refreshToken string) (models.TokenSet, error) {
	f.refreshes.Add(1)
	return freshTokens("access-refresh"), nil
}

func freshTokens(accessToken string) models.TokenSet {
	return models.TokenSet{
		AccessToken:  accessToken,
		RefreshToken: "refresh",
		ExpiresAt:    time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
		ExpiresIn:    3600,
	}
}

func getTestAuthConfig(provider *url.URL, autoRefresh bool) config.AuthConfig {
	return config.AuthConfig{
		ClientID:         testClientID,
		Provider:         provider,
		RedirectURI:      testRedirectURI,
		AutoRefresh:      autoRefresh,
		RequestTimeoutMs: 2000,
		VerifierLength:   128,
	}
}

func newTestStore(t *testing.T, client db.LimitedRedisClient) *db.RedisAdapter {
	store, err := db.NewRedisAdapter(db.WithClient(client), db.WithKeyPrefix("test", testClientID))
	require.NoError(t, err)
	return store
}

func startAuthServer(t *testing.T, server *authtest.AuthServer) *authtest.AuthServer {
	server.ClientID = testClientID
	server.Start()
	t.Cleanup(server.Close)
	return server
}

type testEnv struct {
	store   *db.RedisAdapter
	timer   *fakeTimer
	sink    *recordingSink
	manager *Manager
}

// newTestEnv creates a manager talking to the mock server, or to client when it is not nil
func newTestEnv(
	t *testing.T,
	server *authtest.AuthServer,
	client AuthorizationClient,
	autoRefresh bool,
	options ...ManagerOption,
) testEnv {
	return newTestEnvWithStore(t, newTestStore(t, db.NewMemoryClient()), server, client, autoRefresh, options...)
}

func newTestEnvWithStore(
	t *testing.T,
	store *db.RedisAdapter,
	server *authtest.AuthServer,
	client AuthorizationClient,
	autoRefresh bool,
	options ...ManagerOption,
) testEnv {
	env := testEnv{
		store: store,
		timer: &fakeTimer{},
		sink:  &recordingSink{},
	}
	provider, err := url.Parse("http://localhost:8080")
	require.NoError(t, err)
	if server != nil {
		provider = server.URL()
	}
	authConfig := getTestAuthConfig(provider, autoRefresh)
	if client == nil {
		httpClient, err := authclient.NewClient(authclient.WithConfig(authConfig))
		require.NoError(t, err)
		client = httpClient
	}
	options = append([]ManagerOption{
		WithConfig(authConfig),
		WithAuthorizationClient(client),
		WithTokenRepository(env.store),
		WithPendingRepository(env.store),
		WithRenewalTimer(env.timer),
		WithDiagnosticSink(env.sink),
	}, options...)
	manager, err := NewManager(options...)
	require.NoError(t, err)
	t.Cleanup(manager.Close)
	env.manager = manager
	return env
}
