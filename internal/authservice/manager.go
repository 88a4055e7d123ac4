// Package authservice manages the lifecycle of the access and refresh tokens of an OAuth2 public client:
// it obtains them with the authorization code flow with PKCE, keeps them in the token store, renews them
// before they expire and tells a subscriber when the authentication status changes.
package authservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/diagnostics"
	"github.com/gachaplan/authsession/internal/metrics"
	"github.com/gachaplan/authsession/internal/models"
	"github.com/gachaplan/authsession/internal/pkce"
	"github.com/gachaplan/authsession/internal/renewal"
)

// AuthorizationClient performs the round trips to the authorization server
type AuthorizationClient interface {
	Authorize(ctx context.Context, challenge pkce.Challenge) (string, error)
	ExchangeCode(ctx context.Context, code string, verifier string) (models.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenSet, error)
}

type Manager struct {
	config      *config.AuthConfig
	lockConfig  config.LockConfig
	client      AuthorizationClient
	generator   pkce.Generator
	tokenRepo   models.TokenSetRepository
	pendingRepo models.PendingFlagRepository
	timer       renewal.Timer
	sink        diagnostics.Sink
	metrics     metrics.Recorder
	notifier    *Notifier
	attemptIDs  models.IDGenerator
	instanceID  string
	now         func() time.Time

	// lock guards the in-memory token set and the state
	lock   sync.RWMutex
	tokens models.TokenSet
	state  State
	// pendingLock makes checking and setting the pending flag a single step within the manager
	pendingLock sync.Mutex
	// renewals run on this context, it is cancelled by Close
	renewalCtx    context.Context
	cancelRenewal context.CancelFunc
	renewals      sync.WaitGroup
	closed        bool
}

type ManagerOption func(*Manager) error

func WithConfig(authConfig config.AuthConfig) ManagerOption {
	return func(m *Manager) error {
		if authConfig.ClientID == "" {
			return fmt.Errorf("the client ID is not set")
		}
		m.config = &authConfig
		return nil
	}
}

func WithLockConfig(lockConfig config.LockConfig) ManagerOption {
	return func(m *Manager) error {
		err := lockConfig.Validate()
		if err != nil {
			return err
		}
		m.lockConfig = lockConfig
		return nil
	}
}

func WithAuthorizationClient(client AuthorizationClient) ManagerOption {
	return func(m *Manager) error {
		m.client = client
		return nil
	}
}

func WithPKCEGenerator(generator pkce.Generator) ManagerOption {
	return func(m *Manager) error {
		m.generator = generator
		return nil
	}
}

func WithTokenRepository(repo models.TokenSetRepository) ManagerOption {
	return func(m *Manager) error {
		m.tokenRepo = repo
		return nil
	}
}

func WithPendingRepository(repo models.PendingFlagRepository) ManagerOption {
	return func(m *Manager) error {
		m.pendingRepo = repo
		return nil
	}
}

func WithRenewalTimer(timer renewal.Timer) ManagerOption {
	return func(m *Manager) error {
		m.timer = timer
		return nil
	}
}

func WithDiagnosticSink(sink diagnostics.Sink) ManagerOption {
	return func(m *Manager) error {
		m.sink = sink
		return nil
	}
}

func WithMetrics(recorder metrics.Recorder) ManagerOption {
	return func(m *Manager) error {
		m.metrics = recorder
		return nil
	}
}

// WithNotifier shares a notifier with other components, the manager creates its own otherwise
func WithNotifier(notifier *Notifier) ManagerOption {
	return func(m *Manager) error {
		m.notifier = notifier
		return nil
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) error {
		m.now = now
		return nil
	}
}

// NewManager creates the token lifecycle manager and loads the tokens that are already in the token store.
// Nothing is requested from the authorization server until Init or Login are called.
func NewManager(options ...ManagerOption) (*Manager, error) {
	m := Manager{
		lockConfig: config.LockConfig{Mode: config.LockModeAdvisory, Scope: config.LockScopeLocal},
		metrics:    metrics.NoopRecorder{},
		attemptIDs: models.ULIDGenerator{},
		now:        time.Now,
	}
	for _, opt := range options {
		err := opt(&m)
		if err != nil {
			return &Manager{}, err
		}
	}
	if m.config == nil {
		return &Manager{}, fmt.Errorf("auth config not provided")
	}
	if m.client == nil {
		return &Manager{}, fmt.Errorf("authorization client not provided")
	}
	if m.tokenRepo == nil {
		return &Manager{}, fmt.Errorf("token repository not provided")
	}
	if m.pendingRepo == nil {
		return &Manager{}, fmt.Errorf("pending flag repository not provided")
	}
	if m.generator == nil {
		generator, err := pkce.NewS256Generator(pkce.WithVerifierLength(m.verifierLength()))
		if err != nil {
			return &Manager{}, err
		}
		m.generator = generator
	}
	if m.timer == nil {
		m.timer = renewal.NewGocronTimer()
	}
	if m.sink == nil {
		m.sink = diagnostics.NewLogSink(nil)
	}
	if m.notifier == nil {
		m.notifier = &Notifier{}
	}
	instanceID, err := models.UUIDGenerator{}.ID()
	if err != nil {
		return &Manager{}, err
	}
	m.instanceID = instanceID
	m.renewalCtx, m.cancelRenewal = context.WithCancel(context.Background())

	tokens, err := m.tokenRepo.GetTokenSet(context.Background())
	switch {
	case err == nil:
		m.tokens = tokens
	case errors.Is(err, autherrors.ErrTokensNotFound):
	default:
		slog.Warn("AUTH SERVICE", "message", "could not load the stored tokens", "error", err)
	}
	slog.Info(
		"AUTH SERVICE",
		"message",
		"manager created",
		"instanceID",
		m.instanceID,
		"clientID",
		m.config.ClientID,
		"lockMode",
		m.lockConfig.Mode,
		"autoRefresh",
		m.config.AutoRefresh,
	)
	return &m, nil
}

func (m *Manager) verifierLength() int {
	if m.config.VerifierLength == 0 {
		return pkce.DefaultVerifierLength
	}
	return m.config.VerifierLength
}

// InstanceID identifies the manager, it is the owner written into the pending flag
func (m *Manager) InstanceID() string {
	return m.instanceID
}

func (m *Manager) SetAuthenticatedCallback(fn func(bool)) {
	m.notifier.SetAuthenticatedCallback(fn)
}

func (m *Manager) SetPendingCallback(fn func(bool)) {
	m.notifier.SetPendingCallback(fn)
}

// Close cancels the renewal that may be running, stops the renewal timer and waits for the renewal to return
func (m *Manager) Close() {
	m.lock.Lock()
	m.closed = true
	m.lock.Unlock()
	m.cancelRenewal()
	m.timer.Stop()
	m.renewals.Wait()
}

func (m *Manager) beginRenewal() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return false
	}
	m.renewals.Add(1)
	return true
}
