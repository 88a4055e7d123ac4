package authservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/metrics"
	"github.com/gachaplan/authsession/internal/models"
)

type exchange func(ctx context.Context) (models.TokenSet, error)

// Init is called once at startup. With valid tokens it only arms the renewal when auto refresh is on,
// otherwise it logs in.
func (m *Manager) Init(ctx context.Context) {
	tokens := m.currentTokens(ctx)
	now := m.now()
	if !tokens.Authenticated(now) {
		m.Login(ctx)
		return
	}
	m.transition(Authenticated)
	if !m.config.AutoRefresh {
		return
	}
	if remaining, ok := tokens.RemainingLifetime(now); ok {
		m.RefreshTimer(tokens.RefreshToken, remaining)
	}
}

// Login establishes a session unless there is one already or another attempt holds the pending flag.
// Expired tokens with a refresh token are refreshed, otherwise the authorization code flow is started.
// When that fails the tokens are cleared and the authorization code flow is tried once more. Login returns
// once the attempt is over, failures are only reported to the diagnostic sink.
func (m *Manager) Login(ctx context.Context) {
	tokens := m.currentTokens(ctx)
	now := m.now()
	if tokens.Authenticated(now) {
		return
	}
	path := metrics.PathAuthorize
	first := exchange(m.StartPKCEFlow)
	if tokens.Expired(now) && tokens.RefreshToken != "" {
		path = metrics.PathRefresh
		first = func(ctx context.Context) (models.TokenSet, error) {
			return m.RefreshToken(ctx, tokens.RefreshToken)
		}
	}
	if !m.acquirePending(ctx, path) {
		return
	}
	defer m.releasePending(ctx)
	m.attempt(ctx, m.newAttemptID(), path, first)
}

// StartPKCEFlow requests an authorization code for a new challenge and exchanges it for tokens.
// The tokens are returned, not stored.
func (m *Manager) StartPKCEFlow(ctx context.Context) (models.TokenSet, error) {
	challenge, err := m.generator.Generate()
	if err != nil {
		return models.TokenSet{}, fmt.Errorf("cannot create the PKCE challenge: %w", err)
	}
	code, err := m.client.Authorize(ctx, challenge)
	if err != nil {
		return models.TokenSet{}, err
	}
	return m.token(ctx, func(ctx context.Context) (models.TokenSet, error) {
		return m.client.ExchangeCode(ctx, code, challenge.Verifier)
	})
}

// RefreshToken exchanges the refresh token for new tokens. The tokens are returned, not stored.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) (models.TokenSet, error) {
	if refreshToken == "" {
		return models.TokenSet{}, fmt.Errorf("%w: there is no refresh token", autherrors.ErrTokenExchangeRejected)
	}
	return m.token(ctx, func(ctx context.Context) (models.TokenSet, error) {
		return m.client.Refresh(ctx, refreshToken)
	})
}

// token runs a token request and arms the renewal for the lifetime of the new access token when auto refresh is on
func (m *Manager) token(ctx context.Context, request exchange) (models.TokenSet, error) {
	tokens, err := request(ctx)
	if err != nil {
		return models.TokenSet{}, err
	}
	if m.config.AutoRefresh && tokens.ExpiresIn > 0 {
		m.RefreshTimer(tokens.RefreshToken, time.Duration(tokens.ExpiresIn)*time.Second)
	}
	return tokens, nil
}

// RefreshTimer replaces the armed renewal with one that refreshes the tokens after delay.
// The renewal is skipped when another attempt holds the pending flag at that time.
func (m *Manager) RefreshTimer(refreshToken string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	err := m.timer.Arm(delay, func() { m.renew(refreshToken) })
	if err != nil {
		slog.Error("AUTH SERVICE", "message", "arming the renewal failed", "error", err)
		return
	}
	m.metrics.RenewalArmed(delay)
	slog.Debug("AUTH SERVICE", "message", "renewal armed", "delay", delay, "instanceID", m.instanceID)
}

func (m *Manager) renew(refreshToken string) {
	if !m.beginRenewal() {
		return
	}
	defer m.renewals.Done()
	ctx := m.renewalCtx
	if !m.acquirePending(ctx, metrics.PathRefresh) {
		return
	}
	defer m.releasePending(ctx)
	m.attempt(ctx, m.newAttemptID(), metrics.PathRefresh, func(ctx context.Context) (models.TokenSet, error) {
		return m.RefreshToken(ctx, refreshToken)
	})
}

// attempt runs the first exchange and on failure clears the tokens and runs the authorization code flow once more.
// When that fails too the tokens are cleared again and the error goes to the diagnostic sink.
func (m *Manager) attempt(ctx context.Context, attemptID string, path string, first exchange) {
	if path == metrics.PathRefresh {
		m.transition(Refreshing)
	} else {
		m.transition(Authorizing)
	}
	slog.Info("AUTH SERVICE", "message", "attempt started", "attemptID", attemptID, "path", path)
	tokens, err := first(ctx)
	if err == nil {
		m.metrics.Attempt(path, metrics.OutcomeSuccess)
		m.complete(ctx, attemptID, path, tokens)
		return
	}
	m.metrics.Attempt(path, metrics.OutcomeFailure)
	if ctx.Err() != nil {
		m.transition(Failed)
		m.report(ctx, err, attemptID, path)
		return
	}
	slog.Warn(
		"AUTH SERVICE",
		"message",
		"attempt failed, starting a new authorization",
		"attemptID",
		attemptID,
		"path",
		path,
		"error",
		err,
	)
	m.clearTokens(ctx, attemptID)
	m.transition(Authorizing)
	tokens, err = m.StartPKCEFlow(ctx)
	if err == nil {
		m.metrics.Attempt(metrics.PathFallback, metrics.OutcomeSuccess)
		m.complete(ctx, attemptID, metrics.PathFallback, tokens)
		return
	}
	m.metrics.Attempt(metrics.PathFallback, metrics.OutcomeFailure)
	m.clearTokens(ctx, attemptID)
	m.transition(Failed)
	m.report(ctx, err, attemptID, metrics.PathFallback)
}

func (m *Manager) complete(ctx context.Context, attemptID string, path string, tokens models.TokenSet) {
	err := m.SetTokens(context.WithoutCancel(ctx), tokens)
	if err != nil {
		// the renewal armed for these tokens would refresh tokens that were never stored
		m.timer.Cancel()
		m.transition(Failed)
		m.report(ctx, fmt.Errorf("cannot store the new tokens: %w", err), attemptID, path)
		return
	}
	m.transition(Authenticated)
	slog.Info("AUTH SERVICE", "message", "authenticated", "attemptID", attemptID, "path", path, "tokens", tokens.String())
}

func (m *Manager) clearTokens(ctx context.Context, attemptID string) {
	err := m.ClearTokens(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("AUTH SERVICE", "message", "clearing the tokens failed", "attemptID", attemptID, "error", err)
	}
}

func (m *Manager) report(ctx context.Context, err error, attemptID string, path string) {
	m.sink.Report(
		context.WithoutCancel(ctx),
		err,
		slog.String("attemptID", attemptID),
		slog.String("path", path),
		slog.String("instanceID", m.instanceID),
		slog.String("clientID", m.config.ClientID),
	)
}

func (m *Manager) newAttemptID() string {
	id, err := m.attemptIDs.ID()
	if err != nil {
		slog.Warn("AUTH SERVICE", "message", "cannot generate an attempt ID", "error", err)
		return ""
	}
	return id
}

// Logout cancels the renewal and clears the tokens
func (m *Manager) Logout(ctx context.Context) error {
	m.timer.Cancel()
	err := m.ClearTokens(ctx)
	if err != nil {
		return err
	}
	m.transition(Idle)
	slog.Info("AUTH SERVICE", "message", "logged out", "instanceID", m.instanceID)
	return nil
}

// IsPending reports whether an attempt holds the pending flag, a storage error counts as not pending
func (m *Manager) IsPending(ctx context.Context) bool {
	exists, err := m.pendingRepo.PendingFlagExists(ctx)
	if err != nil {
		slog.Error("AUTH SERVICE", "message", "cannot read the pending flag", "error", err)
		return false
	}
	return exists
}

// acquirePending sets the pending flag unless it is already set. In advisory mode this is a check followed by a
// write so managers sharing the store can both get through, in lease mode the write only succeeds for one of them.
func (m *Manager) acquirePending(ctx context.Context, path string) bool {
	m.pendingLock.Lock()
	acquired, err := m.setPending(ctx)
	m.pendingLock.Unlock()
	if err != nil {
		slog.Error("AUTH SERVICE", "message", "cannot set the pending flag", "path", path, "error", err)
		return false
	}
	if !acquired {
		m.metrics.Attempt(path, metrics.OutcomeSkipped)
		slog.Info("AUTH SERVICE", "message", "another attempt is in flight, skipping", "path", path)
		return false
	}
	m.metrics.Pending(true)
	m.notifier.InvokePendingCallback(true)
	return true
}

func (m *Manager) setPending(ctx context.Context) (bool, error) {
	if m.lockConfig.Mode == config.LockModeLease {
		return m.pendingRepo.AcquirePendingFlag(ctx, m.instanceID, m.lockConfig.LeaseTTL())
	}
	exists, err := m.pendingRepo.PendingFlagExists(ctx)
	if err != nil || exists {
		return false, err
	}
	return true, m.pendingRepo.SetPendingFlag(ctx, m.instanceID, 0)
}

// releasePending removes the pending flag even when ctx was cancelled, a lease is only removed by its owner
func (m *Manager) releasePending(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	owner := ""
	if m.lockConfig.Mode == config.LockModeLease {
		owner = m.instanceID
	}
	m.pendingLock.Lock()
	err := m.pendingRepo.RemovePendingFlag(ctx, owner)
	m.pendingLock.Unlock()
	if err != nil {
		slog.Error("AUTH SERVICE", "message", "cannot remove the pending flag", "error", err)
	}
	m.metrics.Pending(false)
	m.notifier.InvokePendingCallback(false)
}
