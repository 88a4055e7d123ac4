package authservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/models"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Manager)(nil)

// currentTokens returns the in-memory tokens, reading them from the token store when there are none.
// This picks up tokens written by another manager sharing the store.
func (m *Manager) currentTokens(ctx context.Context) models.TokenSet {
	m.lock.RLock()
	tokens := m.tokens
	m.lock.RUnlock()
	if !tokens.Empty() {
		return tokens
	}
	stored, err := m.tokenRepo.GetTokenSet(ctx)
	if err != nil {
		if !errors.Is(err, autherrors.ErrTokensNotFound) {
			slog.Error("AUTH SERVICE", "message", "cannot read the stored tokens", "error", err)
		}
		return models.TokenSet{}
	}
	m.lock.Lock()
	if m.tokens.Empty() {
		m.tokens = stored
	}
	m.lock.Unlock()
	return stored
}

func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.currentTokens(ctx).Authenticated(m.now())
}

func (m *Manager) IsAccessTokenExpired(ctx context.Context) bool {
	return m.currentTokens(ctx).Expired(m.now())
}

// GetAccessToken returns the stored access token even when it expired, "" when there is none
func (m *Manager) GetAccessToken(ctx context.Context) string {
	return m.currentTokens(ctx).AccessToken
}

func (m *Manager) GetRefreshToken(ctx context.Context) string {
	return m.currentTokens(ctx).RefreshToken
}

// GetAccessTokenExpiresIn returns the remaining lifetime of the access token,
// false when there is no access token or it does not expire
func (m *Manager) GetAccessTokenExpiresIn(ctx context.Context) (time.Duration, bool) {
	return m.currentTokens(ctx).RemainingLifetime(m.now())
}

// SetTokens writes the tokens to the token store, keeps them in memory and notifies the authenticated subscriber
func (m *Manager) SetTokens(ctx context.Context, tokens models.TokenSet) error {
	err := m.tokenRepo.SetTokenSet(ctx, tokens)
	if err != nil {
		return err
	}
	m.lock.Lock()
	m.tokens = tokens
	m.lock.Unlock()
	m.notifier.InvokeAuthenticatedCallback(m.IsAuthenticated(ctx))
	return nil
}

// ClearTokens removes the tokens from the token store and memory and notifies the authenticated subscriber
func (m *Manager) ClearTokens(ctx context.Context) error {
	err := m.tokenRepo.RemoveTokenSet(ctx)
	if err != nil {
		return err
	}
	m.lock.Lock()
	m.tokens = models.TokenSet{}
	m.lock.Unlock()
	m.notifier.InvokeAuthenticatedCallback(m.IsAuthenticated(ctx))
	return nil
}

// Token implements oauth2.TokenSource, it does not log in or refresh
func (m *Manager) Token() (*oauth2.Token, error) {
	tokens := m.currentTokens(context.Background())
	if !tokens.Authenticated(m.now()) {
		return nil, autherrors.ErrNotAuthenticated
	}
	return tokens.OAuth2Token(), nil
}
