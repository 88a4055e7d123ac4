package models

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

type Encryptor interface {
	Encrypt(value string) (encrypted string, err error)
	Decrypt(value string) (decrypted string, err error)
}

// TokenSet is the access and refresh token pair of the client together with its expiry metadata.
// A TokenSet without an access token is considered to hold no tokens at all.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the zero time when the access token never expires
	ExpiresAt time.Time
	// ExpiresIn is the access token lifetime in seconds as reported by the authorization server
	ExpiresIn int64
	TokenType string
	Scope     string
	// Extra holds the fields of the token response that have no dedicated field
	Extra     map[string]any
	encryptor Encryptor
}

// SetEncryptor adds encryption capabilities to the token set
func (t TokenSet) SetEncryptor(enc Encryptor) TokenSet {
	output := t
	output.encryptor = enc
	return output
}

// Encrypt encrypts the token values if an encryptor is set
func (t TokenSet) Encrypt() (TokenSet, error) {
	if t.encryptor == nil {
		return t, nil
	}
	output := t
	var err error
	output.AccessToken, err = encryptValue(t.encryptor, t.AccessToken)
	if err != nil {
		return TokenSet{}, err
	}
	output.RefreshToken, err = encryptValue(t.encryptor, t.RefreshToken)
	if err != nil {
		return TokenSet{}, err
	}
	return output, nil
}

// Decrypt decrypts the token values if an encryptor is set
func (t TokenSet) Decrypt() (TokenSet, error) {
	if t.encryptor == nil {
		return t, nil
	}
	output := t
	var err error
	output.AccessToken, err = decryptValue(t.encryptor, t.AccessToken)
	if err != nil {
		return TokenSet{}, err
	}
	output.RefreshToken, err = decryptValue(t.encryptor, t.RefreshToken)
	if err != nil {
		return TokenSet{}, err
	}
	return output, nil
}

func encryptValue(enc Encryptor, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return enc.Encrypt(value)
}

func decryptValue(enc Encryptor, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return enc.Decrypt(value)
}

// Empty is true when there is no access token
func (t TokenSet) Empty() bool {
	return t.AccessToken == ""
}

// Expired is true when there is an access token with an expiry that is not in the future
func (t TokenSet) Expired(now time.Time) bool {
	if t.Empty() || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// Authenticated is true when there is an access token that has not expired
func (t TokenSet) Authenticated(now time.Time) bool {
	return !t.Empty() && !t.Expired(now)
}

// RemainingLifetime returns the time left until the access token expires, never negative.
// The second value is false when there is no access token or it does not expire.
func (t TokenSet) RemainingLifetime(now time.Time) (time.Duration, bool) {
	if t.Empty() || t.ExpiresAt.IsZero() {
		return 0, false
	}
	remaining := t.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0, true
	}
	return remaining, true
}

// OAuth2Token converts the token set for use with golang.org/x/oauth2 clients
func (t TokenSet) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	if len(t.Extra) > 0 {
		return token.WithExtra(t.Extra)
	}
	return token
}

// String immplements the Stringer interface for printing the token set in logs
func (t TokenSet) String() string {
	return fmt.Sprintf(
		"TokenSet<AccessToken: %s, RefreshToken: %s, ExpiresAt: %s, TokenType: %s, Scope: %s, Encryption: %v>",
		redactedValue(t.AccessToken),
		redactedValue(t.RefreshToken),
		t.ExpiresAt,
		t.TokenType,
		t.Scope,
		t.encryptor != nil,
	)
}

// LogValue keeps the token values out of structured logs
func (t TokenSet) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

func redactedValue(value string) string {
	if value == "" {
		return "none"
	}
	return "redacted"
}
