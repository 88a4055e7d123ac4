package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	minVerifierLength int = 43
	maxVerifierLength int = 128
)

// AuthConfig describes the OAuth2 public client used for the PKCE flow.
// It is handed once to the token lifecycle manager and never changes afterwards.
type AuthConfig struct {
	ClientID string
	// Provider is the authorization server base URL, the /authorize and /token endpoints are relative to it
	Provider         *url.URL
	RedirectURI      string
	AutoRefresh      bool
	RequestTimeoutMs int
	VerifierLength   int
}

func (c AuthConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// AuthorizeURL is the endpoint where the authorization code is requested
func (c AuthConfig) AuthorizeURL() string {
	return c.Provider.JoinPath("authorize").String()
}

// TokenURL is the endpoint where codes and refresh tokens are exchanged
func (c AuthConfig) TokenURL() string {
	return c.Provider.JoinPath("token").String()
}

func (c AuthConfig) Validate(e RunningEnvironment) error {
	if c.ClientID == "" {
		return fmt.Errorf("the auth client ID cannot be empty")
	}
	if c.Provider == nil {
		return fmt.Errorf("the auth provider URL is not set")
	}
	if c.Provider.Scheme != "http" && c.Provider.Scheme != "https" {
		return fmt.Errorf("the auth provider URL has an unsupported scheme %q", c.Provider.Scheme)
	}
	if e == Production && c.Provider.Scheme != "https" {
		return fmt.Errorf("the auth provider URL has to use https in production")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("the auth redirect URI cannot be empty")
	}
	redirectURI, err := url.Parse(c.RedirectURI)
	if err != nil {
		return fmt.Errorf("the auth redirect URI is invalid: %w", err)
	}
	if !redirectURI.IsAbs() {
		return fmt.Errorf("the auth redirect URI has to be absolute")
	}
	if c.RequestTimeoutMs <= 0 {
		return fmt.Errorf("the request timeout has to be positive, got %dms", c.RequestTimeoutMs)
	}
	if c.VerifierLength < minVerifierLength || c.VerifierLength > maxVerifierLength {
		return fmt.Errorf(
			"the code verifier length has to be between %d and %d, got %d",
			minVerifierLength,
			maxVerifierLength,
			c.VerifierLength,
		)
	}
	return nil
}

type TokenEncryptionConfig struct {
	Enabled   bool
	SecretKey RedactedString
}

func (c TokenEncryptionConfig) Validate() error {
	if c.Enabled && len(c.SecretKey) != 32 {
		return fmt.Errorf(
			"token encryption key has to be 32 bytes long, the provided one is %d long",
			len(c.SecretKey),
		)
	}
	return nil
}
