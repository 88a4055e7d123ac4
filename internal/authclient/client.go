// Package authclient performs the round trips of the authorization code flow with PKCE
// against the /authorize and /token endpoints of an authorization server.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/models"
	"github.com/gachaplan/authsession/internal/pkce"
)

const maxRedirects int = 10

type Client struct {
	config      *config.AuthConfig
	redirectURI *url.URL
	httpClient  *http.Client
	now         func() time.Time
}

type ClientOption func(*Client) error

func WithConfig(authConfig config.AuthConfig) ClientOption {
	return func(c *Client) error {
		if authConfig.Provider == nil {
			return fmt.Errorf("the authorization server URL is not set")
		}
		redirectURI, err := url.Parse(authConfig.RedirectURI)
		if err != nil {
			return fmt.Errorf("cannot parse the redirect URI: %w", err)
		}
		c.config = &authConfig
		c.redirectURI = redirectURI
		return nil
	}
}

// WithHTTPClient sets the client used for the requests, its redirect policy is replaced.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) error {
		c.now = now
		return nil
	}
}

// NewClient creates a client for the authorization server described in the auth configuration.
func NewClient(options ...ClientOption) (*Client, error) {
	client := Client{now: time.Now}
	for _, opt := range options {
		err := opt(&client)
		if err != nil {
			return &Client{}, err
		}
	}
	if client.config == nil {
		return &Client{}, fmt.Errorf("auth client config not provided")
	}
	if client.config.RequestTimeoutMs <= 0 {
		return &Client{}, fmt.Errorf("the request timeout has to be positive")
	}
	httpClient := http.Client{}
	if client.httpClient != nil {
		httpClient = *client.httpClient
	}
	httpClient.CheckRedirect = client.checkRedirect
	client.httpClient = &httpClient
	return &client, nil
}

// checkRedirect stops following redirects once the redirect URI is reached, the code is read from there.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if c.isRedirectURI(req.URL) {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

func (c *Client) isRedirectURI(target *url.URL) bool {
	return target.Scheme == c.redirectURI.Scheme &&
		target.Host == c.redirectURI.Host &&
		strings.TrimSuffix(target.Path, "/") == strings.TrimSuffix(c.redirectURI.Path, "/")
}

// Authorize requests an authorization code bound to the challenge and returns it.
func (c *Client) Authorize(ctx context.Context, challenge pkce.Challenge) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout())
	defer cancel()

	query := models.NewOrderedForm()
	query.Set("client_id", c.config.ClientID)
	query.Set("response_type", "code")
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("code_challenge", challenge.Challenge)
	query.Set("code_challenge_method", challenge.Method)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.AuthorizeURL()+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	slog.Debug("AUTH CLIENT", "message", "requesting an authorization code", "url", c.config.AuthorizeURL())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", serverError(autherrors.ErrAuthorizationRejected, resp)
	}

	final := resp.Request.URL
	if isRedirect(resp.StatusCode) {
		final, err = resp.Location()
		if err != nil {
			return "", fmt.Errorf("%w: %w", autherrors.ErrMalformedRedirect, err)
		}
	}
	return extractCode(final, resp.StatusCode)
}

func isRedirect(statusCode int) bool {
	return statusCode >= http.StatusMultipleChoices && statusCode < http.StatusBadRequest
}

func extractCode(redirected *url.URL, statusCode int) (string, error) {
	query := redirected.Query()
	if errorCode := query.Get("error"); errorCode != "" {
		return "", &autherrors.ServerError{
			Kind:       autherrors.ErrAuthorizationRejected,
			StatusCode: statusCode,
			Code:       errorCode,
		}
	}
	code := query.Get("code")
	if code == "" {
		return "", autherrors.ErrMalformedRedirect
	}
	return code, nil
}

// ExchangeCode trades an authorization code and the verifier of its challenge for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string, verifier string) (models.TokenSet, error) {
	form := c.baseTokenForm()
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	return c.token(ctx, form)
}

// Refresh trades a refresh token for new tokens.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenSet, error) {
	form := c.baseTokenForm()
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.token(ctx, form)
}

func (c *Client) baseTokenForm() models.OrderedForm {
	form := models.NewOrderedForm()
	form.Set("client_id", c.config.ClientID)
	form.Set("redirect_uri", c.config.RedirectURI)
	return form
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", autherrors.ErrNetworkTimeout, err)
	}
	return fmt.Errorf("%w: %w", autherrors.ErrTransport, err)
}
