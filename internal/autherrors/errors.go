// Package autherrors contains all common errors used by the token lifecycle manager.
package autherrors

import (
	"fmt"
)

var ErrNetworkTimeout = fmt.Errorf("the request to the authorization server timed out")
var ErrTransport = fmt.Errorf("the request to the authorization server could not be completed")
var ErrAuthorizationRejected = fmt.Errorf("the authorization request was rejected")
var ErrTokenExchangeRejected = fmt.Errorf("the token request was rejected")
var ErrMalformedRedirect = fmt.Errorf("the authorization redirect does not contain a code")
var ErrTokensNotFound = fmt.Errorf("the tokens cannot be found")
var ErrMissingDBResource = fmt.Errorf("the requested resource cannot be found in the DB")
var ErrNotAuthenticated = fmt.Errorf("there is no valid access token")

// ServerError is a failure reported by the authorization server with a status code and an OAuth error code.
type ServerError struct {
	// Kind is one of ErrAuthorizationRejected or ErrTokenExchangeRejected
	Kind       error
	StatusCode int
	Code       string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Kind, e.StatusCode, e.Code)
}

func (e *ServerError) Unwrap() error {
	return e.Kind
}
