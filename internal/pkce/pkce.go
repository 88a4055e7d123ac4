// Package pkce creates the proof key used to bind an authorization code to the client that asked for it.
package pkce

import (
	"fmt"

	"github.com/gachaplan/authsession/internal/models"
	"golang.org/x/oauth2"
)

const MethodS256 string = "S256"

const (
	MinVerifierLength     int = 43
	MaxVerifierLength     int = 128
	DefaultVerifierLength int = 128
)

// Challenge is a code verifier together with the challenge sent in the authorization request
type Challenge struct {
	Verifier  string
	Challenge string
	Method    string
}

type Generator interface {
	Generate() (Challenge, error)
}

// S256Generator creates verifiers from the URL safe base64 alphabet and S256 challenges for them
type S256Generator struct {
	length int
	random models.IDGenerator
}

type S256GeneratorOption func(*S256Generator) error

// WithVerifierLength sets the number of characters of the verifier
func WithVerifierLength(length int) S256GeneratorOption {
	return func(g *S256Generator) error {
		if length < MinVerifierLength || length > MaxVerifierLength {
			return fmt.Errorf(
				"the verifier length has to be between %d and %d, got %d",
				MinVerifierLength,
				MaxVerifierLength,
				length,
			)
		}
		g.length = length
		return nil
	}
}

func NewS256Generator(options ...S256GeneratorOption) (S256Generator, error) {
	g := S256Generator{length: DefaultVerifierLength}
	for _, opt := range options {
		err := opt(&g)
		if err != nil {
			return S256Generator{}, err
		}
	}
	// every 3 random bytes give 4 characters
	g.random = models.NewRandomGenerator((g.length*3 + 3) / 4)
	return g, nil
}

func (g S256Generator) NewVerifier() (string, error) {
	if g.random == nil {
		return "", fmt.Errorf("the verifier generator is not initialized")
	}
	verifier, err := g.random.ID()
	if err != nil {
		return "", fmt.Errorf("failed to generate the code verifier: %w", err)
	}
	if len(verifier) < g.length {
		return "", fmt.Errorf("the code verifier is too short: %d < %d", len(verifier), g.length)
	}
	return verifier[:g.length], nil
}

// ChallengeFor is the base64url encoded SHA-256 digest of the verifier without padding
func ChallengeFor(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func (g S256Generator) Generate() (Challenge, error) {
	verifier, err := g.NewVerifier()
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{
		Verifier:  verifier,
		Challenge: ChallengeFor(verifier),
		Method:    MethodS256,
	}, nil
}
