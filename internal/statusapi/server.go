// Package statusapi exposes the authentication status of the token lifecycle manager over HTTP.
package statusapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gachaplan/authsession/internal/authservice"
	"github.com/labstack/echo/v4"
)

const defaultBasePath string = "/auth"

// Manager is the part of the token lifecycle manager used by the status API
type Manager interface {
	IsAuthenticated(ctx context.Context) bool
	IsPending(ctx context.Context) bool
	State() authservice.State
	GetAccessToken(ctx context.Context) string
	GetAccessTokenExpiresIn(ctx context.Context) (time.Duration, bool)
	Login(ctx context.Context)
	Logout(ctx context.Context) error
}

type Server struct {
	manager  Manager
	basePath string
	logins   sync.WaitGroup
}

func (s *Server) RegisterHandlers(server *echo.Echo, commonMiddlewares ...echo.MiddlewareFunc) {
	e := server.Group(s.basePath)
	e.Use(commonMiddlewares...)
	e.GET("/status", s.GetStatus, NoCaching)
	e.POST("/login", s.PostLogin, NoCaching)
	e.POST("/logout", s.PostLogout, NoCaching)
	e.GET("/token", s.GetToken, NoCaching)
}

type ServerOption func(*Server) error

func WithManager(manager Manager) ServerOption {
	return func(s *Server) error {
		s.manager = manager
		return nil
	}
}

func WithBasePath(basePath string) ServerOption {
	return func(s *Server) error {
		s.basePath = basePath
		return nil
	}
}

// NewServer creates the handlers for the status, login, logout and token routes.
func NewServer(options ...ServerOption) (*Server, error) {
	server := Server{basePath: defaultBasePath}
	for _, opt := range options {
		err := opt(&server)
		if err != nil {
			return &Server{}, err
		}
	}
	if server.manager == nil {
		return &Server{}, fmt.Errorf("token lifecycle manager not provided")
	}
	return &server, nil
}

// Wait blocks until the logins started through the API are over
func (s *Server) Wait() {
	s.logins.Wait()
}

func (s *Server) startLogin(ctx context.Context) {
	s.logins.Add(1)
	go func() {
		defer s.logins.Done()
		s.manager.Login(ctx)
		slog.Debug("STATUS API", "message", "login finished", "authenticated", s.manager.IsAuthenticated(ctx))
	}()
}
