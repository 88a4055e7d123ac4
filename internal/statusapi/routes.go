package statusapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/labstack/echo/v4"
)

type Status struct {
	Authenticated    bool   `json:"authenticated"`
	Pending          bool   `json:"pending"`
	State            string `json:"state"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds,omitempty"`
}

type Token struct {
	AccessToken      string `json:"accessToken"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds,omitempty"`
}

type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) expiresInSeconds(ctx context.Context) *int64 {
	remaining, ok := s.manager.GetAccessTokenExpiresIn(ctx)
	if !ok {
		return nil
	}
	seconds := int64(remaining.Seconds())
	return &seconds
}

func (s *Server) status(ctx context.Context) Status {
	return Status{
		Authenticated:    s.manager.IsAuthenticated(ctx),
		Pending:          s.manager.IsPending(ctx),
		State:            s.manager.State().String(),
		ExpiresInSeconds: s.expiresInSeconds(ctx),
	}
}

func (s *Server) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status(c.Request().Context()))
}

// PostLogin starts a login in the background, the result shows up in the status
func (s *Server) PostLogin(c echo.Context) error {
	ctx := c.Request().Context()
	slog.Info("STATUS API", append([]any{"message", "login requested"}, requestAttrs(c)...)...)
	s.startLogin(context.WithoutCancel(ctx))
	return c.JSON(http.StatusAccepted, s.status(ctx))
}

func (s *Server) PostLogout(c echo.Context) error {
	ctx := c.Request().Context()
	err := s.manager.Logout(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.status(ctx))
}

func (s *Server) GetToken(c echo.Context) error {
	ctx := c.Request().Context()
	if !s.manager.IsAuthenticated(ctx) {
		return c.JSON(
			http.StatusUnauthorized,
			Error{Error: "not_authenticated", Message: autherrors.ErrNotAuthenticated.Error()},
		)
	}
	return c.JSON(http.StatusOK, Token{
		AccessToken:      s.manager.GetAccessToken(ctx),
		ExpiresInSeconds: s.expiresInSeconds(ctx),
	})
}
