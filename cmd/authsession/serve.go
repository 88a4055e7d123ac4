package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/statusapi"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout time.Duration = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Log in, keep the tokens fresh and serve the status API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func newEcho(cfg config.Config) *echo.Echo {
	e := echo.New()
	e.Pre(middleware.RequestID(), middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	// The banner and the port do not respect the logger formatting we set below so we remove them
	// the port will be logged further down when the server starts.
	e.HideBanner = true
	e.HidePort = true
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	buildInfo, ok := debug.ReadBuildInfo()
	version := ""
	if ok && buildInfo != nil {
		version = buildInfo.Main.Version
	}
	e.GET("/version", func(c echo.Context) error {
		return c.String(http.StatusOK, version)
	})
	if cfg.Server.RateLimits.Enabled {
		e.Use(middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(cfg.Server.RateLimits.Rate),
					Burst:     cfg.Server.RateLimits.Burst,
					ExpiresIn: 3 * time.Minute,
				}),
		),
		)
	}
	if len(cfg.Server.AllowOrigin) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.Server.AllowOrigin}))
	}
	if cfg.Monitoring.Sentry.Enabled {
		e.Use(sentryecho.New(sentryecho.Options{}))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		e.Use(echoprometheus.NewMiddleware("authsession"))
	}
	return e
}

func newMetricsServer() *echo.Echo {
	metricsServer := echo.New()
	metricsServer.HideBanner = true
	metricsServer.HidePort = true
	metricsServer.GET("/metrics", echoprometheus.NewHandler())
	return metricsServer
}

// reloadLogLevel follows the debug mode of the config files, nothing else is reloaded while running
func reloadLogLevel(cfg config.Config, err error) {
	if err != nil {
		slog.Error("CONFIG", "message", "the changed config is invalid and was ignored", "error", err)
		return
	}
	if cfg.DebugMode || debugFlag {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(slog.LevelInfo)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, ch, err := loadConfig()
	if err != nil {
		slog.Error("loading the configuration failed", "error", err)
		return err
	}
	initSentry(cfg)
	manager, err := newManager(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer manager.Close()
	manager.SetAuthenticatedCallback(func(authenticated bool) {
		slog.Info("AUTH SERVICE", "message", "authentication changed", "authenticated", authenticated)
	})
	statusServer, err := statusapi.NewServer(statusapi.WithManager(manager))
	if err != nil {
		slog.Error("status handlers initialization failed", "error", err)
		return err
	}
	e := newEcho(cfg)
	statusServer.RegisterHandlers(e, commonMiddlewares...)
	ch.HandleChanges(reloadLogLevel)
	ch.Watch()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.Init(gctx)
		return nil
	})
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		slog.Info("starting the server on address " + address)
		err := e.Start(address)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("the server failed: %w", err)
		}
		return nil
	})
	var metricsServer *echo.Echo
	if cfg.Monitoring.Prometheus.Enabled {
		metricsServer = newMetricsServer()
		g.Go(func() error {
			err := metricsServer.Start(fmt.Sprintf(":%d", cfg.Monitoring.Prometheus.Port))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("the prometheus server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("received signal to shut down the server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutting down the prometheus server gracefully failed", "error", err)
			}
		}
		return e.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	statusServer.Wait()
	if err != nil {
		slog.Error("shutting down the server gracefully failed", "error", err)
		return err
	}
	return nil
}
