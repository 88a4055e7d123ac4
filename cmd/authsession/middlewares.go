package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var logLevel *slog.LevelVar = new(slog.LevelVar)
var jsonLogger *slog.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

func requestAttrs(v middleware.RequestLoggerValues) []slog.Attr {
	return []slog.Attr{
		slog.String("uri", v.URI),
		slog.Int("status", v.Status),
		slog.String("requestID", v.RequestID),
		slog.String("method", v.Method),
		slog.String("handler", v.RoutePath),
		slog.String("remoteIP", v.RemoteIP),
		slog.Duration("latency", v.Latency),
	}
}

// requestLogger logs every status API call, errors are forwarded to the echo error handler which picks the status
var requestLogger echo.MiddlewareFunc = middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
	LogStatus:    true,
	LogURI:       true,
	LogError:     true,
	LogRequestID: true,
	LogRoutePath: true,
	LogMethod:    true,
	LogRemoteIP:  true,
	LogLatency:   true,
	HandleError:  true,
	LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
		if v.Error == nil {
			jsonLogger.LogAttrs(context.Background(), slog.LevelInfo, "REQUEST", requestAttrs(v)...)
			return nil
		}
		attrs := append(requestAttrs(v), slog.String("error", v.Error.Error()))
		jsonLogger.LogAttrs(context.Background(), slog.LevelError, "REQUEST_ERROR", attrs...)
		return nil
	},
})
var commonMiddlewares []echo.MiddlewareFunc = []echo.MiddlewareFunc{requestLogger}
