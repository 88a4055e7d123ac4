// Package diagnostics receives the authentication failures that are never returned to the callers of the manager.
package diagnostics

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// Sink receives the error of an attempt whose fallback was exhausted
type Sink interface {
	Report(ctx context.Context, err error, attrs ...slog.Attr)
}

// LogSink writes the reported errors to a structured logger
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink on the given logger, the default logger is used when it is nil
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(ctx context.Context, err error, attrs ...slog.Attr) {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs = append([]slog.Attr{slog.String("message", "authentication failed"), slog.String("error", err.Error())}, attrs...)
	logger.LogAttrs(ctx, slog.LevelError, "AUTH FAILURE", attrs...)
}

// SentrySink sends the reported errors to sentry, the attributes become tags of the event
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink creates a sink on the given hub, the hub of the context or the current hub are used when it is nil
func NewSentrySink(hub *sentry.Hub) *SentrySink {
	return &SentrySink{hub: hub}
}

func (s *SentrySink) Report(ctx context.Context, err error, attrs ...slog.Attr) {
	hub := s.hub
	if hub == nil {
		hub = sentry.GetHubFromContext(ctx)
	}
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for _, attr := range attrs {
			scope.SetTag(attr.Key, attr.Value.String())
		}
		hub.CaptureException(err)
	})
}

// MultiSink forwards every report to all of its sinks
type MultiSink []Sink

func (m MultiSink) Report(ctx context.Context, err error, attrs ...slog.Attr) {
	for _, sink := range m {
		sink.Report(ctx, err, attrs...)
	}
}
