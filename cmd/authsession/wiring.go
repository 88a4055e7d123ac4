package main

import (
	"log/slog"

	"github.com/gachaplan/authsession/internal/authclient"
	"github.com/gachaplan/authsession/internal/authservice"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/gachaplan/authsession/internal/db"
	"github.com/gachaplan/authsession/internal/diagnostics"
	"github.com/gachaplan/authsession/internal/metrics"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
)

// stores returns the token store and the pending flag store. With a local lock scope the pending
// flag lives in the memory of this process and only the tokens go to redis.
func stores(cfg config.Config) (*db.RedisAdapter, *db.RedisAdapter, error) {
	tokenOptions := []db.RedisAdapterOption{
		db.WithRedisConfig(cfg.Redis),
		db.WithKeyPrefix(cfg.Redis.Namespace, cfg.Auth.ClientID),
	}
	if cfg.TokenEncryption.Enabled && cfg.TokenEncryption.SecretKey != "" {
		slog.Info("redis encryption is enabled")
		tokenOptions = append(tokenOptions, db.WithEncryption(string(cfg.TokenEncryption.SecretKey)))
	}
	tokenStore, err := db.NewRedisAdapter(tokenOptions...)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Lock.Scope == config.LockScopeShared {
		return tokenStore, tokenStore, nil
	}
	pendingStore, err := db.NewRedisAdapter(
		db.WithClient(db.NewMemoryClient()),
		db.WithKeyPrefix(cfg.Redis.Namespace, cfg.Auth.ClientID),
	)
	if err != nil {
		return nil, nil, err
	}
	return tokenStore, pendingStore, nil
}

func diagnosticSink(cfg config.Config) diagnostics.Sink {
	sinks := diagnostics.MultiSink{diagnostics.NewLogSink(jsonLogger)}
	if cfg.Monitoring.Sentry.Enabled {
		sinks = append(sinks, diagnostics.NewSentrySink(nil))
	}
	return sinks
}

func metricsRecorder(cfg config.Config, registerer prometheus.Registerer) (metrics.Recorder, error) {
	if !cfg.Monitoring.Prometheus.Enabled {
		return metrics.NoopRecorder{}, nil
	}
	return metrics.NewPrometheusRecorder(metrics.WithRegisterer(registerer))
}

func initSentry(cfg config.Config) {
	if !cfg.Monitoring.Sentry.Enabled {
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              string(cfg.Monitoring.Sentry.Dsn),
		TracesSampleRate: cfg.Monitoring.Sentry.SampleRate,
		Environment:      cfg.Monitoring.Sentry.Environment,
	})
	if err != nil {
		slog.Error("sentry initialization failed", "error", err)
	}
}

// newManager wires the token lifecycle manager with everything it needs from the configuration.
func newManager(cfg config.Config, registerer prometheus.Registerer) (*authservice.Manager, error) {
	tokenStore, pendingStore, err := stores(cfg)
	if err != nil {
		slog.Error("DB adapter initialization failed", "error", err)
		return nil, err
	}
	client, err := authclient.NewClient(authclient.WithConfig(cfg.Auth))
	if err != nil {
		slog.Error("authorization client initialization failed", "error", err)
		return nil, err
	}
	recorder, err := metricsRecorder(cfg, registerer)
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		return nil, err
	}
	manager, err := authservice.NewManager(
		authservice.WithConfig(cfg.Auth),
		authservice.WithLockConfig(cfg.Lock),
		authservice.WithAuthorizationClient(client),
		authservice.WithTokenRepository(tokenStore),
		authservice.WithPendingRepository(pendingStore),
		authservice.WithDiagnosticSink(diagnosticSink(cfg)),
		authservice.WithMetrics(recorder),
	)
	if err != nil {
		slog.Error("token lifecycle manager initialization failed", "error", err)
		return nil, err
	}
	return manager, nil
}
