// Package app wires configuration into a ready audit trail and gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opgate/internal/gate"
	gatemetrics "opgate/internal/gate/metrics"
	"opgate/internal/platform/config"
	"opgate/internal/platform/httpserver"
	"opgate/internal/platform/kafka"
	"opgate/internal/platform/metrics"
	"opgate/internal/platform/postgres"
	platformredis "opgate/internal/platform/redis"
	audit "opgate/pkg/platform/audit"
	"opgate/pkg/platform/audit/publishers/compliance"
	"opgate/pkg/platform/audit/publishers/stream"
	"opgate/pkg/platform/audit/store/file"
	"opgate/pkg/platform/audit/store/memory"
	pgstore "opgate/pkg/platform/audit/store/postgres"
	redisstore "opgate/pkg/platform/audit/store/redis"
)

// Version is stamped at build time.
var Version = "dev"

// redisWaitTimeout bounds WAIT when replica acknowledgement is required.
const redisWaitTimeout = 2 * time.Second

// App holds the wired components for one process.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Trail    *audit.Trail
	Gate     *gate.Gate

	checks  map[string]httpserver.HealthCheck
	closers []func(context.Context) error
}

// Open builds the store selected by cfg, loads the trail, and wires the gate
// through the compliance publisher. When Kafka brokers are configured every
// recorded entry is also mirrored to the stream topic.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: metrics.NewRegistry(),
		checks:   make(map[string]httpserver.HealthCheck),
	}
	a.Metrics = metrics.New(a.Registry)
	a.Metrics.SetBuildInfo(Version, cfg.Audit.Backend)

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.Trail, err = audit.Open(ctx, store, audit.WithTrailLogger(logger))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Metrics.SetTrailEntries(a.Trail.Len())
	a.checks["trail"] = func(context.Context) error { return nil }

	pubOpts := []compliance.Option{
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics(a.Registry)),
	}
	if cfg.Kafka.Enabled() {
		mirror, err := a.openMirror(ctx)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		pubOpts = append(pubOpts, compliance.WithMirror(mirror))
	}

	a.Gate, err = gate.New(&trailRecorder{
		publisher: compliance.New(a.Trail, pubOpts...),
		trail:     a.Trail,
		metrics:   a.Metrics,
	},
		gate.WithLogger(logger),
		gate.WithMetrics(gatemetrics.New(a.Registry)),
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// openStore returns the backend selected by the config without loading it.
func (a *App) openStore(ctx context.Context) (audit.Store, error) {
	cfg := a.Config
	switch cfg.Audit.Backend {
	case config.BackendMemory:
		return memory.NewInMemoryStore(), nil

	case config.BackendFile:
		format, err := file.ParseFormat(cfg.Audit.Format)
		if err != nil {
			return nil, err
		}
		return file.New(cfg.Audit.File, file.WithFormat(format)), nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		store := pgstore.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.checks["postgres"] = store.Ping
		return store, nil

	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		opts := []redisstore.Option{redisstore.WithKey(cfg.Redis.Key)}
		if cfg.Redis.WaitReplicas > 0 {
			opts = append(opts, redisstore.WithWaitReplicas(cfg.Redis.WaitReplicas, redisWaitTimeout))
		}
		a.checks["redis"] = client.Health
		return redisstore.New(client.Client, opts...), nil
	}
	return nil, fmt.Errorf("unknown audit backend %q", cfg.Audit.Backend)
}

func (a *App) openMirror(ctx context.Context) (*stream.Publisher, error) {
	client, err := kafka.NewClient(a.Config.Kafka.Brokers)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		client.Close()
		return nil
	})
	if err := kafka.EnsureTopic(ctx, client, a.Config.Kafka.Topic, -1, -1); err != nil {
		return nil, err
	}

	producer := kafka.NewProducer(client)
	mirror := stream.New(producer, a.Config.Kafka.Topic,
		stream.WithLogger(a.Logger),
		stream.WithMetrics(stream.NewMetrics(a.Registry)),
	)
	mirror.Start(context.WithoutCancel(ctx))
	// Closers run in reverse, so the mirror drains before the client closes.
	a.closers = append(a.closers, mirror.Close)
	a.checks["kafka"] = producer.Ping
	return mirror, nil
}

// HealthChecks returns the checks for every opened dependency.
func (a *App) HealthChecks() map[string]httpserver.HealthCheck {
	out := make(map[string]httpserver.HealthCheck, len(a.checks))
	for k, v := range a.checks {
		out[k] = v
	}
	return out
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// trailRecorder keeps the trail size gauge current after each recorded entry.
type trailRecorder struct {
	publisher *compliance.Publisher
	trail     *audit.Trail
	metrics   *metrics.Metrics
}

func (r *trailRecorder) Emit(ctx context.Context, entry audit.Entry) error {
	if err := r.publisher.Emit(ctx, entry); err != nil {
		return err
	}
	r.metrics.SetTrailEntries(r.trail.Len())
	return nil
}
