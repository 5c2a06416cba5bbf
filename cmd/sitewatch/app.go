package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/dispatch"
	"github.com/hamed0406/sitewatch/internal/engine"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/registry"
	"github.com/hamed0406/sitewatch/internal/remediate"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/stores"
	"github.com/hamed0406/sitewatch/internal/scheduler"
	"github.com/hamed0406/sitewatch/internal/tracing"
)

// app is the wired set of components shared by the run and once commands.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	registry  *registry.Registry
	store     repo.StateStore
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	location  *time.Location
	shutdown  func(context.Context) error
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logging.New(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Console: cfg.Log.Console})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if cfg.Notify.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Notify.Timezone); err != nil {
			return nil, &config.ConfigError{Field: "notify.timezone", Reason: err.Error()}
		}
	}

	store, err := stores.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	n, err := notify.New(cfg.Notify, cfg.Dispatch.Timeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	disp := dispatch.New(n, remediate.New(cfg.Remediation), dispatch.Options{
		Policy:    dispatch.PolicyFromConfig(cfg.Dispatch),
		ServiceID: cfg.Remediation.ServiceID,
		Location:  loc,
	}, log)

	tp, stopTracing, err := tracing.Setup(cfg.Tracing, version)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New()
	prober := probe.NewHTTPProber(cfg.ProbeTimeout, cfg.UserAgent)

	sched := scheduler.New(log, reg.All(), prober, store, disp, scheduler.Options{
		Interval:      cfg.Interval(),
		Concurrency:   cfg.Concurrency,
		ShutdownGrace: cfg.ShutdownGrace,
		Policy: engine.Policy{
			FailureThreshold:     uint(cfg.FailureThreshold),
			RemediationThreshold: uint(max(cfg.Remediation.Threshold, 0)),
			RemediationPolicy:    engine.RemediationPolicy(cfg.Remediation.Policy),
			RepeatInterval:       cfg.RepeatInterval,
		},
		StartupMessage: cfg.Notify.StartupMessage,
		Location:       loc,
		Metrics:        m,
		Tracer:         tp.Tracer(tracing.TracerName),
	})

	a := &app{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		store:     store,
		metrics:   m,
		scheduler: sched,
		location:  loc,
	}
	a.shutdown = func(ctx context.Context) error {
		err := multierr.Combine(stopTracing(ctx), store.Close())
		_ = log.Sync()
		return err
	}
	log.Info("sitewatch_ready",
		zap.String("version", version),
		zap.Int("targets", reg.Len()),
		zap.String("store", cfg.Store.Driver),
		zap.String("notify", cfg.Notify.Kind),
		zap.Int("remediation_threshold", cfg.Remediation.Threshold),
	)
	return a, nil
}
