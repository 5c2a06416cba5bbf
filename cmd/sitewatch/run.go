package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitewatch/internal/httpapi"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.shutdown(sctx); err != nil {
			a.log.Warn("shutdown_incomplete", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })

	if cfg.API.Addr != "" {
		api := httpapi.NewServer(a.log, a.registry, a.store, a.scheduler)
		api.Metrics = a.metrics.Handler()
		api.Location = a.location
		srv := &http.Server{
			Addr: cfg.API.Addr,
			Handler: api.Router(apimw.Keys{Public: cfg.API.PublicAPIKeys, Admin: cfg.API.AdminAPIKeys}, cfg.API.AllowedOrigins, httpapi.Limits{
				PublicRPM:   cfg.API.PublicRPM,
				PublicBurst: cfg.API.PublicBurst,
				AdminRPM:    cfg.API.AdminRPM,
				AdminBurst:  cfg.API.AdminBurst,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("api_listen", zap.String("addr", cfg.API.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil {
		a.log.Error("sitewatch_exit", zap.Error(err))
		return err
	}
	a.log.Info("sitewatch_exit")
	return nil
}
