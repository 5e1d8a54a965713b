package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/gprimview/internal/adapters/http"
	"github.com/dkeye/gprimview/internal/app"
	"github.com/dkeye/gprimview/internal/app/orch"
	"github.com/dkeye/gprimview/internal/config"
	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/metrics"
	"github.com/dkeye/gprimview/internal/plugins"
	"github.com/dkeye/gprimview/internal/stl"
	"github.com/dkeye/gprimview/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("bad log level, keeping info")
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Stack().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (core.ModelStore, error) {
	switch cfg.Store.Kind {
	case "minio":
		m := cfg.Store.Minio
		return store.NewMinio(ctx, store.MinioConfig{
			Endpoint:  m.Endpoint,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Region:    m.Region,
		})
	default:
		return store.NewLocal(cfg.Store.ViewDir)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	resolver, err := plugins.NewResolver(plugins.Env{
		Store: st,
		STL:   stl.Options{ExactBounds: cfg.STL.ExactBounds},
		CAD:   plugins.CADConfig{Tessellator: cfg.CAD.Tessellator, Timeout: cfg.CAD.Timeout},
	}, cfg.Plugins, plugins.Catalog())
	if err != nil {
		return err
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(resolver, cfg.Encoder.BufferLength, m),
		Plugins:  resolver,
		Store:    st,
		Metrics:  m,
	}

	r := router.SetupRouter(ctx, cfg, o, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("gprimview server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
