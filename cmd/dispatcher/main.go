package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lattiq/dispatcher"
	"github.com/lattiq/dispatcher/internal/api"
	"github.com/lattiq/dispatcher/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(dispatcher.GetVersionInfo().String())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := dispatcher.NewLogger(cfg.Monitoring.Logging)
	if err != nil {
		return err
	}
	logger.Info().
		Str("config_file", cfg.File).
		Str("version", dispatcher.Version).
		Int("providers", len(cfg.Providers)).
		Msg("dispatcher starting")

	cfg.Monitoring.Logging.Logger = &logger
	cfg.Monitoring.Metrics.Registerer = prometheus.DefaultRegisterer

	svc, err := dispatcher.New(cfg.Config, nil)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var metrics *api.Metrics
	if cfg.Monitoring.Metrics.Enabled {
		metrics = api.NewMetrics(cfg.Monitoring.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	router := api.NewRouter(api.NewHandler(svc, logger), metrics)
	if cfg.Monitoring.Metrics.Enabled {
		router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	return serve(cfg, router, svc, logger)
}

func serve(cfg *config.Config, router chi.Router, svc *dispatcher.Service, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http shutdown: %w", err))
		}
		if err := svc.Close(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("dispatcher stopped with error")
		return err
	}
	logger.Info().Msg("dispatcher stopped")
	return nil
}
