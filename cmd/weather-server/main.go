package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weather-udp/config"
	"weather-udp/middleware"
	"weather-udp/observability"
	"weather-udp/registry"
	"weather-udp/server"
	"weather-udp/weather"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port        int
		bind        string
		metricsAddr string
		logLevel    string
		rateLimit   float64
	)

	cmd := &cobra.Command{
		Use:           "weather-server",
		Short:         "Serve synthetic weather metrics over UDP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("bind") {
				cfg.BindHost = bind
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("rate-limit") {
				cfg.RateLimit = rateLimit
			}
			if err := cfg.Validate(); err != nil {
				slog.Error("invalid configuration", "error", err)
				return err
			}

			return run(cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "UDP port to listen on (default $WEATHER_PORT or 56700)")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default $WEATHER_BIND or 0.0.0.0)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /healthz, /readyz and /metrics on this address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "max requests per second across all clients, 0 for unlimited")
	return cmd
}

func run(cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	svc := weather.NewService(weather.NewSource(uint64(time.Now().UnixNano())))

	opts := []server.Option{server.WithLogger(logger), server.WithMetrics(metrics)}
	if len(cfg.EtcdEndpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			logger.Error("failed to connect registry", "error", err)
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.AdvertiseAddr, cfg.RegistryTTL))
		logger.Info("service registration enabled", "endpoints", cfg.EtcdEndpoints, "advertise", cfg.AdvertiseAddr)
	}

	srv := server.NewServer(svc.Handle, opts...)
	for _, mw := range middlewares(cfg, logger, metrics) {
		srv.Use(mw)
	}
	if cfg.RateLimit > 0 {
		logger.Info("rate limiting enabled", "rate", cfg.RateLimit, "burst", cfg.RateBurst)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpSrv *observability.Server
	if cfg.MetricsAddr != "" {
		httpSrv = observability.NewServer(cfg.MetricsAddr, srv, logger)
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe("udp4", cfg.ListenAddr())
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("udp server error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error("udp server shutdown error", "error", err)
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// middlewares returns the request chain, outermost first. The limiter runs
// before logging so a limited datagram costs no reverse lookup.
func middlewares(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, logOpts ...middleware.LoggingOption) []middleware.Middleware {
	var mws []middleware.Middleware
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, metrics))
	}
	logOpts = append([]middleware.LoggingOption{middleware.WithLookupTimeout(cfg.LookupTimeout)}, logOpts...)
	return append(mws,
		middleware.LoggingMiddleware(logger, logOpts...),
		middleware.MetricsMiddleware(metrics),
	)
}
