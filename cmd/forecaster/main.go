// Command forecaster implements the plugcast occupancy forecast engine.
//
// It learns daily and weekly occupancy patterns of a charging plug (or any
// resource sampled every 5 minutes) with L2-regularized logistic regression
// and predicts the next 12 hours as 144 binary slots.
//
// Modes:
//   - serve: HTTP API (POST /forecast, GET /forecast/current, /healthz,
//     /metrics) plus a gRPC health service
//   - batch: forecast every *.txt history in INPUT_FOLDER into
//     OUTPUT_FOLDER/<name>_pred.json, then exit
//   - watch: serve, and refresh RESOURCE's snapshot from the configured
//     adapter every INTERVAL
//
// Usage:
//
//	forecaster -mode=serve -listen=:8081
//	INPUT_FOLDER=./in OUTPUT_FOLDER=./out forecaster -mode=batch
//	forecaster -mode=watch -resource=plug-17 -adapter=postgres \
//	  -adapter-opt=dsn=postgres://plugcast@db/telemetry
//
// Environment variables:
//
//	MODE           - serve, batch or watch (default: serve)
//	INPUT_FOLDER   - Folder of .txt histories (batch)
//	OUTPUT_FOLDER  - Folder for forecasts (batch)
//	THRESHOLD      - Occupancy probability threshold (default: 0.6)
//	LEARNING_RATE  - Gradient descent step size (default: 0.05)
//	ITERATIONS     - Maximum iterations (default: 3000)
//	L2             - Regularization strength (default: 0.01)
//	STORAGE        - memory or redis (default: memory)
//	RESOURCE       - Resource to refresh (watch)
//	ADAPTER        - file, http, prometheus, victoriametrics or postgres
//	ADAPTER_*      - Adapter settings, e.g. ADAPTER_PATH, ADAPTER_DSN
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/plugcast/cmd/forecaster/config"
	"github.com/HatiCode/plugcast/cmd/forecaster/logger"
	"github.com/HatiCode/plugcast/cmd/forecaster/metrics"
	"github.com/HatiCode/plugcast/cmd/forecaster/router"
	"github.com/HatiCode/plugcast/cmd/forecaster/store"
	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/httpx"
	"github.com/HatiCode/plugcast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

const healthServiceName = "plugcast.Forecaster"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting plugcast forecaster",
		"version", version,
		"mode", cfg.Mode,
		"threshold", cfg.Threshold,
		"iterations", cfg.Iterations,
		"tls_enabled", cfg.TLS.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	m := metrics.New(cfg.Mode)

	if cfg.Mode == config.ModeBatch {
		os.Exit(runBatch(ctx, cfg, log, m))
	}

	backend, err := store.New(cfg, log)
	if err != nil {
		log.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	if err := serve(ctx, cfg, backend, log, m); err != nil {
		log.Error("forecaster failed", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func runBatch(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) int {
	b := &batchRunner{
		pipeline: forecast.NewPipeline(nil, log),
		opts:     cfg.ForecastOptions(),
		logger:   log,
		metrics:  m,
	}

	stats, err := b.Run(ctx, cfg.InputFolder, cfg.OutputFolder)
	if err != nil {
		log.Error("batch run failed", "error", err)
		return 1
	}

	log.Info("batch run complete", "processed", stats.Processed, "failed", stats.Failed)
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// serve runs the HTTP API and gRPC health service, plus the forecast loop
// in watch mode, until ctx is canceled or a server fails.
func serve(ctx context.Context, cfg *config.Config, backend store.Backend, log *slog.Logger, m *metrics.Metrics) error {
	serverTLS, err := cfg.TLS.ServerConfig()
	if err != nil {
		return err
	}

	pipeline := forecast.NewPipeline(backend, log)

	healthCheck := func() error { return nil }
	if pinger, ok := backend.(interface{ Ping(context.Context) error }); ok {
		healthCheck = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pinger.Ping(pingCtx)
		}
	}

	handler := router.SetupRoutes(router.Options{
		Store:          backend,
		Pipeline:       pipeline,
		Metrics:        m,
		Forecast:       cfg.ForecastOptions(),
		StaleAfter:     cfg.StaleAfter(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Health:         healthCheck,
		Logger:         log,
	})
	httpServer := httpx.NewServer(cfg.Listen, handler, log)
	if serverTLS != nil {
		httpServer.SetTLSConfig(serverTLS)
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			_ = httpServer.Stop(time.Second)
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer, healthServer = startGRPC(lis, serverTLS, log, serverErr)
	}

	if cfg.Mode == config.ModeWatch {
		if err := startWatch(ctx, cfg, backend, pipeline, log, m); err != nil {
			_ = httpServer.Stop(time.Second)
			if grpcServer != nil {
				grpcServer.Stop()
			}
			return err
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			runErr = err
		}
	}

	log.Info("shutting down")

	if grpcServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}

	if err := httpServer.Stop(10 * time.Second); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// startGRPC serves grpc.health.v1 with reflection on lis, so probes and
// grpcurl can check the forecaster the same way they check other services.
func startGRPC(lis net.Listener, serverTLS *tls.Config, log *slog.Logger, serverErr chan<- error) (*grpc.Server, *health.Server) {
	var opts []grpc.ServerOption
	if serverTLS != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(serverTLS)))
	}
	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	go func() {
		log.Info("grpc server listening", "address", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			serverErr <- fmt.Errorf("grpc server failed: %w", err)
		}
	}()

	return grpcServer, healthServer
}

func startWatch(ctx context.Context, cfg *config.Config, backend storage.Store, pipeline *forecast.Pipeline, log *slog.Logger, m *metrics.Metrics) error {
	adapter, err := buildAdapter(ctx, cfg, log)
	if err != nil {
		return err
	}

	f := New(cfg.Resource, adapter, pipeline, backend, cfg.ForecastOptions(), cfg.Window, log, m)
	go runWatch(ctx, f, cfg.Interval, log)
	return nil
}

// runWatch runs the forecast loop until ctx ends, then closes the adapter.
func runWatch(ctx context.Context, f *Forecaster, interval time.Duration, log *slog.Logger) {
	defer func() {
		if err := f.Close(); err != nil {
			log.Error("failed to close adapter", "error", err)
		}
	}()
	if err := f.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("forecast loop failed", "error", err)
	}
}
