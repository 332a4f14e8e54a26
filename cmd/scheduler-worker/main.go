package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/keboola/cluster-scheduler/internal/pkg/env"
	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/cliconfig"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/servicectx"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/config"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/dependencies"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/executor"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/worker"
	"github.com/keboola/cluster-scheduler/internal/pkg/telemetry"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const metricsReadHeaderTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %s\n", errors.Format(err)) // nolint:forbidigo
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration, ENVs from ".env" files are used if they are not set in the OS
	envs := env.LoadDotEnv(ctx, log.NewNopLogger(), env.FromOs(), []string{"."})
	cfg, err := config.LoadFrom(os.Args[1:], envs)
	if errors.Is(err, pflag.ErrHelp) {
		// Stop on --help flag
		return nil
	} else if err != nil {
		return err
	}

	// Create logger
	logFormat, err := log.NewLogFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := log.NewServiceLogger(os.Stderr, cfg.DebugLog, logFormat)
	defer func() { _ = logger.Sync() }()

	// Log the effective configuration
	if kvs, err := cliconfig.Dump(cfg); err == nil {
		logger.Infof(ctx, "configuration: %s", kvs.String())
	}

	// Create process abstraction
	proc, err := servicectx.New(ctx, logger, servicectx.WithShutdownTimeout(cfg.Scheduler.ShutdownTimeout+5*time.Second))
	if err != nil {
		return err
	}

	// Setup tracing, the provider is flushed at the end of the shutdown
	tracerProvider := telemetry.NewLogTracerProvider(logger)
	otel.SetTracerProvider(tracerProvider)
	proc.OnShutdown(func(ctx context.Context) {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, "tracer provider shutdown failed: %s", err)
		}
	})

	// Create dependencies
	d, err := dependencies.NewWorkerScope(ctx, cfg, proc, logger, telemetry.NewTracer(tracerProvider))
	if err != nil {
		return err
	}

	// Start metrics endpoint
	if cfg.Metrics.Listen != "" {
		startMetricsServer(proc, logger, cfg.Metrics.Listen, d.Metrics())
	}

	// Start worker
	logger.Infof(ctx, "starting scheduler worker, debug=%t", cfg.DebugLog)
	exec := executor.NewManager(logger, executor.DefaultHandlers(d.Clock()))
	node, err := worker.New(d, cfg.Scheduler, exec, worker.WithIP(cfg.NodeIP))
	if err != nil {
		return err
	}
	logger.Infof(ctx, `worker "%s" started`, node.ID())

	// Wait for the service shutdown
	proc.WaitForShutdown()
	return nil
}

func startMetricsServer(proc *servicectx.Process, logger log.Logger, listen string, m *metrics.Metrics) {
	logger = logger.WithComponent("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	proc.Add(func(ctx context.Context, errCh chan<- error) {
		logger.Infof(ctx, `metrics HTTP server listening on "%s/metrics"`, listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.PrefixError(err, "metrics HTTP server failed")
		}
	})

	proc.OnShutdown(func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, "metrics HTTP server shutdown failed: %s", err)
		}
		logger.Info(ctx, "metrics HTTP server shutdown done")
	})
}
