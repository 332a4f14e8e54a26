// Package etcdclient creates etcd client connected to the cluster, all keys are prefixed by the configured namespace.
package etcdclient

import (
	"context"
	"strings"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	etcdNamespace "go.etcd.io/etcd/client/v3/namespace"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"         //nolint: depguard
	"go.uber.org/zap/zapcore" //nolint: depguard
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/servicectx"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// UseNamespace prefixes all keys of the client by the prefix.
func UseNamespace(c *etcd.Client, prefix string) {
	c.KV = etcdNamespace.NewKV(c.KV, prefix)
	c.Watcher = etcdNamespace.NewWatcher(c.Watcher, prefix)
	c.Lease = etcdNamespace.NewLease(c.Lease, prefix)
}

// New creates new etcd client and checks the connection.
// The client is closed when the process is shutting down.
func New(ctx context.Context, proc *servicectx.Process, logger log.Logger, cfg Config) (*etcd.Client, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = logger.WithComponent("etcd.client")

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	startTime := time.Now()
	logger.Infof(ctx, "connecting to etcd, connectTimeout=%s, keepAliveTimeout=%s, keepAliveInterval=%s", cfg.ConnectTimeout, cfg.KeepAliveTimeout, cfg.KeepAliveInterval)
	c, err := etcd.New(etcd.Config{
		Context:              context.Background(), // the client lives as long as the process
		Endpoints:            []string{cfg.Endpoint},
		DialTimeout:          cfg.ConnectTimeout,
		DialKeepAliveTimeout: cfg.KeepAliveTimeout,
		DialKeepAliveTime:    cfg.KeepAliveInterval,
		Username:             cfg.Username,
		Password:             cfg.Password,
		Logger:               zapLogger(logger),
		PermitWithoutStream:  true,
		DialOptions: []grpc.DialOption{
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
			grpc.WithBlock(), // nolint: staticcheck
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  100 * time.Millisecond,
					Multiplier: 1.5,
					Jitter:     0.2,
					MaxDelay:   15 * time.Second,
				},
			}),
		},
	})
	if err != nil {
		return nil, errors.Errorf("cannot create etcd client: cannot connect: %w", err)
	}

	UseNamespace(c, cfg.Namespace)

	// Connection check
	if _, err := c.MemberList(connectCtx); err != nil {
		_ = c.Close()
		return nil, errors.Errorf("cannot create etcd client: cannot get cluster members: %w", err)
	}

	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "closing etcd connection")
		if err := c.Close(); err != nil {
			logger.Warnf(ctx, "cannot close etcd connection: %s", err)
		} else {
			logger.Info(ctx, "closed etcd connection")
		}
	})

	logger.Infof(ctx, `connected to etcd cluster "%s" | %s`, strings.Join(c.Endpoints(), ";"), time.Since(startTime))
	return c, nil
}

// zapLogger bridges internal messages of the etcd client to the logger, debug and info messages are skipped.
func zapLogger(logger log.Logger) *zap.Logger {
	withCore, ok := logger.(log.LoggerWithZapCore)
	if !ok {
		return zap.NewNop()
	}
	core, err := zapcore.NewIncreaseLevelCore(withCore.ZapCore(), zapcore.WarnLevel)
	if err != nil {
		return zap.NewNop()
	}
	return zap.New(core).With(zap.String("component", "etcd.client"))
}
