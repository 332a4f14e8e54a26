package etcdhelper

import (
	"context"
	"fmt"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/keboola/cluster-scheduler/internal/pkg/env"
	"github.com/keboola/cluster-scheduler/internal/pkg/idgenerator"
)

type testOrBenchmark interface {
	Cleanup(f func())
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// ClientForTest creates etcd client for a test, all keys are prefixed by a random namespace.
// The namespace is deleted after the test.
// The test is skipped if the UNIT_ETCD_ENDPOINT is not set.
func ClientForTest(t testOrBenchmark) *etcd.Client {
	ctx := context.Background()
	envs := env.FromOs()

	endpoint := envs.Get("UNIT_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skipf("etcd test is skipped, UNIT_ETCD_ENDPOINT is not set")
	}

	client, err := etcd.New(etcd.Config{
		Context:              ctx,
		Endpoints:            []string{endpoint},
		DialTimeout:          2 * time.Second,
		DialKeepAliveTimeout: 2 * time.Second,
		DialKeepAliveTime:    10 * time.Second,
		Username:             envs.Get("UNIT_ETCD_USERNAME"),
		Password:             envs.Get("UNIT_ETCD_PASSWORD"),
		DialOptions: []grpc.DialOption{
			grpc.WithBlock(), // nolint: staticcheck
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  100 * time.Millisecond,
					Multiplier: 1.5,
					Jitter:     0.2,
					MaxDelay:   2 * time.Second,
				},
			}),
		},
	})
	if err != nil {
		t.Fatalf("cannot create etcd client: %s", err)
	}

	originalKV := client.KV // not namespaced, for the cleanup
	prefix := fmt.Sprintf("unit-%s/", idgenerator.EtcdNamespaceForTest())
	client.KV = namespace.NewKV(client.KV, prefix)
	client.Lease = namespace.NewLease(client.Lease, prefix)
	client.Watcher = namespace.NewWatcher(client.Watcher, prefix)

	t.Cleanup(func() {
		if _, err := originalKV.Delete(ctx, prefix, etcd.WithPrefix()); err != nil {
			t.Fatalf(`cannot clear etcd namespace "%s" after test: %s`, prefix, err)
		}
		_ = client.Close()
	})

	return client
}
