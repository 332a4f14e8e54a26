package etcdstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination/etcdstore"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination/storetest"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/etcdhelper"
)

func TestStore(t *testing.T) {
	t.Parallel()

	client := etcdhelper.ClientForTest(t)
	storetest.Run(t, func(t *testing.T) (storetest.Session, func()) {
		t.Helper()
		ctx, cancel := context.WithCancel(context.Background())
		wg := &sync.WaitGroup{}
		store, err := etcdstore.New(ctx, wg, log.NewNopLogger(), client, etcdstore.WithSessionTTL(5))
		require.NoError(t, err)
		return store, func() {
			cancel()
			wg.Wait()
		}
	})
}

func TestStore_Keys(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := etcdhelper.ClientForTest(t)
	store, err := etcdstore.New(ctx, &sync.WaitGroup{}, log.NewNopLogger(), client, etcdstore.WithPrefix("my-prefix"))
	require.NoError(t, err)

	_, err = store.Create(ctx, "/tasks/foo", []byte(`{"name":"foo"}`), coordination.Persistent)
	require.NoError(t, err)
	_, err = store.Create(ctx, "/servers", nil, coordination.Persistent)
	require.NoError(t, err)
	_, err = store.Create(ctx, "/servers/10.0.0.1$ABC$", nil, coordination.EphemeralSequential)
	require.NoError(t, err)

	etcdhelper.AssertKeys(t, client, []string{
		"my-prefix/node/servers",
		"my-prefix/node/servers/10.0.0.1$ABC$0000000000",
		"my-prefix/node/tasks",
		"my-prefix/node/tasks/foo",
		"my-prefix/sequence/servers",
	})
}

func TestStore_OnSessionRecreated(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := etcdhelper.ClientForTest(t)
	logger := log.NewDebugLogger()
	store, err := etcdstore.New(ctx, &sync.WaitGroup{}, logger, client, etcdstore.WithSessionTTL(2))
	require.NoError(t, err)

	recreated := atomic.NewInt64(0)
	store.OnSessionRecreated(func() {
		recreated.Inc()
	})

	_, err = store.Create(ctx, "/servers", nil, coordination.Persistent)
	require.NoError(t, err)
	_, err = store.Create(ctx, "/servers/w$", nil, coordination.EphemeralSequential)
	require.NoError(t, err)

	// Revoke the session lease, ephemeral nodes are deleted and a new session is created
	_, err = client.Revoke(ctx, store.SessionLease())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return recreated.Load() == 1
	}, 10*time.Second, 50*time.Millisecond)

	children, err := store.GetChildren(ctx, "/servers")
	require.NoError(t, err)
	assert.Empty(t, children)

	// The new session works
	_, err = store.Create(ctx, "/servers/w$", nil, coordination.EphemeralSequential)
	require.NoError(t, err)
}
