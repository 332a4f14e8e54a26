package etcdstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
)

// compactedWatcher returns a stream with a compaction error, the stream stays open until its ctx is cancelled.
type compactedWatcher struct {
	etcd.Watcher
	ctx []context.Context
}

func (w *compactedWatcher) Watch(ctx context.Context, _ string, _ ...etcd.OpOption) etcd.WatchChan {
	w.ctx = append(w.ctx, ctx)
	ch := make(chan etcd.WatchResponse, 1)
	ch <- etcd.WatchResponse{CompactRevision: 5}
	return ch
}

func TestStore_WatchChildrenOnce_ClosesStreamAfterError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.NewDebugLogger()
	watcher := &compactedWatcher{}
	s := &Store{logger: logger, client: &etcd.Client{Watcher: watcher}, prefix: DefaultPrefix}

	out := make(chan struct{}, 1)
	s.watchChildrenOnce(ctx, "/servers", s.childrenPrefix("/servers"), out)

	// The stream of the failed watch is cancelled, the parent ctx is not
	require.Len(t, watcher.ctx, 1)
	assert.Error(t, watcher.ctx[0].Err())
	assert.NoError(t, ctx.Err())
	assert.Empty(t, out)
	logger.AssertJSONMessages(t, `{"level":"warn","message":"watch of node \"/servers\" children failed: %s"}`)
}
