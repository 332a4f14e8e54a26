// Package storetest contains tests shared by all coordination store implementations.
package storetest

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
)

// Session is a store client with its own session.
type Session interface {
	coordination.Store
	coordination.ChildrenWatcher
}

// Connect creates a new session to the same tree, the returned function ends the session.
type Connect func(t *testing.T) (Session, func())

// Run runs all shared tests.
func Run(t *testing.T, connect Connect) {
	t.Helper()
	t.Run("CreateGetSet", func(t *testing.T) { testCreateGetSet(t, connect) })
	t.Run("Sequential", func(t *testing.T) { testSequential(t, connect) })
	t.Run("ChildrenAndDelete", func(t *testing.T) { testChildrenAndDelete(t, connect) })
	t.Run("EphemeralCleanup", func(t *testing.T) { testEphemeralCleanup(t, connect) })
	t.Run("EphemeralRequiresParent", func(t *testing.T) { testEphemeralRequiresParent(t, connect) })
	t.Run("WatchChildren", func(t *testing.T) { testWatchChildren(t, connect) })
}

func testCreateGetSet(t *testing.T, connect Connect) {
	t.Helper()
	ctx := context.Background()
	s, closeFn := connect(t)
	defer closeFn()

	path, err := s.Create(ctx, "/create/a/b", []byte("value"), coordination.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/create/a/b", path)

	// Ancestors are created empty
	for _, ancestor := range []string{"/create", "/create/a"} {
		found, err := s.Exists(ctx, ancestor)
		require.NoError(t, err)
		assert.True(t, found, ancestor)
		data, err := s.GetData(ctx, ancestor)
		require.NoError(t, err)
		assert.Empty(t, data)
	}

	data, err := s.GetData(ctx, "/create/a/b")
	require.NoError(t, err)
	assert.Equal(t, "value", string(data))

	_, err = s.Create(ctx, "/create/a/b", nil, coordination.Persistent)
	assert.ErrorIs(t, err, coordination.ErrNodeExists)

	require.NoError(t, s.SetData(ctx, "/create/a/b", []byte("new")))
	data, err = s.GetData(ctx, "/create/a/b")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	assert.ErrorIs(t, s.SetData(ctx, "/create/missing", nil), coordination.ErrNoNode)
	_, err = s.GetData(ctx, "/create/missing")
	assert.ErrorIs(t, err, coordination.ErrNoNode)
	found, err := s.Exists(ctx, "/create/missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func testSequential(t *testing.T, connect Connect) {
	t.Helper()
	ctx := context.Background()
	s, closeFn := connect(t)
	defer closeFn()

	pattern := regexp.MustCompile(`^/sequential/10\.0\.0\.1\$ABC\$\d{10}$`)
	_, err := s.Create(ctx, "/sequential", nil, coordination.Persistent)
	require.NoError(t, err)
	first, err := s.Create(ctx, "/sequential/10.0.0.1$ABC$", nil, coordination.EphemeralSequential)
	require.NoError(t, err)
	second, err := s.Create(ctx, "/sequential/10.0.0.1$ABC$", nil, coordination.EphemeralSequential)
	require.NoError(t, err)

	assert.Regexp(t, pattern, first)
	assert.Regexp(t, pattern, second)
	assert.Less(t, first, second)

	// The sequence is not reused after delete
	require.NoError(t, s.Delete(ctx, second))
	third, err := s.Create(ctx, "/sequential/10.0.0.1$ABC$", nil, coordination.EphemeralSequential)
	require.NoError(t, err)
	assert.Less(t, second, third)
}

func testChildrenAndDelete(t *testing.T, connect Connect) {
	t.Helper()
	ctx := context.Background()
	s, closeFn := connect(t)
	defer closeFn()

	for _, path := range []string{"/tree/a/x", "/tree/a/y", "/tree/b", "/tree/c/z/deep"} {
		_, err := s.Create(ctx, path, nil, coordination.Persistent)
		require.NoError(t, err)
	}

	children, err := s.GetChildren(ctx, "/tree")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, children)

	children, err = s.GetChildren(ctx, "/tree/b")
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = s.GetChildren(ctx, "/tree/missing")
	assert.ErrorIs(t, err, coordination.ErrNoNode)

	// Delete is recursive
	require.NoError(t, s.Delete(ctx, "/tree/c"))
	for _, path := range []string{"/tree/c", "/tree/c/z", "/tree/c/z/deep"} {
		found, err := s.Exists(ctx, path)
		require.NoError(t, err)
		assert.False(t, found, path)
	}
	children, err = s.GetChildren(ctx, "/tree")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, children)

	assert.ErrorIs(t, s.Delete(ctx, "/tree/c"), coordination.ErrNoNode)
}

func testEphemeralCleanup(t *testing.T, connect Connect) {
	t.Helper()
	ctx := context.Background()
	s1, close1 := connect(t)
	defer close1()
	s2, close2 := connect(t)

	_, err := s1.Create(ctx, "/ephemeral/task", nil, coordination.Persistent)
	require.NoError(t, err)
	_, err = s2.Create(ctx, "/ephemeral/task/worker", []byte("0:123"), coordination.Ephemeral)
	require.NoError(t, err)

	found, err := s1.Exists(ctx, "/ephemeral/task/worker")
	require.NoError(t, err)
	assert.True(t, found)

	// Session end removes only ephemeral nodes of the session
	close2()
	assert.Eventually(t, func() bool {
		found, err := s1.Exists(ctx, "/ephemeral/task/worker")
		return err == nil && !found
	}, 10*time.Second, 20*time.Millisecond)
	found, err = s1.Exists(ctx, "/ephemeral/task")
	require.NoError(t, err)
	assert.True(t, found)
}

func testEphemeralRequiresParent(t *testing.T, connect Connect) {
	t.Helper()
	ctx := context.Background()
	s, closeFn := connect(t)
	defer closeFn()

	// Missing ancestors are not created for an ephemeral node
	for _, mode := range []coordination.Mode{coordination.Ephemeral, coordination.EphemeralSequential} {
		_, err := s.Create(ctx, "/orphan/parent/child", nil, mode)
		assert.ErrorIs(t, err, coordination.ErrNoNode, mode.String())
	}
	found, err := s.Exists(ctx, "/orphan")
	require.NoError(t, err)
	assert.False(t, found)

	// A deleted parent is not re-created
	_, err = s.Create(ctx, "/orphan/parent", nil, coordination.Persistent)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "/orphan/parent"))
	_, err = s.Create(ctx, "/orphan/parent/child", nil, coordination.Ephemeral)
	assert.ErrorIs(t, err, coordination.ErrNoNode)
	found, err = s.Exists(ctx, "/orphan/parent")
	require.NoError(t, err)
	assert.False(t, found)
}

func testWatchChildren(t *testing.T, connect Connect) {
	t.Helper()
	s, closeFn := connect(t)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Create(ctx, "/watch", nil, coordination.Persistent)
	require.NoError(t, err)

	ch := s.WatchChildren(ctx, "/watch")

	// Wait for the watcher, then create a child
	time.Sleep(100 * time.Millisecond)
	_, err = s.Create(ctx, "/watch/child", nil, coordination.Ephemeral)
	require.NoError(t, err)
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		assert.Fail(t, "timeout: no notification after create")
	}

	require.NoError(t, s.Delete(ctx, "/watch/child"))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		assert.Fail(t, "timeout: no notification after delete")
	}

	// The channel is closed when the context is cancelled
	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
