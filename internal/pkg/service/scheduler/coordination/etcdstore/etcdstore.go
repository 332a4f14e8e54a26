// Package etcdstore implements the coordination store on top of etcd.
//
// Each node is one key, "<prefix>node<path>", the value is the node payload.
// Ephemeral nodes are attached to the lease of the store session.
// Sequence numbers are allocated from a counter key "<prefix>sequence<parent path>" by a compare-and-swap transaction.
package etcdstore

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/etcdop"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const (
	DefaultPrefix     = "scheduler/"
	DefaultSessionTTL = 15
	nodesDir          = "node"
	sequencesDir      = "sequence"
	rewatchDelay      = time.Second
)

type Store struct {
	logger log.Logger
	client *etcd.Client
	prefix string

	lock        *sync.RWMutex
	session     *concurrency.Session
	onRecreated []func()
}

type config struct {
	prefix     string
	ttlSeconds int
}

type Option func(c *config)

// WithPrefix sets the prefix of all keys, in addition to the namespace of the etcd client.
func WithPrefix(v string) Option {
	return func(c *config) {
		c.prefix = strings.TrimRight(v, "/") + "/"
	}
}

// WithSessionTTL sets TTL of the session lease, ephemeral nodes are removed at latest after the TTL, if the process dies.
func WithSessionTTL(seconds int) Option {
	return func(c *config) {
		c.ttlSeconds = seconds
	}
}

// New creates the store and its session.
// The session is re-created after an expiration, see Store.OnSessionRecreated.
// The session is closed and all ephemeral nodes are deleted when the ctx is cancelled, use the wg to wait for it.
func New(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, client *etcd.Client, opts ...Option) (*Store, error) {
	cfg := config{prefix: DefaultPrefix, ttlSeconds: DefaultSessionTTL}
	for _, o := range opts {
		o(&cfg)
	}

	s := &Store{
		logger: logger.WithComponent("etcd.store"),
		client: client,
		prefix: cfg.prefix,
		lock:   &sync.RWMutex{},
	}

	if err := <-etcdop.ResistantSession(ctx, wg, logger, client, cfg.ttlSeconds, s.onSession); err != nil {
		return nil, errors.PrefixError(err, "cannot create etcd session")
	}

	return s, nil
}

// OnSessionRecreated registers a callback invoked when a new session replaces an expired one.
// All ephemeral nodes of the expired session have been deleted by etcd.
// The callback must not block.
func (s *Store) OnSessionRecreated(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onRecreated = append(s.onRecreated, fn)
}

func (s *Store) onSession(session *concurrency.Session) error {
	s.lock.Lock()
	recreated := s.session != nil
	s.session = session
	callbacks := append([]func(){}, s.onRecreated...)
	s.lock.Unlock()

	if recreated {
		s.logger.Warn(context.Background(), "etcd session has been re-created, ephemeral nodes of the previous session are lost")
		for _, fn := range callbacks {
			fn()
		}
	}
	return nil
}

// SessionLease returns ID of the current session lease.
func (s *Store) SessionLease() etcd.LeaseID {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.session == nil {
		return etcd.NoLease
	}
	return s.session.Lease()
}

func (s *Store) lease() (etcd.LeaseID, error) {
	s.lock.RLock()
	session := s.session
	s.lock.RUnlock()

	if session == nil {
		return 0, coordination.ErrSessionExpired
	}
	select {
	case <-session.Done():
		return 0, coordination.ErrSessionExpired
	default:
		return session.Lease(), nil
	}
}

func (s *Store) Create(ctx context.Context, path string, data []byte, mode coordination.Mode) (string, error) {
	if err := coordination.ValidatePath(path); err != nil {
		return "", err
	}

	var putOpts []etcd.OpOption
	if mode.IsEphemeral() {
		lease, err := s.lease()
		if err != nil {
			return "", err
		}
		putOpts = append(putOpts, etcd.WithLease(lease))
	} else {
		for _, ancestor := range coordination.Ancestors(path) {
			if _, err := s.createNode(ctx, ancestor, nil, false); err != nil {
				return "", err
			}
		}
	}

	if !mode.IsSequential() {
		created, err := s.createNode(ctx, path, data, mode.IsEphemeral(), putOpts...)
		if err != nil {
			return "", err
		}
		if !created {
			return "", coordination.ErrNodeExists
		}
		return path, nil
	}

	// A sequence number is never reused, a number taken by an existing node is skipped
	for {
		seq, err := s.nextSequence(ctx, coordination.ParentPath(path))
		if err != nil {
			return "", err
		}
		realPath := coordination.SequentialName(path, seq)
		created, err := s.createNode(ctx, realPath, data, mode.IsEphemeral(), putOpts...)
		if err != nil {
			return "", err
		}
		if created {
			return realPath, nil
		}
	}
}

func (s *Store) SetData(ctx context.Context, path string, data []byte) error {
	key := s.nodeKey(path)
	resp, err := s.client.Txn(ctx).
		If(etcd.Compare(etcd.CreateRevision(key), ">", 0)).
		Then(etcd.OpPut(key, string(data), etcd.WithIgnoreLease())).
		Commit()
	if err != nil {
		return errors.PrefixErrorf(err, `cannot set data of node "%s"`, path)
	}
	if !resp.Succeeded {
		return coordination.ErrNoNode
	}
	return nil
}

func (s *Store) GetData(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.client.Get(ctx, s.nodeKey(path))
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot get data of node "%s"`, path)
	}
	if len(resp.Kvs) == 0 {
		return nil, coordination.ErrNoNode
	}
	return resp.Kvs[0].Value, nil
}

func (s *Store) GetChildren(ctx context.Context, path string) ([]string, error) {
	prefix := s.childrenPrefix(path)
	getOp := etcd.OpGet(prefix, etcd.WithPrefix(), etcd.WithKeysOnly(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))

	var keys []string
	if path == coordination.Root {
		resp, err := s.client.Do(ctx, getOp)
		if err != nil {
			return nil, errors.PrefixErrorf(err, `cannot get children of node "%s"`, path)
		}
		keys = keysOf(resp.Get().Kvs)
	} else {
		key := s.nodeKey(path)
		resp, err := s.client.Txn(ctx).If(etcd.Compare(etcd.CreateRevision(key), ">", 0)).Then(getOp).Commit()
		if err != nil {
			return nil, errors.PrefixErrorf(err, `cannot get children of node "%s"`, path)
		}
		if !resp.Succeeded {
			return nil, coordination.ErrNoNode
		}
		keys = keysOf(resp.Responses[0].GetResponseRange().Kvs)
	}

	// Keys of all descendants are loaded, only the first segment is used
	out := make([]string, 0)
	seen := make(map[string]bool)
	for _, key := range keys {
		name, _, _ := strings.Cut(strings.TrimPrefix(key, prefix), coordination.Separator)
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := s.client.Get(ctx, s.nodeKey(path), etcd.WithCountOnly())
	if err != nil {
		return false, errors.PrefixErrorf(err, `cannot check if node "%s" exists`, path)
	}
	return resp.Count > 0, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := coordination.ValidatePath(path); err != nil {
		return err
	}
	key := s.nodeKey(path)
	resp, err := s.client.Txn(ctx).
		If(etcd.Compare(etcd.CreateRevision(key), ">", 0)).
		Then(etcd.OpDelete(key), etcd.OpDelete(s.childrenPrefix(path), etcd.WithPrefix())).
		Commit()
	if err != nil {
		return errors.PrefixErrorf(err, `cannot delete node "%s"`, path)
	}
	if !resp.Succeeded {
		return coordination.ErrNoNode
	}
	return nil
}

// WatchChildren notifies about created and deleted children of the node, updates of the payload are ignored.
// The watch is re-created after an error, for example a compaction, until the ctx is cancelled.
func (s *Store) WatchChildren(ctx context.Context, path string) <-chan struct{} {
	prefix := s.childrenPrefix(path)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		for {
			s.watchChildrenOnce(ctx, path, prefix, out)

			select {
			case <-ctx.Done():
				return
			case <-time.After(rewatchDelay):
			}
		}
	}()

	return out
}

// watchChildrenOnce forwards notifications until the watch fails or the ctx is cancelled.
// The watch stream is closed before the return.
func (s *Store) watchChildrenOnce(ctx context.Context, path, prefix string, out chan<- struct{}) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for resp := range s.client.Watch(etcd.WithRequireLeader(watchCtx), prefix, etcd.WithPrefix()) {
		if err := resp.Err(); err != nil {
			s.logger.Warnf(ctx, `watch of node "%s" children failed: %s`, path, err)
			return
		}
		if childrenChanged(prefix, resp.Events) {
			select {
			case out <- struct{}{}:
			default:
				// A notification is already pending
			}
		}
	}
}

// createNode puts the node if it doesn't exist yet.
// If requireParent is set, the parent existence is checked in the same transaction, ErrNoNode is returned if it is missing.
func (s *Store) createNode(ctx context.Context, path string, data []byte, requireParent bool, opts ...etcd.OpOption) (bool, error) {
	key := s.nodeKey(path)
	cmps := []etcd.Cmp{etcd.Compare(etcd.CreateRevision(key), "=", 0)}
	if parent := coordination.ParentPath(path); requireParent && parent != coordination.Root {
		cmps = append(cmps, etcd.Compare(etcd.CreateRevision(s.nodeKey(parent)), ">", 0))
	}

	resp, err := s.client.Txn(ctx).
		If(cmps...).
		Then(etcd.OpPut(key, string(data), opts...)).
		Else(etcd.OpGet(key, etcd.WithCountOnly())).
		Commit()
	if err != nil {
		return false, errors.PrefixErrorf(err, `cannot create node "%s"`, path)
	}
	if resp.Succeeded {
		return true, nil
	}
	if resp.Responses[0].GetResponseRange().Count == 0 {
		// The node doesn't exist, so the parent check failed
		return false, coordination.ErrNoNode
	}
	return false, nil
}

// nextSequence atomically increments the counter of the parent node and returns the previous value.
func (s *Store) nextSequence(ctx context.Context, parent string) (int64, error) {
	key := s.prefix + sequencesDir + parent
	for {
		resp, err := s.client.Get(ctx, key)
		if err != nil {
			return 0, errors.PrefixErrorf(err, `cannot get sequence of node "%s"`, parent)
		}

		var seq, modRev int64
		if len(resp.Kvs) > 0 {
			modRev = resp.Kvs[0].ModRevision
			if seq, err = strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64); err != nil {
				return 0, errors.PrefixErrorf(err, `invalid sequence of node "%s"`, parent)
			}
		}

		txn, err := s.client.Txn(ctx).
			If(etcd.Compare(etcd.ModRevision(key), "=", modRev)).
			Then(etcd.OpPut(key, strconv.FormatInt(seq+1, 10))).
			Commit()
		if err != nil {
			return 0, errors.PrefixErrorf(err, `cannot increment sequence of node "%s"`, parent)
		}
		if txn.Succeeded {
			return seq, nil
		}
		// Concurrent increment, try again
	}
}

func (s *Store) nodeKey(path string) string {
	return s.prefix + nodesDir + path
}

func (s *Store) childrenPrefix(path string) string {
	if path == coordination.Root {
		return s.prefix + nodesDir + coordination.Root
	}
	return s.nodeKey(path) + coordination.Separator
}
