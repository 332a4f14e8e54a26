// Package memory provides an in-process implementation of the coordination store.
//
// All clients connected to the same Cluster share one tree.
// Each Client represents a session, its ephemeral nodes are deleted by Client.Close or Cluster.Expire.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
)

type Cluster struct {
	lock        *sync.Mutex
	nodes       map[string]*node
	sequences   map[string]int64
	watchers    map[string]map[*watcher]struct{}
	lastSession int64
}

type Client struct {
	cluster *Cluster
	session int64
	closed  bool // guarded by the cluster lock
}

type node struct {
	data    []byte
	session int64 // 0 for a persistent node
}

type watcher struct {
	ch chan struct{}
}

func NewCluster() *Cluster {
	return &Cluster{
		lock:      &sync.Mutex{},
		nodes:     map[string]*node{coordination.Root: {}},
		sequences: make(map[string]int64),
		watchers:  make(map[string]map[*watcher]struct{}),
	}
}

// Connect creates a new session.
func (c *Cluster) Connect() *Client {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.lastSession++
	return &Client{cluster: c, session: c.lastSession}
}

// Expire ends the client session, as if it timed out, all its ephemeral nodes are deleted.
func (c *Cluster) Expire(client *Client) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if client.closed {
		return
	}
	client.closed = true
	for path, n := range c.nodes {
		if n.session == client.session {
			c.deleteTree(path)
		}
	}
}

// Paths returns sorted paths of all nodes, except the root.
func (c *Cluster) Paths() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make([]string, 0, len(c.nodes))
	for path := range c.nodes {
		if path != coordination.Root {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Close ends the session.
func (c *Client) Close() {
	c.cluster.Expire(c)
}

func (c *Client) Create(_ context.Context, path string, data []byte, mode coordination.Mode) (string, error) {
	if err := coordination.ValidatePath(path); err != nil {
		return "", err
	}

	cl := c.cluster
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if c.closed {
		return "", coordination.ErrSessionExpired
	}

	if mode.IsEphemeral() {
		if _, found := cl.nodes[coordination.ParentPath(path)]; !found {
			return "", coordination.ErrNoNode
		}
	} else {
		for _, ancestor := range coordination.Ancestors(path) {
			if _, found := cl.nodes[ancestor]; !found {
				cl.put(ancestor, &node{})
			}
		}
	}

	if mode.IsSequential() {
		parent := coordination.ParentPath(path)
		seq := cl.sequences[parent]
		cl.sequences[parent] = seq + 1
		path = coordination.SequentialName(path, seq)
	}

	if _, found := cl.nodes[path]; found {
		return "", coordination.ErrNodeExists
	}

	n := &node{data: clone(data)}
	if mode.IsEphemeral() {
		n.session = c.session
	}
	cl.put(path, n)
	return path, nil
}

func (c *Client) SetData(_ context.Context, path string, data []byte) error {
	cl := c.cluster
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if c.closed {
		return coordination.ErrSessionExpired
	}
	n, found := cl.nodes[path]
	if !found {
		return coordination.ErrNoNode
	}
	n.data = clone(data)
	return nil
}

func (c *Client) GetData(_ context.Context, path string) ([]byte, error) {
	cl := c.cluster
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if c.closed {
		return nil, coordination.ErrSessionExpired
	}
	n, found := cl.nodes[path]
	if !found {
		return nil, coordination.ErrNoNode
	}
	return clone(n.data), nil
}

func (c *Client) GetChildren(_ context.Context, path string) ([]string, error) {
	cl := c.cluster
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if c.closed {
		return nil, coordination.ErrSessionExpired
	}
	if _, found := cl.nodes[path]; !found {
		return nil, coordination.ErrNoNode
	}
	return cl.children(path), nil
}

func (c *Client) Exists(_ context.Context, path string) (bool, error) {
	cl := c.cluster
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if c.closed {
		return false, coordination.ErrSessionExpired
	}
	_, found := cl.nodes[path]
	return found, nil
}

func (c *Client) Delete(_ context.Context, path string) error {
	if err := coordination.ValidatePath(path); err != nil {
		return err
	}
	cl := c.cluster
	cl.lock.Lock()
	defer cl.lock.Unlock()
	if c.closed {
		return coordination.ErrSessionExpired
	}
	if _, found := cl.nodes[path]; !found {
		return coordination.ErrNoNode
	}
	cl.deleteTree(path)
	return nil
}

func (c *Client) WatchChildren(ctx context.Context, path string) <-chan struct{} {
	cl := c.cluster
	w := &watcher{ch: make(chan struct{}, 1)}
	out := make(chan struct{})

	cl.lock.Lock()
	if cl.watchers[path] == nil {
		cl.watchers[path] = make(map[*watcher]struct{})
	}
	cl.watchers[path][w] = struct{}{}
	cl.lock.Unlock()

	go func() {
		defer close(out)
		defer func() {
			cl.lock.Lock()
			delete(cl.watchers[path], w)
			cl.lock.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.ch:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// put stores the node and notifies watchers of the parent, the lock must be held.
func (c *Cluster) put(path string, n *node) {
	c.nodes[path] = n
	c.notify(coordination.ParentPath(path))
}

// deleteTree deletes the node and its descendants, the lock must be held.
func (c *Cluster) deleteTree(path string) {
	prefix := path + coordination.Separator
	for p := range c.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(c.nodes, p)
			c.notify(coordination.ParentPath(p))
		}
	}
	delete(c.nodes, path)
	c.notify(coordination.ParentPath(path))
}

// children returns sorted names of the node children, the lock must be held.
func (c *Cluster) children(path string) []string {
	out := make([]string, 0)
	for p := range c.nodes {
		if p != coordination.Root && coordination.ParentPath(p) == path {
			out = append(out, coordination.BaseName(p))
		}
	}
	sort.Strings(out)
	return out
}

// notify watchers of the path, the lock must be held.
func (c *Cluster) notify(path string) {
	for w := range c.watchers[path] {
		select {
		case w.ch <- struct{}{}:
		default:
			// A notification is already pending
		}
	}
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte{}, data...)
}
