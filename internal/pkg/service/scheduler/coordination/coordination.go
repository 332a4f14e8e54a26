// Package coordination defines the hierarchical store shared by all workers of the cluster.
//
// The store is a tree of nodes addressed by slash separated paths, for example "/tasks/my-task".
// Each node holds a binary payload and may have children.
// Ephemeral nodes are bound to the session of the client which created them,
// they are removed by the store when the session ends.
package coordination

import (
	"context"
	"fmt"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// Mode of a created node.
type Mode int

const (
	// Persistent node exists until it is explicitly deleted.
	Persistent Mode = iota
	// Ephemeral node is deleted when the session of its creator ends.
	Ephemeral
	// EphemeralSequential node is ephemeral, the store appends a unique sequence number to its name.
	EphemeralSequential
)

// SequenceFormat formats the sequence number appended to the name of a sequential node.
const SequenceFormat = "%010d"

var (
	ErrNoNode         = errors.New("node does not exist")
	ErrNodeExists     = errors.New("node already exists")
	ErrSessionExpired = errors.New("session expired")
)

// Store is the client of the coordination store.
type Store interface {
	// Create creates the node and returns its real path, it differs from the path for a sequential node.
	// Missing ancestors of a persistent node are created as empty persistent nodes.
	// The parent of an ephemeral node must exist, otherwise ErrNoNode is returned.
	// ErrNodeExists is returned if the node already exists.
	Create(ctx context.Context, path string, data []byte, mode Mode) (string, error)
	// SetData replaces the node payload, ErrNoNode is returned if the node doesn't exist.
	SetData(ctx context.Context, path string, data []byte) error
	// GetData returns the node payload, ErrNoNode is returned if the node doesn't exist.
	GetData(ctx context.Context, path string) ([]byte, error)
	// GetChildren returns names of the node children, ErrNoNode is returned if the node doesn't exist.
	GetChildren(ctx context.Context, path string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete deletes the node with all its descendants, ErrNoNode is returned if the node doesn't exist.
	Delete(ctx context.Context, path string) error
}

// ChildrenWatcher notifies about created and deleted children of a node.
type ChildrenWatcher interface {
	// WatchChildren returns a channel which receives a value after a change.
	// Multiple changes may be coalesced into one notification.
	// The channel is closed when the context is cancelled.
	WatchChildren(ctx context.Context, path string) <-chan struct{}
}

func (m Mode) String() string {
	switch m {
	case Persistent:
		return "persistent"
	case Ephemeral:
		return "ephemeral"
	case EphemeralSequential:
		return "ephemeral-sequential"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) IsEphemeral() bool {
	return m == Ephemeral || m == EphemeralSequential
}

func (m Mode) IsSequential() bool {
	return m == EphemeralSequential
}

// SequentialName returns the name with the formatted sequence number.
func SequentialName(name string, seq int64) string {
	return name + fmt.Sprintf(SequenceFormat, seq)
}
