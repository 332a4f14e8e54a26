// Package membership registers workers in the coordination store and elects the leader.
//
// Each worker is an ephemeral-sequential node "<serverRoot>/<ip>$<uuid>$<sequence>".
// The leader is the live worker with the smallest sequence number.
// The sequence is never reused, so the leader changes only when the current leader leaves.
package membership

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/cluster-scheduler/internal/pkg/idgenerator"
	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const DefaultOperationTimeout = 10 * time.Second

type Registry struct {
	logger     log.Logger
	store      coordination.Store
	codec      model.Codec
	serverRoot string
	timeout    time.Duration
}

type Option func(r *Registry)

func WithCodec(v model.Codec) Option {
	return func(r *Registry) {
		r.codec = v
	}
}

// WithOperationTimeout limits each store operation.
func WithOperationTimeout(v time.Duration) Option {
	return func(r *Registry) {
		r.timeout = v
	}
}

func NewRegistry(logger log.Logger, store coordination.Store, serverRoot string, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger.WithComponent("membership"),
		store:      store,
		codec:      model.NewJSONCodec(),
		serverRoot: coordination.JoinPath(serverRoot),
		timeout:    DefaultOperationTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register creates the membership node of the worker, sets the worker ID and marks the worker registered.
// It is a no-op if the worker is already registered. Failures are logged, the worker stays unregistered.
func (r *Registry) Register(ctx context.Context, w *model.Worker) {
	if w.Registered {
		r.logger.Warnf(ctx, `worker "%s" is already registered`, w.ID)
		return
	}
	if err := r.register(ctx, w); err != nil {
		r.logger.Errorf(ctx, "cannot register worker: %s", errors.Format(err))
	}
}

func (r *Registry) register(ctx context.Context, w *model.Worker) error {
	uuid := idgenerator.WorkerUUID()

	// An ephemeral node requires the parent
	createCtx, cancel := context.WithTimeout(ctx, r.timeout)
	_, err := r.store.Create(createCtx, r.serverRoot, nil, coordination.Persistent)
	cancel()
	if err != nil && !errors.Is(err, coordination.ErrNodeExists) {
		return errors.PrefixError(err, "cannot create server root")
	}

	createCtx, cancel = context.WithTimeout(ctx, r.timeout)
	realPath, err := r.store.Create(createCtx, coordination.JoinPath(r.serverRoot, model.NodeNamePrefix(w.IP, uuid)), nil, coordination.EphemeralSequential)
	cancel()
	if err != nil {
		return errors.PrefixError(err, "cannot create membership node")
	}

	registered := *w
	registered.ID = coordination.BaseName(realPath)
	registered.UUID = uuid
	registered.Registered = true

	data, err := r.codec.EncodeWorker(&registered)
	if err == nil {
		setCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err = r.store.SetData(setCtx, realPath, data)
		cancel()
	}
	if err != nil {
		// Without the descriptor the node is incomplete, remove it so a later attempt starts clean
		deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		if delErr := r.store.Delete(deleteCtx, realPath); delErr != nil && !errors.Is(delErr, coordination.ErrNoNode) {
			r.logger.Warnf(ctx, `cannot delete incomplete membership node "%s": %s`, realPath, delErr)
		}
		cancel()
		return errors.PrefixError(err, "cannot write worker descriptor")
	}

	*w = registered
	r.logger.With(attribute.String("worker.id", w.ID)).Infof(ctx, `registered worker "%s"`, w.ID)
	return nil
}

// ListMembers returns IDs of live workers sorted by the sequence number.
// The result is empty if the server root doesn't exist or the store operation fails.
func (r *Registry) ListMembers(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	members, err := r.store.GetChildren(ctx, r.serverRoot)
	switch {
	case errors.Is(err, coordination.ErrNoNode):
		return []string{}
	case err != nil:
		r.logger.Errorf(ctx, "cannot list members: %s", errors.Format(err))
		return []string{}
	}

	SortMembers(members)
	return members
}

// Worker loads the descriptor of a live worker.
func (r *Registry) Worker(ctx context.Context, id string) (*model.Worker, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.store.GetData(ctx, coordination.JoinPath(r.serverRoot, id))
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeWorker(data)
}

// Exists checks if the membership node of the worker exists.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.Exists(ctx, coordination.JoinPath(r.serverRoot, id))
}

// SortMembers sorts worker IDs by the sequence number, ascending.
func SortMembers(members []string) {
	sort.SliceStable(members, func(i, j int) bool {
		si, sj := model.WorkerSequence(members[i]), model.WorkerSequence(members[j])
		if si != sj {
			return si < sj
		}
		return members[i] < members[j]
	})
}

// LeaderOf returns the member with the smallest sequence number, or "" for no member.
func LeaderOf(members []string) string {
	leader := ""
	for _, id := range members {
		if leader == "" || model.WorkerSequence(id) < model.WorkerSequence(leader) {
			leader = id
		}
	}
	return leader
}

// IsLeader returns true if the id is the leader of the members, it is always false for no member.
func IsLeader(id string, members []string) bool {
	leader := LeaderOf(members)
	return leader != "" && id == leader
}
