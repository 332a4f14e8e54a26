package etcdstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"
)

func TestChildrenChanged(t *testing.T) {
	t.Parallel()

	prefix := "scheduler/node/servers/"
	created := &etcd.Event{Type: etcd.EventTypePut, Kv: &mvccpb.KeyValue{Key: []byte(prefix + "w1"), CreateRevision: 5, ModRevision: 5}}
	updated := &etcd.Event{Type: etcd.EventTypePut, Kv: &mvccpb.KeyValue{Key: []byte(prefix + "w1"), CreateRevision: 5, ModRevision: 6}}
	deleted := &etcd.Event{Type: etcd.EventTypeDelete, Kv: &mvccpb.KeyValue{Key: []byte(prefix + "w1")}}
	nested := &etcd.Event{Type: etcd.EventTypeDelete, Kv: &mvccpb.KeyValue{Key: []byte(prefix + "w1/sub")}}

	assert.True(t, childrenChanged(prefix, []*etcd.Event{created}))
	assert.True(t, childrenChanged(prefix, []*etcd.Event{updated, deleted}))
	assert.False(t, childrenChanged(prefix, []*etcd.Event{updated}))
	assert.False(t, childrenChanged(prefix, []*etcd.Event{nested}))
	assert.False(t, childrenChanged(prefix, nil))
}
