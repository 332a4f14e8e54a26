package etcdstore

import (
	"strings"

	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"
)

func keysOf(kvs []*mvccpb.KeyValue) []string {
	out := make([]string, len(kvs))
	for i, kv := range kvs {
		out[i] = string(kv.Key)
	}
	return out
}

// childrenChanged returns true if an immediate child was created or deleted.
func childrenChanged(prefix string, events []*etcd.Event) bool {
	for _, ev := range events {
		name := strings.TrimPrefix(string(ev.Kv.Key), prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if ev.Type == etcd.EventTypeDelete || ev.IsCreate() {
			return true
		}
	}
	return false
}
