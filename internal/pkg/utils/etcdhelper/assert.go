package etcdhelper

import (
	"context"
	"sort"
	"strings"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"
	etcd "go.etcd.io/etcd/client/v3"
)

type tHelper interface {
	Helper()
}

// DumpAllKeys returns sorted keys from the etcd database (or from the client namespace).
func DumpAllKeys(ctx context.Context, client etcd.KV) ([]string, error) {
	resp, err := client.Get(ctx, "", etcd.WithFromKey(), etcd.WithKeysOnly(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return keys, nil
}

// AssertKeys compares all keys in the database with the expected keys, wildcards can be used, for example "%d".
func AssertKeys(t assert.TestingT, client etcd.KV, expectedKeys []string, msgAndArgs ...any) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}

	actual, err := DumpAllKeys(context.Background(), client)
	if err != nil {
		return assert.Fail(t, "cannot dump etcd keys: "+err.Error(), msgAndArgs...)
	}

	expected := append([]string{}, expectedKeys...)
	sort.Strings(expected)
	return wildcards.Assert(t, strings.Join(expected, "\n"), strings.Join(actual, "\n"), msgAndArgs...)
}
