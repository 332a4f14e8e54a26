package env

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sasha-s/go-deadlock"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// Provider is read-only interface to get ENV value.
type Provider interface {
	Lookup(key string) (string, bool)
	Get(key string) string
}

// Map is an abstraction for ENV variables.
// Keys are stored uppercase.
type Map struct {
	lock *deadlock.RWMutex
	data map[string]string
}

func Empty() *Map {
	return &Map{lock: &deadlock.RWMutex{}, data: make(map[string]string)}
}

func FromMap(data map[string]string) *Map {
	m := Empty()
	for k, v := range data {
		m.Set(k, v)
	}
	return m
}

func FromOs() *Map {
	m := Empty()
	for _, pair := range os.Environ() {
		if k, v, ok := strings.Cut(pair, "="); ok {
			m.Set(k, v)
		}
	}
	return m
}

func (m *Map) Lookup(key string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, found := m.data[strings.ToUpper(key)]
	return v, found
}

func (m *Map) Get(key string) string {
	v, _ := m.Lookup(key)
	return v
}

func (m *Map) GetOrErr(key string) (string, error) {
	if v := m.Get(key); v != "" {
		return v, nil
	}
	return "", errors.Errorf(`missing ENV variable "%s"`, strings.ToUpper(key))
}

func (m *Map) Set(key, value string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data[strings.ToUpper(key)] = value
}

func (m *Map) Unset(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.data, strings.ToUpper(key))
}

func (m *Map) Keys() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) ToMap() map[string]string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

func (m *Map) ToSlice() []string {
	out := make([]string, 0)
	for _, k := range m.Keys() {
		out = append(out, fmt.Sprintf(`%s=%s`, k, m.Get(k)))
	}
	return out
}

// Merge copies keys from the other map, existing keys are kept if overwrite is false.
func (m *Map) Merge(other *Map, overwrite bool) {
	for k, v := range other.ToMap() {
		if _, found := m.Lookup(k); found && !overwrite {
			continue
		}
		m.Set(k, v)
	}
}
