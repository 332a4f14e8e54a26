package env

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
)

func TestMap_Concurrent(t *testing.T) {
	t.Parallel()

	m := Empty()
	other := FromMap(map[string]string{"shared": "x"})
	wg := &sync.WaitGroup{}
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := "key_" + strconv.Itoa(i)
			m.Set(key, "value")
			m.Merge(other, true)
			_, _ = m.Lookup(key)
			_ = m.ToSlice()
		}()
	}
	wg.Wait()

	assert.Len(t, m.Keys(), 21)
	assert.Equal(t, "x", m.Get("SHARED"))
}

func TestMap(t *testing.T) {
	t.Parallel()

	m := FromMap(map[string]string{"foo": "bar"})
	assert.Equal(t, "bar", m.Get("FOO"))
	assert.Equal(t, "bar", m.Get("foo"))

	_, found := m.Lookup("missing")
	assert.False(t, found)

	_, err := m.GetOrErr("missing")
	require.Error(t, err)
	assert.Equal(t, `missing ENV variable "MISSING"`, err.Error())

	m.Set("abc", "def")
	assert.Equal(t, []string{"ABC=def", "FOO=bar"}, m.ToSlice())

	m.Unset("abc")
	assert.Equal(t, map[string]string{"FOO": "bar"}, m.ToMap())

	m.Merge(FromMap(map[string]string{"FOO": "new", "X": "1"}), false)
	assert.Equal(t, map[string]string{"FOO": "bar", "X": "1"}, m.ToMap())
	m.Merge(FromMap(map[string]string{"FOO": "new"}), true)
	assert.Equal(t, "new", m.Get("FOO"))
}

func TestNamingConvention(t *testing.T) {
	t.Parallel()
	n := NewNamingConvention("SCHEDULER_")
	assert.Equal(t, "SCHEDULER_FOO", n.FlagToEnv("foo"))
	assert.Equal(t, "SCHEDULER_FOO_BAR", n.FlagToEnv("foo-bar"))
	assert.Equal(t, "SCHEDULER_ETCD_ENDPOINT", n.FlagToEnv("etcd.endpoint"))
	assert.PanicsWithError(t, "flag name cannot be empty", func() {
		n.FlagToEnv("")
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("FOO1=BAR2\nFOO2=BAR2\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FOO1=BAZ\nFOO3=BAR3\n"), 0o600))

	osEnvs := Empty()
	osEnvs.Set("FOO1", "BAR1")
	osEnvs.Set("OS_ONLY", "123")

	logger := log.NewDebugLogger()
	envs := LoadDotEnv(context.Background(), logger, osEnvs, []string{dir})

	assert.Equal(t, map[string]string{
		"OS_ONLY": "123",
		"FOO1":    "BAR1",
		"FOO2":    "BAR2",
		"FOO3":    "BAR3",
	}, envs.ToMap())
	logger.AssertJSONMessages(t, `
{"level":"info","message":"loaded env file \"%s/.env.local\""}
{"level":"info","message":"loaded env file \"%s/.env\""}
`)
}

func TestLoadEnvString(t *testing.T) {
	t.Parallel()
	envs, err := LoadEnvString("A=1\nb=2\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, envs.ToMap())
}
