package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/", JoinPath())
	assert.Equal(t, "/servers", JoinPath("servers"))
	assert.Equal(t, "/tasks/foo/10.0.0.1$ABC$0000000001", JoinPath("/tasks/", "foo", "10.0.0.1$ABC$0000000001"))
	assert.Equal(t, "/a/b/c", JoinPath("//a//b/", "/c/"))
}

func TestBaseNameAndParent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0000000001", BaseName("/servers/0000000001"))
	assert.Equal(t, "servers", BaseName("/servers"))
	assert.Equal(t, "/servers", ParentPath("/servers/0000000001"))
	assert.Equal(t, "/", ParentPath("/servers"))
	assert.Equal(t, "/", ParentPath("/"))
	assert.Equal(t, []string{"/a", "/a/b"}, Ancestors("/a/b/c"))
	assert.Empty(t, Ancestors("/a"))
}

func TestValidatePath(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidatePath("/a/b"))
	assert.Error(t, ValidatePath("/"))
	assert.Error(t, ValidatePath("a/b"))
	assert.Error(t, ValidatePath("/a//b"))
	assert.Error(t, ValidatePath("/a/b/"))
	assert.NoError(t, ValidatePath("/servers/10.0.0.1$ABC$0000000001"))
	assert.NoError(t, ValidatePath("/a/..b/.c"))

	err := ValidatePath("/a/../b")
	require.Error(t, err)
	assert.Equal(t, `path "/a/../b" contains relative segment ".."`, err.Error())
	assert.Error(t, ValidatePath("/a/."))
}

func TestMode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ephemeral-sequential", EphemeralSequential.String())
	assert.True(t, EphemeralSequential.IsEphemeral())
	assert.True(t, EphemeralSequential.IsSequential())
	assert.False(t, Ephemeral.IsSequential())
	assert.False(t, Persistent.IsEphemeral())
	assert.Equal(t, "/servers/10.0.0.1$ABC$0000000042", SequentialName("/servers/10.0.0.1$ABC$", 42))
}
