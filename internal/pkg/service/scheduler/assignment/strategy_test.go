package assignment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundRobin_Pick(t *testing.T) {
	t.Parallel()

	rr := &RoundRobin{}
	members := []string{"w1", "w2", "w3"}
	assert.Equal(t, "w1", rr.Pick("A", members))
	assert.Equal(t, "w2", rr.Pick("B", members))
	assert.Equal(t, "w3", rr.Pick("C", members))
	assert.Equal(t, "w1", rr.Pick("D", members))
	assert.Equal(t, "w2", rr.Pick("E", members))
	assert.Equal(t, "w3", rr.Pick("F", members))

	// The list shrank below the cursor, start from the beginning
	assert.Equal(t, "w1", rr.Pick("G", []string{"w1", "w2"}))
	assert.Equal(t, "w2", rr.Pick("H", []string{"w1", "w2"}))
	assert.Equal(t, "w1", rr.Pick("I", []string{"w1", "w2"}))
}

func TestConsistentHash_Pick(t *testing.T) {
	t.Parallel()

	members := []string{"w1", "w2", "w3"}
	counts := make(map[string]int)
	for i := 0; i < 30; i++ {
		task := fmt.Sprintf("task%02d", i)
		worker := ConsistentHash{}.Pick(task, members)
		assert.Contains(t, members, worker)
		// Deterministic, independent of the instance and order of members
		assert.Equal(t, worker, ConsistentHash{}.Pick(task, []string{"w3", "w1", "w2"}))
		counts[worker]++
	}
	assert.Len(t, counts, 3)

	assert.Equal(t, "", ConsistentHash{}.Pick("task", nil))
}

func TestNewStrategy(t *testing.T) {
	t.Parallel()

	s, ok := NewStrategy("")
	assert.True(t, ok)
	assert.IsType(t, &RoundRobin{}, s)

	s, ok = NewStrategy(StrategyRoundRobin)
	assert.True(t, ok)
	assert.IsType(t, &RoundRobin{}, s)

	s, ok = NewStrategy(StrategyConsistentHash)
	assert.True(t, ok)
	assert.IsType(t, ConsistentHash{}, s)

	_, ok = NewStrategy("random")
	assert.False(t, ok)
}
