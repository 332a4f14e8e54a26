package assignment

import (
	"github.com/lafikl/consistent"
)

const (
	StrategyRoundRobin     = "roundRobin"
	StrategyConsistentHash = "consistentHash"
)

// Strategy picks the worker for a task without a valid assignment record.
// Pick is called only under the Engine lock, with a non-empty list of live members.
type Strategy interface {
	Pick(task string, members []string) string
}

// NewStrategy returns the strategy by name, see StrategyRoundRobin and StrategyConsistentHash.
func NewStrategy(name string) (Strategy, bool) {
	switch name {
	case StrategyRoundRobin, "":
		return &RoundRobin{}, true
	case StrategyConsistentHash:
		return ConsistentHash{}, true
	default:
		return nil, false
	}
}

// RoundRobin rotates a single cursor over the members, it is shared by all tasks and passes.
// The cursor is reset to the beginning if the list shrank below it.
type RoundRobin struct {
	cursor int
}

func (r *RoundRobin) Pick(_ string, members []string) string {
	if r.cursor >= len(members) {
		r.cursor = 0
	}
	worker := members[r.cursor]
	r.cursor++
	return worker
}

// ConsistentHash picks the owner from a hash ring of the members.
// The result depends only on the task name and the members, so concurrent leaders pick the same worker.
type ConsistentHash struct{}

func (ConsistentHash) Pick(task string, members []string) string {
	ring := consistent.New()
	for _, id := range members {
		ring.Add(id)
	}
	worker, err := ring.Get(task)
	if err != nil {
		// consistent.ErrNoHosts
		return ""
	}
	return worker
}
