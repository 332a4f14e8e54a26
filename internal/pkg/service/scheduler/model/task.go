package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// AssignedStatus is the only status written to assignment records.
const AssignedStatus = 0

// Task descriptor is stored as the payload of the task node.
type Task struct {
	Name        string            `json:"name"`
	Handler     string            `json:"handler"`
	Params      map[string]string `json:"params,omitempty"`
	Description string            `json:"description,omitempty"`
}

// WithName returns a runtime copy of the descriptor, the name is taken from the task node.
func (t Task) WithName(name string) Task {
	out := t
	out.Name = name
	if t.Params != nil {
		out.Params = make(map[string]string, len(t.Params))
		for k, v := range t.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Assignment is the payload of an assignment record "<status>:<epochMillis>".
type Assignment struct {
	Status     int
	AssignedAt time.Time
}

func NewAssignment(now time.Time) Assignment {
	return Assignment{Status: AssignedStatus, AssignedAt: now}
}

func (a Assignment) Encode() []byte {
	return []byte(fmt.Sprintf("%d:%d", a.Status, a.AssignedAt.UnixMilli()))
}

func DecodeAssignment(data []byte) (Assignment, error) {
	status, millis, found := strings.Cut(string(data), ":")
	if !found {
		return Assignment{}, errors.Errorf(`invalid assignment record "%s": expected "<status>:<epochMillis>"`, string(data))
	}
	s, err := strconv.Atoi(status)
	if err != nil {
		return Assignment{}, errors.Errorf(`invalid assignment status "%s"`, status)
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return Assignment{}, errors.Errorf(`invalid assignment timestamp "%s"`, millis)
	}
	return Assignment{Status: s, AssignedAt: time.UnixMilli(ms).UTC()}, nil
}
