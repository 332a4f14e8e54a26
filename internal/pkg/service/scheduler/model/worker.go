package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// IDSeparator separates parts of the worker ID "<ip>$<uuid>$<sequence>".
const IDSeparator = "$"

// Worker describes one scheduler process, the descriptor is stored as the payload of its membership node.
type Worker struct {
	ID         string    `json:"id"`
	IP         string    `json:"ip"`
	Hostname   string    `json:"hostname"`
	UUID       string    `json:"uuid"`
	Registered bool      `json:"registered"`
	StartedAt  time.Time `json:"startedAt"`
}

func NewWorker(ip, hostname string, startedAt time.Time) *Worker {
	return &Worker{IP: ip, Hostname: hostname, StartedAt: startedAt.UTC()}
}

// NodeNamePrefix returns the name of the membership node before the store appends the sequence number.
func NodeNamePrefix(ip, uuid string) string {
	return ip + IDSeparator + uuid + IDSeparator
}

// WorkerSequence returns the numeric suffix of the worker ID, after the last separator.
// An ID without a valid suffix is sorted last, so it never becomes the leader.
func WorkerSequence(id string) int64 {
	i := strings.LastIndex(id, IDSeparator)
	if i < 0 {
		return math.MaxInt64
	}
	seq, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil || seq < 0 {
		return math.MaxInt64
	}
	return seq
}

// WorkerIP returns the IP part of the worker ID.
func WorkerIP(id string) string {
	ip, _, _ := strings.Cut(id, IDSeparator)
	return ip
}
