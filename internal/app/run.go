package app

import (
	"strings"
	"time"
)

// Run identifies one CLI invocation in the logs. Every log line carries the
// run ID so interleaved runs can be told apart.
type Run struct {
	ID      string
	Command string
	Started time.Time
	Status  string // "success" or "error"
}

// NewRun creates a run for command started at now.
func NewRun(command string, now time.Time) *Run {
	name := strings.ReplaceAll(strings.TrimSpace(command), " ", "-")
	if name == "" {
		name = "lcore"
	}
	return &Run{
		ID:      name + "-" + now.UTC().Format("20060102T150405Z"),
		Command: command,
		Started: now,
		Status:  "success",
	}
}

// Finish records the outcome of the run.
func (r *Run) Finish(err error) {
	if err != nil {
		r.Status = "error"
	}
}
