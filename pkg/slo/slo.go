// Package slo tracks a rows/sec throughput floor and an error-rate budget
// over the course of one streaming run, and reports burn rate so the pump
// can log when a run is on track to miss its objective. Adapted from the
// teacher's SLI/SLO manager, reduced to the single-run, in-process
// bookkeeping this pipeline needs -- the teacher's Prometheus-query-backed
// historical SLO tracking has no analogue for a one-shot CLI run.
package slo

import (
	"sync"
	"time"
)

// Objective defines the floor this run is held to.
type Objective struct {
	MinRowsPerSecond float64 `yaml:"min_rows_per_second"`
	MaxErrorRate     float64 `yaml:"max_error_rate"`
}

// DefaultObjective is permissive: it exists to be overridden by
// deployments that care about throughput guarantees.
func DefaultObjective() Objective {
	return Objective{MinRowsPerSecond: 0, MaxErrorRate: 0.05}
}

// Tracker accumulates rows written and errors seen, and reports whether
// the run is currently within its objective.
type Tracker struct {
	objective Objective
	start     time.Time

	mu          sync.Mutex
	rowsWritten int64
	errors      int64
	total       int64
}

// New starts a Tracker; its clock begins running immediately.
func New(objective Objective) *Tracker {
	return &Tracker{objective: objective, start: time.Now()}
}

// RecordRows adds n successfully written rows.
func (t *Tracker) RecordRows(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowsWritten += n
	t.total += n
}

// RecordError adds one failed/skipped record.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors++
	t.total++
}

// Snapshot is a point-in-time read of the tracker's state.
type Snapshot struct {
	RowsPerSecond float64
	ErrorRate     float64
	BurnRate      float64 // > 1 means off-track to miss the error budget
	WithinBudget  bool
}

// Snapshot computes the current rate and burn against the objective.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}

	rps := float64(t.rowsWritten) / elapsed
	errorRate := 0.0
	if t.total > 0 {
		errorRate = float64(t.errors) / float64(t.total)
	}

	burn := 0.0
	if t.objective.MaxErrorRate > 0 {
		burn = errorRate / t.objective.MaxErrorRate
	}

	withinBudget := errorRate <= t.objective.MaxErrorRate &&
		(t.objective.MinRowsPerSecond <= 0 || rps >= t.objective.MinRowsPerSecond)

	return Snapshot{RowsPerSecond: rps, ErrorRate: errorRate, BurnRate: burn, WithinBudget: withinBudget}
}
