package importer

import (
	"context"
	"sync"
)

// RunPhase is the current phase of an import run.
type RunPhase string

const (
	PhaseCounting  RunPhase = "counting"
	PhaseImporting RunPhase = "importing"
	PhaseResolving RunPhase = "resolving_relationships"
	PhaseQuality   RunPhase = "quality_checks"
	PhaseDone      RunPhase = "done"
)

// RunProgress tracks one in-flight import run. cancel aborts the run's
// context; cancellation is cooperative and observed between batches.
type RunProgress struct {
	mu      sync.RWMutex
	phase   RunPhase
	current int
	total   int
	cancel  context.CancelFunc
}

// ProgressSnapshot is a point-in-time copy for polling clients.
type ProgressSnapshot struct {
	Phase   RunPhase `json:"phase"`
	Current int      `json:"current"`
	Total   int      `json:"total"`
}

// Update sets the current phase and counts.
func (p *RunProgress) Update(phase RunPhase, current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
	p.current = current
	p.total = total
}

// Snapshot returns a copy of the current state.
func (p *RunProgress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProgressSnapshot{Phase: p.phase, Current: p.current, Total: p.total}
}

// Cancel requests cooperative cancellation of the run.
func (p *RunProgress) Cancel() {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Tracker is the in-memory registry of running imports, keyed by
// import run ID.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*RunProgress
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*RunProgress)}
}

// Start registers a run and returns its progress handle.
func (t *Tracker) Start(importID string, cancel context.CancelFunc) *RunProgress {
	p := &RunProgress{phase: PhaseCounting, cancel: cancel}
	t.mu.Lock()
	t.runs[importID] = p
	t.mu.Unlock()
	return p
}

// Get returns the progress of a running import, or nil when the run is
// not in flight.
func (t *Tracker) Get(importID string) *RunProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runs[importID]
}

// Finish removes a completed run from the registry.
func (t *Tracker) Finish(importID string) {
	t.mu.Lock()
	delete(t.runs, importID)
	t.mu.Unlock()
}

// Cancel requests cancellation of a run. Returns false when the run is
// not in flight.
func (t *Tracker) Cancel(importID string) bool {
	p := t.Get(importID)
	if p == nil {
		return false
	}
	p.Cancel()
	return true
}
