package analytics

import (
	"sync"

	"typewitness/internal/event"
)

// Recomputer decides when the engine must re-run for a session.
//
// Two triggers force a recomputation: the event sequence version changing
// (events were appended, or a different sequence was supplied) and the reset
// token changing (a consumer asked for a clean analytics view without
// discarding event history). When neither has moved since the last run, the
// cached result is returned without invoking any calculator. That reuse is a
// performance contract only - recomputing unconditionally would always be
// correct, just costlier.
type Recomputer struct {
	mu     sync.Mutex
	engine *Engine

	lastVersion uint64
	lastReset   uint64
	cached      Result
	valid       bool

	// generation orders offloaded runs so that a newer trigger always wins
	// over an older run that completes later.
	generation uint64
	installed  uint64
}

// NewRecomputer wraps an engine with change-triggered memoization.
func NewRecomputer(engine *Engine) *Recomputer {
	return &Recomputer{engine: engine}
}

// Result returns the analytics for the given sequence, recomputing only if
// version or reset differ from the last computed pair.
//
// version must change whenever the sequence content changes (the session's
// append counter serves). reset is the externally supplied, monotonically
// increasing reset token.
func (r *Recomputer) Result(events []event.TrackerEvent, version, reset uint64) Result {
	r.mu.Lock()
	if r.valid && version == r.lastVersion && reset == r.lastReset {
		cached := r.cached
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	result := r.engine.Compute(events)

	r.mu.Lock()
	r.cached = result
	r.lastVersion = version
	r.lastReset = reset
	r.valid = true
	r.mu.Unlock()

	return result
}

// Trigger starts an offloaded engine run and installs its result only if no
// newer trigger arrived in the meantime (last-trigger-wins). A superseded run
// is not aborted; its result is simply discarded. Returns immediately.
func (r *Recomputer) Trigger(events []event.TrackerEvent, version, reset uint64) {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	go func() {
		result := r.engine.Compute(events)

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen < r.generation || gen <= r.installed {
			// A newer trigger superseded this run.
			return
		}
		r.installed = gen
		r.cached = result
		r.lastVersion = version
		r.lastReset = reset
		r.valid = true
	}()
}

// Latest returns the most recently installed result, if any.
func (r *Recomputer) Latest() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached, r.valid
}

// Invalidate drops the cached result so the next Result call recomputes.
func (r *Recomputer) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid = false
	r.cached = nil
}
