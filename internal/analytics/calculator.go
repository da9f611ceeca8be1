// Package analytics computes behavioral typing metrics from an ordered
// event sequence.
//
// The package is built around three pieces:
//   - a Registry of named metric calculators, populated once at process
//     start and read-only afterward
//   - an Engine that runs every registered calculator over a session's
//     event sequence, isolating per-metric failures
//   - a Recomputer that skips Engine runs when neither the sequence nor
//     the reset token has changed since the last result
//
// Every calculator is a pure function: it never mutates its input and
// returns the same value for the same sequence on every call. That is what
// makes a computed result reproducible from stored event history alone.
package analytics

import (
	"errors"

	"typewitness/internal/event"
)

// Calculator computes one metric value from an ordered event sequence.
//
// Calculators must be deterministic and must not mutate the sequence. The
// sequence may be empty and individual events may be missing fields the
// calculator would like to use; both are "no signal", not errors. A
// calculator that returns an error (or panics) gets the default value 0 in
// the result, so errors should be reserved for genuinely broken input, not
// for empty input.
type Calculator func(events []event.TrackerEvent) (float64, error)

// Metric pairs a stable string identifier with its calculator.
type Metric struct {
	// ID is the metric identifier, the key under which the computed value
	// appears in a Result. Stable across releases.
	ID string

	// Description explains what the metric measures.
	Description string

	// Compute derives the metric value.
	Compute Calculator
}

// Result maps metric identifier to computed value. Every registered metric
// appears exactly once; a metric whose calculator failed carries the value 0.
// Each Engine run returns a fresh Result.
type Result map[string]float64

// ErrDuplicateMetricID is returned when a metric id is registered twice.
// Registration conflicts are a startup misconfiguration; the process should
// refuse to run with an ambiguous registry rather than silently shadowing
// an analysis.
var ErrDuplicateMetricID = errors.New("duplicate metric id")

// ErrEmptyMetricID is returned when a metric is registered without an id.
var ErrEmptyMetricID = errors.New("empty metric id")

// ErrNilCalculator is returned when a metric is registered without a
// calculator.
var ErrNilCalculator = errors.New("nil calculator")
