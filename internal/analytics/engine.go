package analytics

import (
	"fmt"
	"log/slog"
	"math"

	"typewitness/internal/event"
	"typewitness/internal/logging"
)

// Engine executes a registry's metric calculators over an event sequence.
//
// Failure isolation: one calculator failing - error return, panic, or a
// non-finite value - never aborts or perturbs the others. The failing
// metric gets the value 0 and a structured log entry naming the metric and
// the cause. Only registry misconfiguration is fatal, and that is rejected
// at registration time, before an Engine ever runs.
type Engine struct {
	registry *Registry
	log      *slog.Logger
}

// NewEngine creates an engine over the given registry. A nil logger falls
// back to the default logger.
func NewEngine(registry *Registry, log *slog.Logger) *Engine {
	if registry == nil {
		registry = Default()
	}
	if log == nil {
		log = logging.Default().Logger
	}
	return &Engine{registry: registry, log: log}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Compute runs every registered calculator over the event sequence and
// returns a fresh Result with exactly one entry per registered metric id.
//
// For a fixed sequence and registry, repeated calls produce identical
// results. The input sequence is never mutated.
func (e *Engine) Compute(events []event.TrackerEvent) Result {
	metrics := e.registry.List()
	result := make(Result, len(metrics))

	for _, m := range metrics {
		result[m.ID] = e.computeOne(m, events)
	}

	return result
}

// computeOne invokes a single calculator, recovering panics and substituting
// the documented default of 0 on any failure.
func (e *Engine) computeOne(m Metric, events []event.TrackerEvent) (value float64) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("metric calculator panicked",
				"metric", m.ID,
				"cause", fmt.Sprint(r),
			)
			value = 0
		}
	}()

	v, err := m.Compute(events)
	if err != nil {
		e.log.Error("metric calculator failed",
			"metric", m.ID,
			"cause", err.Error(),
		)
		return 0
	}

	// NaN and infinities would poison downstream aggregation and do not
	// survive JSON encoding; treat them as calculator failures.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		e.log.Error("metric calculator returned non-finite value",
			"metric", m.ID,
			"value", fmt.Sprint(v),
		)
		return 0
	}

	return v
}
