package analytics

import (
	"fmt"
	"sync"
)

// Registry holds the ordered table of registered metrics. Registration
// happens at process initialization; after that the registry is read-only,
// so computation never needs locking.
//
// List order is insertion order and is stable across runs, which keeps
// formatted output reproducible.
type Registry struct {
	mu      sync.Mutex
	metrics []Metric
	index   map[string]int
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a metric to the registry. Duplicate ids are rejected with
// ErrDuplicateMetricID.
func (r *Registry) Register(m Metric) error {
	if m.ID == "" {
		return ErrEmptyMetricID
	}
	if m.Compute == nil {
		return fmt.Errorf("metric %q: %w", m.ID, ErrNilCalculator)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[m.ID]; exists {
		return fmt.Errorf("metric %q: %w", m.ID, ErrDuplicateMetricID)
	}

	r.index[m.ID] = len(r.metrics)
	r.metrics = append(r.metrics, m)
	return nil
}

// MustRegister adds a metric, panicking on conflict. Intended for init-time
// wiring where a duplicate id means the process must not start.
func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(fmt.Sprintf("register metric: %v", err))
	}
}

// List returns the registered metrics in insertion order. The returned slice
// is a copy; callers cannot disturb registration order.
func (r *Registry) List() []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// IDs returns the registered metric identifiers in insertion order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.metrics))
	for i, m := range r.metrics {
		ids[i] = m.ID
	}
	return ids
}

// Has reports whether a metric id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry holding the built-in metric set.
// Built on first use, read-only afterward.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}
