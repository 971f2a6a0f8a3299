// Package health runs readiness checks for the audit store, the remote
// scoring endpoint, and the chart registry.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 2 * time.Second

// Status is the outcome of one check.
type Status struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Detail   string `json:"detail,omitempty"`
}

// Checker tests a single dependency.
type Checker func(ctx context.Context) Status

// Report aggregates all check results.
type Report struct {
	Healthy   bool      `json:"healthy"`
	Degraded  bool      `json:"degraded"`
	Checks    []Status  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

type entry struct {
	name     string
	critical bool
	check    Checker
}

// Registry holds named checks. Critical checks decide readiness; the rest
// only mark the report as degraded.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	timeout time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-check timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a critical check.
func (r *Registry) Register(name string, check Checker) {
	r.add(entry{name: name, critical: true, check: check})
}

// RegisterOptional adds a check whose failure only degrades the report.
func (r *Registry) RegisterOptional(name string, check Checker) {
	r.add(entry{name: name, check: check})
}

func (r *Registry) add(e entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Check runs every check concurrently and returns results in
// registration order.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	timeout := r.timeout
	r.mu.RUnlock()

	statuses := make([]Status, len(entries))
	var wg sync.WaitGroup
	for i, p := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			st := p.check(pctx)
			st.Name = p.name
			st.Critical = p.critical
			statuses[i] = st
		}()
	}
	wg.Wait()

	report := Report{Healthy: true, Checks: statuses, CheckedAt: time.Now().UTC()}
	for _, st := range statuses {
		if st.Healthy {
			continue
		}
		if st.Critical {
			report.Healthy = false
		} else {
			report.Degraded = true
		}
	}
	return report
}
