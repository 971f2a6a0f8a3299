// Package circuitbreaker guards remote scoring endpoints. Each endpoint moves
// from closed to open after enough consecutive transport failures, then to
// half-open once the cooldown elapses.
package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/mbd888/fraudscope/internal/metrics"
)

// State represents the breaker state for one endpoint.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls are skipped
	StateHalfOpen              // one trial call in flight
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type endpointState struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker tracks consecutive failures per endpoint.
type Breaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(endpoint string, from, to State)
}

// New creates a breaker that opens after threshold consecutive failures and
// allows a trial call once cooldown has elapsed.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		endpoints: make(map[string]*endpointState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// OnChange registers a callback fired synchronously on each transition.
// The callback must not call back into the breaker.
func (b *Breaker) OnChange(fn func(endpoint string, from, to State)) *Breaker {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
	return b
}

// Allow reports whether a call to endpoint should be attempted.
func (b *Breaker) Allow(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	es, ok := b.endpoints[endpoint]
	if !ok {
		return true
	}

	switch es.state {
	case StateOpen:
		if b.now().Sub(es.openedAt) >= b.cooldown {
			b.moveTo(endpoint, es, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// Success closes the endpoint and clears its failure count.
func (b *Breaker) Success(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es, ok := b.endpoints[endpoint]
	if !ok {
		return
	}
	es.failures = 0
	b.moveTo(endpoint, es, StateClosed)
}

// Failure counts a transport failure against endpoint.
func (b *Breaker) Failure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es, ok := b.endpoints[endpoint]
	if !ok {
		es = &endpointState{}
		b.endpoints[endpoint] = es
	}
	es.failures++

	switch {
	case es.state == StateHalfOpen:
		es.openedAt = b.now()
		b.moveTo(endpoint, es, StateOpen)
	case es.state == StateClosed && es.failures >= b.threshold:
		es.openedAt = b.now()
		b.moveTo(endpoint, es, StateOpen)
	}
}

// State returns the current state of endpoint. Unknown endpoints are closed.
func (b *Breaker) State(endpoint string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if es, ok := b.endpoints[endpoint]; ok {
		return es.state
	}
	return StateClosed
}

// EndpointStatus is a point-in-time view of one endpoint.
type EndpointStatus struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Snapshot lists every endpoint the breaker has seen, sorted by name.
func (b *Breaker) Snapshot() []EndpointStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]EndpointStatus, 0, len(b.endpoints))
	for name, es := range b.endpoints {
		out = append(out, EndpointStatus{Endpoint: name, State: es.state.String(), Failures: es.failures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// caller holds b.mu
func (b *Breaker) moveTo(endpoint string, es *endpointState, to State) {
	from := es.state
	if from == to {
		return
	}
	es.state = to
	metrics.BreakerTransitions.WithLabelValues(endpoint, from.String(), to.String()).Inc()
	if b.onChange != nil {
		b.onChange(endpoint, from, to)
	}
}
