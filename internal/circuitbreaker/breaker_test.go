package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "scoring.internal:5000"

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	return New(threshold, 30*time.Second).WithClock(clock.now), clock
}

func TestBreaker_ClosedAllows(t *testing.T) {
	b, _ := newTestBreaker(3)
	assert.True(t, b.Allow(endpoint))
	assert.Equal(t, StateClosed, b.State(endpoint))
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	b.Failure(endpoint)
	b.Failure(endpoint)
	assert.True(t, b.Allow(endpoint), "two failures stay below threshold")

	b.Failure(endpoint)
	assert.False(t, b.Allow(endpoint))
	assert.Equal(t, StateOpen, b.State(endpoint))
}

func TestBreaker_CooldownAllowsSingleTrial(t *testing.T) {
	b, clock := newTestBreaker(2)
	b.Failure(endpoint)
	b.Failure(endpoint)

	clock.advance(29 * time.Second)
	assert.False(t, b.Allow(endpoint))

	clock.advance(time.Second)
	assert.True(t, b.Allow(endpoint), "trial after cooldown")
	assert.Equal(t, StateHalfOpen, b.State(endpoint))
	assert.False(t, b.Allow(endpoint), "only one trial at a time")
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(2)
	b.Failure(endpoint)
	b.Failure(endpoint)
	clock.advance(time.Minute)
	require.True(t, b.Allow(endpoint))

	b.Success(endpoint)
	assert.Equal(t, StateClosed, b.State(endpoint))
	assert.True(t, b.Allow(endpoint))
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2)
	b.Failure(endpoint)
	b.Failure(endpoint)
	clock.advance(time.Minute)
	require.True(t, b.Allow(endpoint))

	b.Failure(endpoint)
	assert.Equal(t, StateOpen, b.State(endpoint))
	assert.False(t, b.Allow(endpoint), "cooldown restarts from the failed trial")
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	b.Failure(endpoint)
	b.Failure(endpoint)
	b.Success(endpoint)
	b.Failure(endpoint)
	assert.True(t, b.Allow(endpoint))
}

func TestBreaker_EndpointsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1)
	b.Failure("a:1")
	assert.False(t, b.Allow("a:1"))
	assert.True(t, b.Allow("b:2"))
}

func TestBreaker_OnChange(t *testing.T) {
	b, clock := newTestBreaker(1)

	var got []string
	b.OnChange(func(_ string, from, to State) {
		got = append(got, from.String()+"->"+to.String())
	})

	b.Failure(endpoint)
	clock.advance(time.Minute)
	b.Allow(endpoint)
	b.Success(endpoint)

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, got)
}

func TestBreaker_Snapshot(t *testing.T) {
	b, _ := newTestBreaker(2)
	b.Failure("z:1")
	b.Failure("a:1")
	b.Failure("a:1")

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, EndpointStatus{Endpoint: "a:1", State: "open", Failures: 2}, snap[0])
	assert.Equal(t, EndpointStatus{Endpoint: "z:1", State: "closed", Failures: 1}, snap[1])
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}
