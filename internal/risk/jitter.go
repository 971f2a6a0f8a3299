package risk

import (
	"math/rand/v2"
	"sync"
)

// JitterSpread bounds the noise added to every raw score.
const JitterSpread = 0.025

// Jitter supplies the noise term added to a raw score.
type Jitter interface {
	Next() float64
}

// NoJitter always returns zero. Used for deterministic scoring.
type NoJitter struct{}

func (NoJitter) Next() float64 { return 0 }

// FixedJitter always returns the same offset.
type FixedJitter float64

func (f FixedJitter) Next() float64 { return float64(f) }

// UniformJitter draws from a uniform distribution on [-spread, +spread].
// Safe for concurrent use.
type UniformJitter struct {
	mu     sync.Mutex
	rng    *rand.Rand
	spread float64
}

// NewUniformJitter creates a jitter source. A zero seed picks a random one.
func NewUniformJitter(seed uint64) *UniformJitter {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &UniformJitter{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		spread: JitterSpread,
	}
}

func (u *UniformJitter) Next() float64 {
	u.mu.Lock()
	f := u.rng.Float64()
	u.mu.Unlock()
	return f*2*u.spread - u.spread
}
