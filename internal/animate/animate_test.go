package animate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_ReachesTargetExactly(t *testing.T) {
	for _, target := range []float64{118929, 1367, 679, 99.4, 0.6, 1, 7} {
		c := NewCounter(target, KindInteger)
		ticks := 0
		for !c.Tick() {
			ticks++
			require.Less(t, ticks, 1000)
		}
		assert.Equal(t, DefaultSteps-1, ticks, "target %v", target)
		assert.Equal(t, target, c.Value())
		assert.True(t, c.Done())
	}
}

func TestCounter_Monotonic(t *testing.T) {
	c := NewCounter(1367, KindInteger)
	prev := 0.0
	for !c.Tick() {
		assert.GreaterOrEqual(t, c.Value(), prev)
		assert.LessOrEqual(t, c.Value(), 1367.0)
		prev = c.Value()
	}
}

func TestCounter_TickAfterDoneIsNoop(t *testing.T) {
	c := NewCounterSteps(10, KindInteger, 2)
	c.Tick()
	assert.True(t, c.Tick())
	assert.True(t, c.Tick())
	assert.Equal(t, 10.0, c.Value())
}

func TestCounter_NonPositiveTargetFinishesImmediately(t *testing.T) {
	c := NewCounter(0, KindInteger)
	assert.True(t, c.Tick())
	assert.Equal(t, 0.0, c.Value())
}

func TestCounter_Text(t *testing.T) {
	c := NewCounterSteps(118929, KindInteger, 1)
	assert.Equal(t, "0", c.Text())
	c.Tick()
	assert.Equal(t, "118,929", c.Text())

	p := NewCounterSteps(94.9, KindPercent, 1)
	assert.Equal(t, "0.0%", p.Text())
	p.Tick()
	assert.Equal(t, "94.9%", p.Text())
}

func TestCounter_IntegerTextFloors(t *testing.T) {
	c := NewCounterSteps(679, KindInteger, 50)
	c.Tick() // 13.58
	assert.Equal(t, "13", c.Text())
}

func TestParseStat(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		kind   Kind
		hasErr bool
	}{
		{"118,929", 118929, KindInteger, false},
		{"1,367", 1367, KindInteger, false},
		{" 679 ", 679, KindInteger, false},
		{"99.4%", 99.4, KindPercent, false},
		{"0.6 %", 0.6, KindPercent, false},
		{"", 0, KindInteger, true},
		{"%", 0, KindPercent, true},
		{"n/a", 0, KindInteger, true},
		{"NaN", 0, KindInteger, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, kind, err := ParseStat(tt.in)
			if tt.hasErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, Interval(0))
	assert.Equal(t, 50*time.Millisecond, Interval(3))
}

func TestRunEvery_StopsEachTickerOnce(t *testing.T) {
	counters := []*Counter{
		NewCounterSteps(118929, KindInteger, 5),
		NewCounterSteps(1367, KindInteger, 5),
		NewCounterSteps(99.4, KindPercent, 5),
	}

	var frames []Frame
	finals := make(map[int]int)
	stops := RunEvery(context.Background(), counters, func(int) time.Duration { return time.Millisecond }, func(f Frame) {
		frames = append(frames, f)
		if f.Done {
			finals[f.Index]++
		}
	})

	assert.Equal(t, 3, stops)
	assert.Len(t, frames, 15)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, finals)
	for _, c := range counters {
		assert.Equal(t, c.Target(), c.Value())
	}
}

func TestRunEvery_ContextCancelStopsAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	counters := []*Counter{NewCounter(100, KindInteger), NewCounter(200, KindInteger)}

	done := make(chan int, 1)
	go func() {
		done <- RunEvery(ctx, counters, func(int) time.Duration { return time.Hour }, func(Frame) {})
	}()
	cancel()

	select {
	case stops := <-done:
		assert.Equal(t, 2, stops)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, counters[0].Done())
}

func TestRun_RealIntervals(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real tick intervals")
	}
	counters := []*Counter{NewCounterSteps(10, KindInteger, 3), NewCounterSteps(20, KindInteger, 3)}
	stops := Run(context.Background(), counters, func(Frame) {})
	assert.Equal(t, 2, stops)
}
