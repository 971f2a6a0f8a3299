// Package animate counts dashboard statistics up from zero.
//
// A Counter is a pure step function: each Tick moves it one fiftieth of the
// way to its target and the final tick lands on the target exactly. Run
// drives a set of counters on staggered tickers and stops each ticker once.
package animate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultSteps is the number of ticks a counter takes to reach its target.
const DefaultSteps = 50

// Kind selects how a counter value is displayed.
type Kind int

const (
	KindInteger Kind = iota // thousands separators, no decimals
	KindPercent             // one decimal and a percent sign
)

// Counter interpolates linearly from zero to a target.
type Counter struct {
	target float64
	kind   Kind
	steps  int
	step   int
	value  float64
}

// NewCounter creates a counter that reaches target in DefaultSteps ticks.
func NewCounter(target float64, kind Kind) *Counter {
	return NewCounterSteps(target, kind, DefaultSteps)
}

// NewCounterSteps creates a counter with a custom step count.
func NewCounterSteps(target float64, kind Kind, steps int) *Counter {
	if steps <= 0 {
		steps = DefaultSteps
	}
	return &Counter{target: target, kind: kind, steps: steps}
}

// Tick advances the counter and reports whether it is done.
func (c *Counter) Tick() bool {
	if c.Done() {
		return true
	}
	c.step++
	if c.step >= c.steps || c.target <= 0 {
		c.step = c.steps
		c.value = c.target
		return true
	}
	c.value = c.target * float64(c.step) / float64(c.steps)
	return false
}

// Value is the current displayed value.
func (c *Counter) Value() float64 { return c.value }

// Target is the final value.
func (c *Counter) Target() float64 { return c.target }

// Done reports whether the target has been reached.
func (c *Counter) Done() bool { return c.step >= c.steps }

var printer = message.NewPrinter(language.English)

// Text formats the current value for display.
func (c *Counter) Text() string {
	if c.kind == KindPercent {
		return strconv.FormatFloat(c.value, 'f', 1, 64) + "%"
	}
	return printer.Sprintf("%d", int64(math.Floor(c.value)))
}

// ParseStat reads a displayed statistic such as "118,929" or "94.9%".
func ParseStat(text string) (float64, Kind, error) {
	s := strings.TrimSpace(text)
	kind := KindInteger
	if strings.HasSuffix(s, "%") {
		kind = KindPercent
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, kind, errors.New("empty statistic")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, kind, fmt.Errorf("invalid statistic %q", text)
	}
	return v, kind, nil
}

// Interval is the tick period for the counter at position index. Later
// counters tick slightly slower, which staggers their finish.
func Interval(index int) time.Duration {
	return 20*time.Millisecond + time.Duration(index)*10*time.Millisecond
}

// Frame is one displayed update.
type Frame struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
	Done  bool    `json:"done"`
}

// Run animates counters using Interval and returns the number of tickers
// stopped, which always equals len(counters). emit is never called
// concurrently.
func Run(ctx context.Context, counters []*Counter, emit func(Frame)) int {
	return RunEvery(ctx, counters, Interval, emit)
}

// RunEvery is Run with a custom interval function.
func RunEvery(ctx context.Context, counters []*Counter, interval func(int) time.Duration, emit func(Frame)) int {
	var (
		wg     sync.WaitGroup
		emitMu sync.Mutex
		stops  atomic.Int32
	)
	for i, c := range counters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval(i))
			defer func() {
				ticker.Stop()
				stops.Add(1)
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					done := c.Tick()
					emitMu.Lock()
					emit(Frame{Index: i, Value: c.Value(), Text: c.Text(), Done: done})
					emitMu.Unlock()
					if done {
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	return int(stops.Load())
}
