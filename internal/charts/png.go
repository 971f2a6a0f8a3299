package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// PNGRenderer draws charts into in-memory PNG images.
type PNGRenderer struct{}

// NewPNGRenderer creates a renderer.
func NewPNGRenderer() *PNGRenderer { return &PNGRenderer{} }

type pngHandle struct {
	mu       sync.RWMutex
	target   Target
	img      []byte
	released bool
}

func (h *pngHandle) Target() Target { return h.target }

func (h *pngHandle) PNG() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.img
}

func (h *pngHandle) isReleased() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}

// Construct renders the dataset onto target.
func (r *PNGRenderer) Construct(target Target, kind Kind, data Dataset, opts Options) (Handle, error) {
	if len(data.Series) == 0 {
		return nil, errors.New("dataset has no series")
	}
	for _, s := range data.Series {
		if len(s.Values) != len(data.Labels) {
			return nil, fmt.Errorf("series %q has %d values for %d labels", s.Label, len(s.Values), len(data.Labels))
		}
	}

	var buf bytes.Buffer
	var err error
	switch kind {
	case KindBar:
		err = renderBar(&buf, target, data, opts)
	case KindHorizontalBar:
		err = renderHorizontalBar(&buf, target, data, opts)
	case KindDoughnut:
		err = renderDoughnut(&buf, target, data, opts)
	case KindLine:
		err = renderLine(&buf, target, data, opts)
	default:
		return nil, fmt.Errorf("unsupported chart kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", target.ID, err)
	}
	return &pngHandle{target: target, img: buf.Bytes()}, nil
}

// Release drops the image held by h.
func (r *PNGRenderer) Release(h Handle) {
	ph, ok := h.(*pngHandle)
	if !ok {
		return
	}
	ph.mu.Lock()
	ph.img = nil
	ph.released = true
	ph.mu.Unlock()
}

func renderBar(buf *bytes.Buffer, target Target, data Dataset, opts Options) error {
	s := data.Series[0]
	bars := make([]chart.Value, len(s.Values))
	for i, v := range s.Values {
		bars[i] = chart.Value{
			Label: data.Labels[i],
			Value: v,
			Style: chart.Style{
				FillColor:   colorAt(s.Colors, i),
				StrokeColor: colorAt(s.Colors, i),
				StrokeWidth: 1,
			},
		}
	}

	bc := chart.BarChart{
		Title:    opts.Title,
		Width:    target.Width,
		Height:   target.Height,
		BarWidth: barWidth(target.Width, len(bars)),
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		Bars: bars,
	}
	if opts.AxisMax > 0 {
		bc.YAxis = chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: opts.AxisMax}}
	}
	return bc.Render(chart.PNG, buf)
}

// Stacked bars are normalized to their own total, so each bar is the value
// followed by a transparent remainder up to the axis bound. go-chart stacks
// horizontal segments from the right, hence the remainder comes first.
func renderHorizontalBar(buf *bytes.Buffer, target Target, data Dataset, opts Options) error {
	s := data.Series[0]
	bound := opts.AxisMax
	for _, v := range s.Values {
		bound = math.Max(bound, v)
	}
	if bound <= 0 {
		bound = 1
	}

	thickness, spacing := barThickness(target.Height, len(s.Values))
	bars := make([]chart.StackedBar, len(s.Values))
	for i, v := range s.Values {
		v = math.Max(v, 0)
		bars[i] = chart.StackedBar{
			Name:  data.Labels[i],
			Width: thickness,
			Values: []chart.Value{
				{Value: bound - v, Style: chart.Style{FillColor: transparent, StrokeColor: transparent}},
				{Value: v, Style: chart.Style{
					FillColor:   colorAt(s.Colors, i),
					StrokeColor: colorAt(s.Colors, i),
					StrokeWidth: 1,
				}},
			},
		}
	}

	sbc := chart.StackedBarChart{
		Title:        opts.Title,
		Width:        target.Width,
		Height:       target.Height,
		IsHorizontal: true,
		BarSpacing:   spacing,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		Bars: bars,
	}
	return sbc.Render(chart.PNG, buf)
}

func renderDoughnut(buf *bytes.Buffer, target Target, data Dataset, opts Options) error {
	s := data.Series[0]
	values := make([]chart.Value, len(s.Values))
	for i, v := range s.Values {
		values[i] = chart.Value{
			Label: data.Labels[i],
			Value: v,
			Style: chart.Style{FillColor: colorAt(s.Colors, i)},
		}
	}
	dc := chart.DonutChart{
		Title:  opts.Title,
		Width:  target.Width,
		Height: target.Height,
		Values: values,
	}
	return dc.Render(chart.PNG, buf)
}

func renderLine(buf *bytes.Buffer, target Target, data Dataset, opts Options) error {
	xs := make([]float64, len(data.Labels))
	ticks := make([]chart.Tick, len(data.Labels))
	for i, label := range data.Labels {
		xs[i] = float64(i + 1)
		ticks[i] = chart.Tick{Value: xs[i], Label: label}
	}

	series := make([]chart.Series, 0, len(data.Series))
	for _, s := range data.Series {
		series = append(series, chart.ContinuousSeries{
			Name:    s.Label,
			XValues: xs,
			YValues: s.Values,
			Style: chart.Style{
				StrokeColor: colorAt(s.Colors, 0),
				StrokeWidth: 2,
			},
		})
	}

	ch := chart.Chart{
		Title:  opts.Title,
		Width:  target.Width,
		Height: target.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16},
		},
		XAxis:  chart.XAxis{Ticks: ticks},
		Series: series,
	}
	if opts.AxisMax > 0 {
		ch.YAxis = chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: opts.AxisMax}}
	}
	if opts.ShowLegend {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch.Render(chart.PNG, buf)
}

func barWidth(canvas, n int) int {
	if n == 0 {
		return 0
	}
	w := canvas / (n * 2)
	if w < 8 {
		w = 8
	}
	return w
}

// barThickness splits the canvas height between n horizontal bars, two
// thirds bar and one third gap.
func barThickness(canvas, n int) (int, int) {
	if n == 0 {
		return 0, 0
	}
	per := (canvas - 90) / n
	if per < 6 {
		per = 6
	}
	return per * 2 / 3, per / 3
}

// transparent has zero alpha but a non-zero color, so go-chart keeps it
// instead of substituting a palette color.
var transparent = drawing.Color{R: 255, G: 255, B: 255, A: 0}

// colorAt picks the i-th color, reusing the last one when the palette is
// shorter than the data.
func colorAt(colors []string, i int) drawing.Color {
	if len(colors) == 0 {
		return chart.ColorBlue
	}
	if i >= len(colors) {
		i = len(colors) - 1
	}
	return drawing.ColorFromHex(strings.TrimPrefix(colors[i], "#"))
}
