// Package charts owns the dashboard's four performance charts.
//
// A Manager keeps at most one live handle per chart name. RebuildAll
// releases every handle it holds before constructing new ones, so calling it
// repeatedly never leaks or duplicates a chart. A failure to build one chart
// does not affect its siblings.
package charts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mbd888/fraudscope/internal/metrics"
	"github.com/mbd888/fraudscope/internal/traces"
)

var (
	// ErrRendererUnavailable aborts a rebuild when no renderer is configured.
	ErrRendererUnavailable = errors.New("charts: renderer unavailable")

	// ErrNotFound is returned when no live handle exists for a name.
	ErrNotFound = errors.New("charts: chart not found")
)

// Kind is the chart type.
type Kind string

const (
	KindBar           Kind = "bar"
	KindHorizontalBar Kind = "horizontal_bar"
	KindDoughnut      Kind = "doughnut"
	KindLine          Kind = "line"
)

// Series is one named row of values. Colors holds one hex color per value,
// or a single color for the whole series.
type Series struct {
	Label  string
	Values []float64
	Colors []string
}

// Dataset is the data bound to a chart.
type Dataset struct {
	Labels []string
	Series []Series
}

// Options controls presentation.
type Options struct {
	Title      string
	AxisMax    float64 // 0 lets the renderer pick
	ShowLegend bool
}

// Spec describes one chart to build.
type Spec struct {
	Name    string
	Target  string // canvas id on the Surface
	Kind    Kind
	Dataset Dataset
	Options Options
}

// Target is a canvas the renderer draws into.
type Target struct {
	ID     string
	Width  int
	Height int
}

// Surface resolves canvas ids to drawable targets.
type Surface interface {
	Lookup(id string) (Target, bool)
}

// Handle is a live chart instance.
type Handle interface {
	Target() Target
	PNG() []byte
}

// Renderer constructs and releases chart handles.
type Renderer interface {
	Construct(target Target, kind Kind, data Dataset, opts Options) (Handle, error)
	Release(h Handle)
}

// Manager holds the chart registry.
type Manager struct {
	mu       sync.Mutex
	renderer Renderer
	surface  Surface
	handles  map[string]Handle
	logger   *slog.Logger
}

// NewManager creates an empty registry. renderer may be nil, in which case
// every rebuild aborts with ErrRendererUnavailable.
func NewManager(renderer Renderer, surface Surface, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		renderer: renderer,
		surface:  surface,
		handles:  make(map[string]Handle),
		logger:   logger,
	}
}

// RebuildAll releases every live handle and builds specs afresh. Charts
// whose canvas is missing or whose construction fails are logged and
// skipped. The error is non-nil only when the whole rebuild was aborted.
func (m *Manager) RebuildAll(ctx context.Context, specs []Spec) error {
	ctx, span := traces.StartSpan(ctx, "charts.rebuild")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer == nil {
		m.handles = make(map[string]Handle)
		metrics.ChartsLive.Set(0)
		metrics.ChartRebuildsTotal.WithLabelValues("aborted").Inc()
		m.logger.Error("chart rebuild aborted", "error", ErrRendererUnavailable)
		traces.RecordError(span, ErrRendererUnavailable)
		return ErrRendererUnavailable
	}

	for name, h := range m.handles {
		m.renderer.Release(h)
		delete(m.handles, name)
	}

	built := 0
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			m.logger.Warn("chart rebuild interrupted", "built", built, "error", err)
			break
		}
		_, chartSpan := traces.StartSpan(ctx, "charts.build", traces.Chart(spec.Name))
		err := m.build(spec)
		if err != nil {
			traces.RecordError(chartSpan, err)
			chartSpan.End()
			m.logger.Warn("chart skipped", "chart", spec.Name, "target", spec.Target, "error", err)
			continue
		}
		chartSpan.End()
		built++
	}

	result := "ok"
	if built < len(specs) {
		result = "partial"
	}
	metrics.ChartRebuildsTotal.WithLabelValues(result).Inc()
	metrics.ChartsLive.Set(float64(len(m.handles)))
	m.logger.Debug("charts rebuilt", "built", built, "requested", len(specs))
	return nil
}

// caller holds m.mu
func (m *Manager) build(spec Spec) error {
	if m.surface == nil {
		return fmt.Errorf("canvas %q: no surface", spec.Target)
	}
	target, ok := m.surface.Lookup(spec.Target)
	if !ok {
		return fmt.Errorf("canvas %q not found", spec.Target)
	}
	h, err := m.renderer.Construct(target, spec.Kind, spec.Dataset, spec.Options)
	if err != nil {
		return fmt.Errorf("construct %s chart: %w", spec.Kind, err)
	}
	if old, ok := m.handles[spec.Name]; ok {
		// duplicate name within one rebuild: newest wins
		m.renderer.Release(old)
	}
	m.handles[spec.Name] = h
	return nil
}

// Handle returns the live handle for name.
func (m *Manager) Handle(name string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	return h, ok
}

// PNG returns the rendered image for name.
func (m *Manager) PNG(name string) ([]byte, error) {
	h, ok := m.Handle(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	img := h.PNG()
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: %s has no image", ErrNotFound, name)
	}
	return img, nil
}

// Names lists live chart names in sorted order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.handles))
	for name := range m.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of live handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
