package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/trace"
)

// Trip levels at the band edges mean "no trip on this side".
const (
	bandLow  = -40.0
	bandHigh = 125.0
)

// ScopeWidget is a custom Fyne widget that plots zone temperatures over time
// together with the trip window programmed into each sensor.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.DisplayConfig

	// Data (protected by mu)
	mu     sync.RWMutex
	series map[int][]trace.Point

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	// Display settings
	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.DisplayConfig) *ScopeWidget {
	s := &ScopeWidget{
		cfg:              cfg,
		series:           make(map[int][]trace.Point),
		maxDisplayPoints: cfg.MaxPoints,
	}
	s.updateAutoScale()
	s.ExtendBaseWidget(s)
	// Trigger initial refresh to display empty scope
	s.Refresh()
	return s
}

// UpdateData replaces the points shown for zone z.
// This should be called from the trace callback using fyne.Do().
func (s *ScopeWidget) UpdateData(z int, points []trace.Point) {
	s.mu.Lock()
	s.series[z] = trace.Downsample(s.series[z], points, s.maxDisplayPoints)
	s.updateAutoScale()
	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// Clear drops every series.
func (s *ScopeWidget) Clear() {
	s.mu.Lock()
	clear(s.series)
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// updateAutoScale calculates the axis ranges from current data. The lock
// must be held.
func (s *ScopeWidget) updateAutoScale() {
	window := time.Duration(s.cfg.WindowSeconds * float64(time.Second))

	first := true
	for _, points := range s.series {
		for _, p := range points {
			if first {
				s.yMin, s.yMax = p.Celsius, p.Celsius
				s.xMin, s.xMax = p.Time, p.Time
				first = false
			}
			s.yMin = min(s.yMin, p.Celsius)
			s.yMax = max(s.yMax, p.Celsius)
			if p.Time.Before(s.xMin) {
				s.xMin = p.Time
			}
			if p.Time.After(s.xMax) {
				s.xMax = p.Time
			}
		}
	}

	if first {
		s.yMin = 20.0
		s.yMax = 60.0
		s.xMin = time.Now()
		s.xMax = s.xMin.Add(window)
		return
	}

	// Keep the latest trip window in view when it bounds the data.
	for _, points := range s.series {
		if len(points) == 0 {
			continue
		}
		last := points[len(points)-1]
		if last.Low > bandLow {
			s.yMin = min(s.yMin, last.Low)
		}
		if last.High < bandHigh {
			s.yMax = max(s.yMax, last.High)
		}
	}

	// Add 10% margin
	range_ := s.yMax - s.yMin
	if range_ < 1.0 {
		range_ = 1.0
	}
	margin := range_ * 0.1
	s.yMin -= margin
	s.yMax += margin

	// Ensure minimum window
	if s.xMax.Sub(s.xMin) < window {
		s.xMax = s.xMin.Add(window)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
