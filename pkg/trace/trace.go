// Package trace keeps a time-windowed history of zone readings for display.
package trace

import (
	"slices"
	"sync"
	"time"

	"github.com/itohio/gotsc/pkg/zone"
)

// Point is one reading of a zone.
type Point struct {
	Time    time.Time
	Celsius float64
	// Low and High are the programmed trip window in degrees. They are
	// clamped to the sensor band.
	Low, High float64
}

// Trace holds the recent points of every zone. Internally a FIFO per zone;
// points older than the window are dropped as new ones arrive.
type Trace struct {
	window time.Duration

	mu     sync.RWMutex
	series map[int][]Point

	callbacks []func(zone int, points []Point)
	cbMu      sync.RWMutex
}

// New creates a trace keeping window worth of points.
func New(window time.Duration) *Trace {
	return &Trace{
		window: window,
		series: make(map[int][]Point),
	}
}

// Add appends a reading. Failed readings are skipped.
func (t *Trace) Add(r zone.Reading) {
	if r.Err != nil {
		return
	}

	p := Point{
		Time:    r.Time,
		Celsius: float64(r.Millicelsius) / 1000,
		Low:     bandCelsius(r.Low),
		High:    bandCelsius(r.High),
	}

	t.mu.Lock()
	points := append(t.series[r.Zone], p)

	// Remove points outside the time window
	cutoff := p.Time.Add(-t.window)
	cutoffIndex := 0
	for i, q := range points {
		if q.Time.After(cutoff) {
			cutoffIndex = i
			break
		}
	}
	points = points[cutoffIndex:]
	t.series[r.Zone] = points

	pointsCopy := slices.Clone(points)
	t.mu.Unlock()

	t.notify(r.Zone, pointsCopy)
}

// bandCelsius clamps a trip temperature to the -40..125 degree band.
func bandCelsius(mc int) float64 {
	switch {
	case mc < -40000:
		mc = -40000
	case mc > 125000:
		mc = 125000
	}
	return float64(mc) / 1000
}

// Hook returns a zone callback adding every reading.
func (t *Trace) Hook() func(zone.Reading) {
	return t.Add
}

// Points returns a copy of the points of zone z, oldest first.
func (t *Trace) Points(z int) []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.series[z])
}

// Zones returns the zones with points, in order.
func (t *Trace) Zones() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]int, 0, len(t.series))
	for z := range t.series {
		result = append(result, z)
	}
	slices.Sort(result)
	return result
}

// Reset drops every point.
func (t *Trace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.series)
}

// OnUpdate registers a callback receiving a zone's points after each Add.
// The callback runs without locks held.
func (t *Trace) OnUpdate(callback func(zone int, points []Point)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

func (t *Trace) notify(z int, points []Point) {
	t.cbMu.RLock()
	callbacks := make([]func(int, []Point), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(z, points)
		}
	}
}

// Summary returns the minimum, maximum and mean temperature of points.
func Summary(points []Point) (lo, hi, mean float64) {
	if len(points) == 0 {
		return 0, 0, 0
	}

	lo, hi = points[0].Celsius, points[0].Celsius
	var sum float64
	for _, p := range points {
		lo = min(lo, p.Celsius)
		hi = max(hi, p.Celsius)
		sum += p.Celsius
	}
	return lo, hi, sum / float64(len(points))
}
