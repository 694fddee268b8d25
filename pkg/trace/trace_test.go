package trace

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/itohio/gotsc/pkg/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(z int, at time.Time, mc int) zone.Reading {
	return zone.Reading{Zone: z, Time: at, Millicelsius: mc, Low: math.MinInt32, High: 95000}
}

func TestTrace_Add(t *testing.T) {
	tr := New(10 * time.Second)
	now := time.Now()

	tr.Add(reading(0, now, 25500))
	tr.Add(reading(1, now, 30000))
	tr.Add(zone.Reading{Zone: 0, Time: now, Err: errors.New("bad")})

	points := tr.Points(0)
	require.Len(t, points, 1)
	assert.Equal(t, 25.5, points[0].Celsius)
	assert.Equal(t, -40.0, points[0].Low)
	assert.Equal(t, 95.0, points[0].High)

	assert.Equal(t, []int{0, 1}, tr.Zones())

	tr.Reset()
	assert.Empty(t, tr.Zones())
}

func TestTrace_Window(t *testing.T) {
	tr := New(time.Second)
	start := time.Now()

	for i := range 30 {
		tr.Add(reading(0, start.Add(time.Duration(i)*100*time.Millisecond), i*1000))
	}

	points := tr.Points(0)
	last := points[len(points)-1]
	assert.Equal(t, 29.0, last.Celsius)
	for _, p := range points {
		assert.True(t, p.Time.After(last.Time.Add(-time.Second)), "point at %v outside window", p.Time)
	}
	assert.Len(t, points, 10)
}

func TestTrace_OnUpdate(t *testing.T) {
	tr := New(time.Minute)

	var gotZone, gotLen int
	tr.OnUpdate(func(z int, points []Point) {
		gotZone, gotLen = z, len(points)
	})

	tr.Hook()(reading(2, time.Now(), 1000))
	assert.Equal(t, 2, gotZone)
	assert.Equal(t, 1, gotLen)
}

func TestSummary(t *testing.T) {
	lo, hi, mean := Summary(nil)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
	assert.Zero(t, mean)

	lo, hi, mean = Summary([]Point{{Celsius: 20}, {Celsius: 40}, {Celsius: 30}})
	assert.Equal(t, 20.0, lo)
	assert.Equal(t, 40.0, hi)
	assert.Equal(t, 30.0, mean)
}

func TestDownsample_NoDownsampling(t *testing.T) {
	points := []Point{{Celsius: 1}, {Celsius: 2}, {Celsius: 3}}

	result := Downsample(nil, points, 10)
	assert.Equal(t, points, result)

	dst := make([]Point, 0, 10)
	result = Downsample(dst, points, 10)
	assert.Equal(t, points, result)
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	points := make([]Point, 100)
	for i := range points {
		points[i] = Point{Celsius: float64(i)}
	}

	dst := make([]Point, 0, 20)
	result := Downsample(dst, points, 10)
	require.Len(t, result, 10)
	assert.Equal(t, points[0], result[0])
	assert.Equal(t, 90.0, result[9].Celsius)
	assert.Equal(t, cap(dst), cap(result))

	result = Downsample(nil, points, 10)
	require.Len(t, result, 10)
}
