package scope

import (
	"fmt"
	"image/color"
	"slices"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/gotsc/pkg/trace"
	"periph.io/x/conn/v3/physic"
)

// Zone colors, indexed by zone id.
var palette = []color.RGBA{
	{R: 255, G: 165, B: 0, A: 255},   // Orange
	{R: 100, G: 200, B: 255, A: 255}, // Light blue
	{R: 120, G: 220, B: 120, A: 255}, // Green
}

func zoneColor(z int) color.RGBA {
	return palette[z%len(palette)]
}

func dim(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: 255}
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Grid lines
	gridLines []*canvas.Line
	gridTexts []*canvas.Text

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	// Background fills entire widget
	r.grid.Resize(size)

	// Check if size changed
	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		// Size changed, trigger widget refresh to redraw with new dimensions
		r.scope.BaseWidget.Refresh()
	}
}

// plot maps data coordinates onto the drawing area.
type plot struct {
	x, y, width, height float32
	yMin, yMax          float64
	xMin, xMax          time.Time
}

func (p plot) pos(t time.Time, celsius float64) fyne.Position {
	x := p.x + float32(t.Sub(p.xMin).Seconds()/p.xMax.Sub(p.xMin).Seconds())*p.width
	return fyne.NewPos(x, p.level(celsius))
}

func (p plot) level(celsius float64) float32 {
	return p.y + p.height - float32((celsius-p.yMin)/(p.yMax-p.yMin))*p.height
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	zones := make([]int, 0, len(r.scope.series))
	series := make(map[int][]trace.Point, len(r.scope.series))
	for z, points := range r.scope.series {
		zones = append(zones, z)
		series[z] = slices.Clone(points)
	}
	p := plot{
		yMin: r.scope.yMin,
		yMax: r.scope.yMax,
		xMin: r.scope.xMin,
		xMax: r.scope.xMax,
	}
	r.scope.mu.RUnlock()
	slices.Sort(zones)

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	// Clear old objects (but keep grid)
	r.objects = []fyne.CanvasObject{r.grid}
	r.gridLines = r.gridLines[:0]
	r.gridTexts = r.gridTexts[:0]

	// Calculate margins
	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(40.0)

	p.x = marginLeft
	p.y = marginTop
	p.width = size.Width - marginLeft - marginRight
	p.height = size.Height - marginTop - marginBottom

	r.drawGrid(p)

	for i, z := range zones {
		points := series[z]
		if len(points) == 0 {
			continue
		}
		r.drawTrips(p, z, points[len(points)-1])
		r.drawSeries(p, z, points)
		r.drawLegend(p, i, z, points[len(points)-1])
	}
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(p plot) {
	// Horizontal grid lines (temperature)
	numHLines := 8
	for i := range numHLines + 1 {
		y := p.y + float32(i)*p.height/float32(numHLines)
		line := canvas.NewLine(color.RGBA{R: 40, G: 40, B: 40, A: 255})
		line.Position1 = fyne.NewPos(p.x, y)
		line.Position2 = fyne.NewPos(p.x+p.width, y)
		line.StrokeWidth = 1
		r.gridLines = append(r.gridLines, line)
		r.objects = append(r.objects, line)

		// Y-axis label
		value := p.yMax - float64(i)*(p.yMax-p.yMin)/float64(numHLines)
		text := canvas.NewText(fmt.Sprintf("%.1f°C", value), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.gridTexts = append(r.gridTexts, text)
		r.objects = append(r.objects, text)
	}

	// Vertical grid lines (time)
	numVLines := 10
	span := p.xMax.Sub(p.xMin)
	for i := range numVLines + 1 {
		x := p.x + float32(i)*p.width/float32(numVLines)
		line := canvas.NewLine(color.RGBA{R: 40, G: 40, B: 40, A: 255})
		line.Position1 = fyne.NewPos(x, p.y)
		line.Position2 = fyne.NewPos(x, p.y+p.height)
		line.StrokeWidth = 1
		r.gridLines = append(r.gridLines, line)
		r.objects = append(r.objects, line)

		// X-axis label
		offset := span * time.Duration(i) / time.Duration(numVLines)
		text := canvas.NewText(formatTime(offset), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, p.y+p.height+5))
		r.gridTexts = append(r.gridTexts, text)
		r.objects = append(r.objects, text)
	}
}

// drawSeries draws the temperature curve of zone z.
func (r *scopeRenderer) drawSeries(p plot, z int, points []trace.Point) {
	if len(points) < 2 {
		return
	}

	c := zoneColor(z)
	prev := p.pos(points[0].Time, points[0].Celsius)
	for _, pt := range points[1:] {
		next := p.pos(pt.Time, pt.Celsius)
		line := canvas.NewLine(c)
		line.Position1 = prev
		line.Position2 = next
		line.StrokeWidth = 1.5
		r.objects = append(r.objects, line)
		prev = next
	}
}

// drawTrips draws the current trip window of zone z as horizontal lines.
func (r *scopeRenderer) drawTrips(p plot, z int, last trace.Point) {
	c := dim(zoneColor(z))
	for _, level := range []float64{last.Low, last.High} {
		if level <= bandLow || level >= bandHigh || level < p.yMin || level > p.yMax {
			continue
		}
		y := p.level(level)
		line := canvas.NewLine(c)
		line.Position1 = fyne.NewPos(p.x, y)
		line.Position2 = fyne.NewPos(p.x+p.width, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)
	}
}

// drawLegend draws the latest reading of zone z in the top left corner.
func (r *scopeRenderer) drawLegend(p plot, row, z int, last trace.Point) {
	temp := physic.Temperature(last.Celsius*float64(physic.Celsius)) + physic.ZeroCelsius
	text := canvas.NewText(fmt.Sprintf("tsc%d %s", z, temp), zoneColor(z))
	text.TextSize = 11
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(p.x+10, p.y+10+float32(row)*14))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
