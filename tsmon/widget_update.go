package main

import (
	"time"

	"fyne.io/fyne/v2"
	"github.com/itohio/gotsc/pkg/monitor"
	"github.com/itohio/gotsc/pkg/zone"
)

// UpdateWidgetOnMainThread schedules a widget update function to run on the main Fyne thread.
// This is required because Fyne widgets cannot be updated directly from goroutines.
// The callback should copy data quickly and return as fast as possible.
func UpdateWidgetOnMainThread(callback func()) {
	if callback == nil {
		return
	}
	fyne.Do(callback)
}

// throttle reports whether zone z may be redrawn now.
func throttle(state *appState, z int, interval time.Duration) bool {
	if z < 0 || z >= len(state.lastUpdate) {
		return false
	}

	state.updateMu.Lock()
	defer state.updateMu.Unlock()

	now := time.Now()
	if now.Sub(state.lastUpdate[z]) < interval {
		return false
	}
	state.lastUpdate[z] = now
	return true
}

// updateLabel shows r in its zone's status label.
func updateLabel(state *appState, r zone.Reading) {
	if r.Zone < 0 || r.Zone >= len(state.labels) {
		return
	}
	text := monitor.FormatReading(r)
	UpdateWidgetOnMainThread(func() {
		state.labels[r.Zone].SetText(text)
	})
}
