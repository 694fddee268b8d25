package main

import (
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gotsc/pkg/ths"
)

// handleHeaterToggle toggles the heater of a simulated channel.
func handleHeaterToggle(state *appState, i int) {
	s := state.session
	if s == nil || s.Chip == nil || i >= len(s.Chip.Heaters()) {
		return
	}

	heaters := s.Chip.Heaters()
	s.Chip.SetHeater(i, !heaters[i])

	updateHeaterButtonStates(state)
}

// updateHeaterButtonStates updates the heater buttons from the simulator.
// Buttons are disabled unless a simulated chip is attached.
func updateHeaterButtonStates(state *appState) {
	var (
		heaters [ths.MaxChannels]bool
		enabled int
	)
	if s := state.session; s != nil && s.Chip != nil {
		heaters = s.Chip.Heaters()
		enabled = len(s.Driver.Channels())
	}

	for i, btn := range state.heaterBtns {
		if i < enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
		updateHeaterButton(btn, heaters[i])
	}
}

// updateHeaterButton updates a single heater button's visual state.
func updateHeaterButton(btn *widget.Button, isOn bool) {
	if isOn {
		btn.Importance = widget.HighImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}
