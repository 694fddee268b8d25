package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/monitor"
	"github.com/itohio/gotsc/pkg/regs"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
// Changes apply on the next attach.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createPlatformTab(state),
		createCalibrationTab(state),
		createZonesTab(state),
		createRedisTab(state),
		createSimTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig validates and saves the configuration.
func saveConfig(state *appState) {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

// createPlatformTab creates the Platform configuration tab.
func createPlatformTab(state *appState) *container.TabItem {
	backendSelect := widget.NewSelect([]string{config.BackendSim, config.BackendDevMem, config.BackendSerial}, nil)
	backendSelect.SetSelected(state.cfg.Platform.Backend)

	// Get available serial ports
	portOptions, err := regs.Ports()
	if err != nil {
		portOptions = nil
	}
	if port := state.cfg.Platform.Serial.Port; port != "" && !slices.Contains(portOptions, port) {
		portOptions = append(portOptions, port)
	}
	portSelect := widget.NewSelect(portOptions, nil)
	portSelect.SetSelected(state.cfg.Platform.Serial.Port)

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Platform.Serial.Baud))

	fdtEntry := widget.NewEntry()
	fdtEntry.SetText(state.cfg.Platform.FDT)

	irqEntry := widget.NewEntry()
	irqEntry.SetText(strings.Join(state.cfg.Platform.IRQs, ","))

	pollEntry := widget.NewEntry()
	pollEntry.SetText(state.cfg.Platform.IRQPoll.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Backend", Widget: backendSelect},
			{Text: "Bridge Port", Widget: portSelect},
			{Text: "Bridge Baud", Widget: baudEntry},
			{Text: "Device Tree", Widget: fdtEntry},
			{Text: "UIO Devices", Widget: irqEntry},
			{Text: "Status Poll", Widget: pollEntry},
		},
		OnSubmit: func() {
			state.cfg.Platform.Backend = backendSelect.Selected
			state.cfg.Platform.Serial.Port = portSelect.Selected
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil {
				state.cfg.Platform.Serial.Baud = baud
			}
			state.cfg.Platform.FDT = fdtEntry.Text
			state.cfg.Platform.IRQs = monitor.SplitList(irqEntry.Text)
			if d, err := time.ParseDuration(pollEntry.Text); err == nil {
				state.cfg.Platform.IRQPoll = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Platform", form)
}

// createCalibrationTab shows the calibration source and, when attached,
// the inputs and equations of every channel.
func createCalibrationTab(state *appState) *container.TabItem {
	sourceSelect := widget.NewSelect([]string{config.SourceFallback, config.SourceFuses}, nil)
	sourceSelect.SetSelected(state.cfg.Calibration.Source)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Source", Widget: sourceSelect},
		},
		OnSubmit: func() {
			state.cfg.Calibration.Source = sourceSelect.Selected
			saveConfig(state)
		},
	}

	details := widget.NewLabel(calibrationText(state))
	details.TextStyle = fyne.TextStyle{Monospace: true}

	return container.NewTabItem("Calibration", container.NewVBox(form, details))
}

func calibrationText(state *appState) string {
	if state.session == nil {
		return fmt.Sprintf("Fallback PTAT %v\nAttach to show channel equations.", state.cfg.Calibration.PTAT)
	}

	var b strings.Builder
	for _, ch := range state.session.Driver.Channels() {
		in := ch.Inputs()
		c := ch.Coefs()
		fmt.Fprintf(&b, "tsc%d  PTAT %v  THCODE %v\n", ch.ID(), in.PTAT, in.THCode)
		fmt.Fprintf(&b, "      a1=%d b1=%d a2=%d b2=%d\n", c.A1, c.B1, c.A2, c.B2)
		if low, high, ok := ch.Trips(); ok {
			fmt.Fprintf(&b, "      trips %d..%d mC\n", low, high)
		}
	}
	return b.String()
}

// createZonesTab creates the Zones configuration tab. Trips are edited one
// per line as "name temp hysteresis type" in millicelsius.
func createZonesTab(state *appState) *container.TabItem {
	pollEntry := widget.NewEntry()
	pollEntry.SetText(state.cfg.Zones.PollInterval.String())

	tripsEntry := widget.NewMultiLineEntry()
	tripsEntry.SetText(monitor.FormatTrips(state.cfg.Zones.Trips))
	tripsEntry.SetMinRowsVisible(4)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Poll Interval (0=off)", Widget: pollEntry},
			{Text: "Trips", Widget: tripsEntry},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(pollEntry.Text); err == nil {
				state.cfg.Zones.PollInterval = d
			}
			trips, err := monitor.ParseTrips(tripsEntry.Text)
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			state.cfg.Zones.Trips = trips
			saveConfig(state)
		},
	}

	return container.NewTabItem("Zones", form)
}

// createRedisTab creates the Redis configuration tab.
func createRedisTab(state *appState) *container.TabItem {
	addrEntry := widget.NewEntry()
	addrEntry.SetText(state.cfg.Redis.Addr)

	hashEntry := widget.NewEntry()
	hashEntry.SetText(state.cfg.Redis.Hash)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Address (empty=off)", Widget: addrEntry},
			{Text: "Hash", Widget: hashEntry},
		},
		OnSubmit: func() {
			state.cfg.Redis.Addr = strings.TrimSpace(addrEntry.Text)
			if h := strings.TrimSpace(hashEntry.Text); h != "" {
				state.cfg.Redis.Hash = h
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Redis", form)
}

// createSimTab creates the Simulator configuration tab.
func createSimTab(state *appState) *container.TabItem {
	sim := &state.cfg.Sim

	ambientEntry := widget.NewEntry()
	ambientEntry.SetText(fmt.Sprintf("%.1f", sim.Ambient))

	riseEntry := widget.NewEntry()
	riseEntry.SetText(fmt.Sprintf("%.1f", sim.HeaterRise))

	couplingEntry := widget.NewEntry()
	couplingEntry.SetText(fmt.Sprintf("%.2f", sim.Coupling))

	tauEntry := widget.NewEntry()
	tauEntry.SetText(sim.TimeConstant.String())

	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.2f", sim.Noise))

	tickEntry := widget.NewEntry()
	tickEntry.SetText(sim.Tick.String())

	channelsEntry := widget.NewEntry()
	channelsEntry.SetText(strconv.Itoa(sim.Channels))

	fusedCheck := widget.NewCheck("", nil)
	fusedCheck.SetChecked(sim.Fused)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Ambient (°C)", Widget: ambientEntry},
			{Text: "Heater Rise (°C)", Widget: riseEntry},
			{Text: "Coupling", Widget: couplingEntry},
			{Text: "Time Constant", Widget: tauEntry},
			{Text: "Noise (°C)", Widget: noiseEntry},
			{Text: "Tick", Widget: tickEntry},
			{Text: "Channels", Widget: channelsEntry},
			{Text: "Fused", Widget: fusedCheck},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(ambientEntry.Text, 32); err == nil {
				sim.Ambient = float32(v)
			}
			if v, err := strconv.ParseFloat(riseEntry.Text, 32); err == nil {
				sim.HeaterRise = float32(v)
			}
			if v, err := strconv.ParseFloat(couplingEntry.Text, 32); err == nil {
				sim.Coupling = float32(v)
			}
			if d, err := time.ParseDuration(tauEntry.Text); err == nil && d > 0 {
				sim.TimeConstant = d
			}
			if v, err := strconv.ParseFloat(noiseEntry.Text, 32); err == nil {
				sim.Noise = float32(v)
			}
			if d, err := time.ParseDuration(tickEntry.Text); err == nil && d > 0 {
				sim.Tick = d
			}
			if n, err := strconv.Atoi(channelsEntry.Text); err == nil {
				sim.Channels = n
			}
			sim.Fused = fusedCheck.Checked
			saveConfig(state)
		},
	}

	return container.NewTabItem("Simulator", form)
}
