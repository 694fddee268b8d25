package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/monitor"
	"github.com/itohio/gotsc/pkg/scope"
	"github.com/itohio/gotsc/pkg/ths"
	"github.com/itohio/gotsc/pkg/trace"
	"github.com/itohio/gotsc/pkg/zone"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		backendFlag = flag.String("backend", "", "Platform backend override (sim, devmem or serial)")
		portFlag    = flag.String("p", "", "Register bridge serial port override (e.g., /dev/ttyACM0)")
		redisFlag   = flag.String("redis", "", "Redis address to publish readings to (e.g., 127.0.0.1:6379)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *backendFlag != "" {
		cfg.Platform.Backend = *backendFlag
	}
	if *portFlag != "" {
		cfg.Platform.Serial.Port = *portFlag
	}
	if *redisFlag != "" {
		cfg.Redis.Addr = *redisFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create Fyne application
	application := app.NewWithID("com.itohio.gotsc")

	// Create main window
	window := application.NewWindow("Thermal Sensor Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
	}

	toolbar := createToolbar(state)

	// Create scope widget for graph display
	state.scopeWidget = scope.New(&cfg.Display)

	for i := range state.labels {
		state.labels[i] = widget.NewLabel(fmt.Sprintf("tsc%d: -", i))
	}
	status := container.NewHBox(state.labels[0], state.labels[1], state.labels[2])

	content := container.NewBorder(
		toolbar,
		status,
		nil,
		nil,
		state.scopeWidget,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		if err := state.session.Close(); err != nil {
			log.Printf("Failed to detach: %v", err)
		}
		state.session = nil
	})
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	session     *monitor.Session // Current session (nil if not attached)
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	labels      [ths.MaxChannels]*widget.Label
	attachBtn   *widget.Button
	suspendBtn  *widget.Button
	heaterBtns  [ths.MaxChannels]*widget.Button

	// Throttling for scope updates
	lastUpdate [ths.MaxChannels]time.Time
	updateMu   sync.Mutex
}

// createToolbar creates the application toolbar with Attach, Suspend,
// Settings and Heater buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	attachBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleAttach(state)
	})
	state.attachBtn = attachBtn

	suspendBtn := widget.NewButtonWithIcon("", theme.MediaPauseIcon(), func() {
		handleSuspend(state)
	})
	suspendBtn.Disable()
	state.suspendBtn = suspendBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	heaters := container.NewHBox()
	for i := range state.heaterBtns {
		btn := widget.NewButton(fmt.Sprintf("H%d", i+1), func() {
			handleHeaterToggle(state, i)
		})
		btn.Disable()
		state.heaterBtns[i] = btn
		heaters.Add(btn)
	}

	// Create toolbar with buttons on left and heater buttons aligned to the right
	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(attachBtn, suspendBtn, settingsBtn), // left
		heaters, // right
		nil,     // center (spacer)
	)
}

// handleAttach attaches to or detaches from the sensor block.
func handleAttach(state *appState) {
	if state.session != nil {
		if err := state.session.Close(); err != nil {
			dialog.ShowError(fmt.Errorf("failed to detach: %w", err), state.window)
		}
		state.session = nil
		state.attachBtn.SetIcon(theme.LoginIcon())
		state.suspendBtn.Disable()
		state.suspendBtn.SetIcon(theme.MediaPauseIcon())
		updateHeaterButtonStates(state)
		fmt.Println("Detached")
		return
	}

	state.scopeWidget.Clear()

	s, err := monitor.Start(state.cfg, func(r zone.Reading) {
		updateLabel(state, r)
	})
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to attach to %s platform: %w", state.cfg.Platform.Backend, err), state.window)
		return
	}
	state.session = s
	fmt.Printf("Attached to %s: %d channels, %s sequence\n", s.Driver.Name(), len(s.Driver.Channels()), s.Driver.Sequence())

	// Throttle updates to ~30 FPS per zone to ensure smooth UI
	const updateInterval = 33 * time.Millisecond
	s.Trace.OnUpdate(func(z int, points []trace.Point) {
		if !throttle(state, z, updateInterval) {
			return
		}
		UpdateWidgetOnMainThread(func() {
			state.scopeWidget.UpdateData(z, points)
		})
	})

	state.attachBtn.SetIcon(theme.LogoutIcon())
	state.suspendBtn.Enable()
	updateHeaterButtonStates(state)
}

// handleSuspend toggles between suspended and running sensors.
func handleSuspend(state *appState) {
	s := state.session
	if s == nil {
		return
	}

	suspend := !s.Suspended()
	if err := s.SetSuspended(suspend); err != nil {
		dialog.ShowError(fmt.Errorf("failed to change power state: %w", err), state.window)
		return
	}

	if suspend {
		state.suspendBtn.SetIcon(theme.MediaPlayIcon())
	} else {
		state.suspendBtn.SetIcon(theme.MediaPauseIcon())
	}
}
