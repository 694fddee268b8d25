// Command tscbridge runs on the target board and exposes the thermal
// sensor register windows to tsmon over a serial link.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/platform"
	"github.com/itohio/gotsc/pkg/regs"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial port to serve on (e.g., /dev/ttyGS0); stdin/stdout if empty")
		baudFlag   = flag.Int("baud", regs.DefaultBaudRate, "Serial baud rate")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	name, res := platform.Locate(&cfg.Platform)
	if len(res) == 0 {
		log.Fatalf("No register windows for %s", name)
	}

	devmem := cfg.Platform.DevMem
	bus, windows, err := mapWindows(res, func(r platform.Resource) (window, error) {
		return regs.Map(devmem, int64(r.Base), int(r.Size))
	})
	if err != nil {
		log.Fatalf("Failed to map %s windows: %v", name, err)
	}
	log.Printf("Serving %s windows %v", name, res)

	err = serve(*portFlag, *baudFlag, bus)
	if cerr := closeAll(windows); cerr != nil {
		log.Printf("Failed to unmap windows: %v", cerr)
	}
	if err != nil {
		log.Fatalf("Bridge failed: %v", err)
	}
}

// window is a mapped register window.
type window interface {
	regs.Window
	io.Closer
}

// mapWindows opens every resource and places it on a bus at its physical
// address. On failure the windows opened so far are closed.
func mapWindows(res []platform.Resource, open func(platform.Resource) (window, error)) (*regs.Bus, []window, error) {
	bus := &regs.Bus{}
	var windows []window

	for _, r := range res {
		if r.Base+r.Size > 1<<32 {
			return nil, nil, multierr.Append(fmt.Errorf("window %s out of bridge address space", r), closeAll(windows))
		}
		w, err := open(r)
		if err != nil {
			return nil, nil, multierr.Append(err, closeAll(windows))
		}
		windows = append(windows, w)
		if err := bus.Map(uint32(r.Base), uint32(r.Size), w); err != nil {
			return nil, nil, multierr.Append(err, closeAll(windows))
		}
	}
	return bus, windows, nil
}

func closeAll(windows []window) error {
	var err error
	for i := len(windows) - 1; i >= 0; i-- {
		err = multierr.Append(err, windows[i].Close())
	}
	return err
}

// serve answers bridge requests on port, or on stdin/stdout when port is
// empty, until the link closes.
func serve(port string, baud int, bus *regs.Bus) error {
	if port == "" {
		return regs.ServeBridge(stdio{}, bus)
	}

	// Reads block until a request arrives.
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	defer p.Close()

	return regs.ServeBridge(p, bus)
}

// stdio joins stdin and stdout into one stream.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
