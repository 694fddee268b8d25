// Package platform builds the hardware a THS driver attaches to from the
// application configuration: the simulator, /dev/mem windows found in the
// device tree, or a serial register bridge.
package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/sim"
	"github.com/itohio/gotsc/pkg/soc"
	"github.com/itohio/gotsc/pkg/ths"
	"github.com/itohio/gotsc/pkg/ths/hw"
	"github.com/platinasystems/log"
	"go.uber.org/multierr"
)

// Ensure Platform implements ths.Platform.
var _ ths.Platform = (*Platform)(nil)

// Opener maps the register window of a resource.
type Opener func(r Resource) (regs.Window, error)

// LineOpener opens interrupt line i.
type LineOpener func(i int) (irq.Line, error)

// Platform is a THS instance backed by real registers.
type Platform struct {
	name      string
	soc       soc.Attribute
	resources []Resource
	open      Opener
	openLine  LineOpener
	numLines  int

	mu      sync.Mutex
	lines   map[int]irq.Line
	closers []io.Closer
	closed  bool
}

// New creates a platform serving resources through open and numLines
// interrupt lines through openLine.
func New(name string, attr soc.Attribute, resources []Resource, open Opener, numLines int, openLine LineOpener) *Platform {
	return &Platform{
		name:      name,
		soc:       attr,
		resources: resources,
		open:      open,
		openLine:  openLine,
		numLines:  numLines,
		lines:     make(map[int]irq.Line),
	}
}

// Name returns the instance name.
func (p *Platform) Name() string {
	return p.name
}

// SoC returns the SoC attributes.
func (p *Platform) SoC() soc.Attribute {
	return p.soc
}

// Resources returns the register windows of the instance.
func (p *Platform) Resources() []Resource {
	return p.resources
}

// Window maps register window i.
func (p *Platform) Window(i int) (regs.Window, error) {
	if i < 0 || i >= len(p.resources) {
		return nil, ths.ErrNoResource
	}
	r := p.resources[i]
	if r.Size < hw.WindowSize {
		return nil, fmt.Errorf("window %s smaller than %#x", r, hw.WindowSize)
	}
	return p.open(r)
}

// IRQ opens interrupt line i. Lines are opened once and closed by Close.
func (p *Platform) IRQ(i int) (irq.Line, error) {
	if i < 0 || i >= p.numLines {
		return nil, ths.ErrNoResource
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, irq.ErrClosed
	}
	if l, ok := p.lines[i]; ok {
		return l, nil
	}
	l, err := p.openLine(i)
	if err != nil {
		return nil, err
	}
	p.lines[i] = l
	if c, ok := l.(io.Closer); ok {
		p.closers = append(p.closers, c)
	}
	return l, nil
}

// Close releases interrupt lines and transports. Register windows belong
// to the driver.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, p.closers[i].Close())
	}
	p.closers = nil
	return err
}

func (p *Platform) own(c io.Closer) {
	p.mu.Lock()
	p.closers = append(p.closers, c)
	p.mu.Unlock()
}

// Open builds the platform selected by cfg. The result is a *sim.Chip for
// the sim backend and a *Platform otherwise; both are io.Closers. A sim
// chip is started.
func Open(cfg *config.Config) (ths.Platform, error) {
	attr := Detect(&cfg.SoC)

	switch cfg.Platform.Backend {
	case config.BackendSim:
		chip, err := sim.NewChip(&cfg.Sim, attr, Fallback(&cfg.Calibration))
		if err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
		if err := chip.Start(); err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
		return chip, nil

	case config.BackendDevMem:
		name, res := Locate(&cfg.Platform)
		devmem := cfg.Platform.DevMem
		open := func(r Resource) (regs.Window, error) {
			return regs.Map(devmem, int64(r.Base), int(r.Size))
		}
		numLines, openLine := lines(&cfg.Platform)
		return New(name, attr, res, open, numLines, openLine), nil

	case config.BackendSerial:
		b, err := regs.OpenBridge(cfg.Platform.Serial.Port, cfg.Platform.Serial.Baud)
		if err != nil {
			return nil, err
		}
		name, res := Locate(&cfg.Platform)
		open := func(r Resource) (regs.Window, error) {
			if r.Base > 0xffffffff {
				return nil, fmt.Errorf("window %s out of bridge address space", r)
			}
			return b.Window(uint32(r.Base)), nil
		}
		// The bridge carries no interrupts; poll the status instead.
		poll := cfg.Platform.IRQPoll
		p := New(name, attr, res, open, 1, func(int) (irq.Line, error) {
			return irq.NewTicker(poll), nil
		})
		p.own(b)
		return p, nil
	}

	return nil, fmt.Errorf("unknown platform backend %q", cfg.Platform.Backend)
}

// lines returns the interrupt lines of a devmem platform: the configured
// UIO devices, or a status poll when there are none.
func lines(cfg *config.PlatformConfig) (int, LineOpener) {
	if len(cfg.IRQs) == 0 {
		poll := cfg.IRQPoll
		return 1, func(int) (irq.Line, error) {
			return irq.NewTicker(poll), nil
		}
	}

	paths := cfg.IRQs
	return min(len(paths), ths.MaxLines), func(i int) (irq.Line, error) {
		return irq.OpenUIO(paths[i])
	}
}

// Locate returns the node name and windows found in the device tree,
// or the configured static windows.
func Locate(cfg *config.PlatformConfig) (string, []Resource) {
	static := func() (string, []Resource) {
		var res []Resource
		for _, ch := range cfg.Channels {
			res = append(res, Resource{Base: ch.Base, Size: ch.Size})
		}
		return "ths", res
	}

	if cfg.FDT == "" {
		return static()
	}
	blob, err := os.ReadFile(cfg.FDT)
	if err != nil {
		log.Printf("notice: %v, using configured channels", err)
		return static()
	}
	name, res, err := Discover(blob)
	if err != nil {
		if !errors.Is(err, ErrNoNode) {
			log.Printf("warning: %s: %v", cfg.FDT, err)
		}
		log.Printf("notice: %s: no thermal node, using configured channels", cfg.FDT)
		return static()
	}
	if len(res) > ths.MaxChannels {
		res = res[:ths.MaxChannels]
	}
	log.Printf("info: %s: %s %v", cfg.FDT, name, res)
	return name, res
}

// Detect returns the SoC attributes read from sysfs with the configured
// overrides applied.
func Detect(cfg *config.SoCConfig) soc.Attribute {
	attr, err := soc.Detect(cfg.Sysfs)
	if err != nil {
		log.Printf("notice: %v", err)
	}
	if cfg.Family != "" {
		attr.Family = cfg.Family
	}
	if cfg.SoCID != "" {
		attr.SoCID = cfg.SoCID
	}
	if cfg.Revision != "" {
		attr.Revision = cfg.Revision
	}
	return attr
}

// Fallback returns the configured calibration constants.
func Fallback(cfg *config.CalibrationConfig) calib.Fallback {
	f := calib.Fallback{PTAT: calib.Triplet(cfg.PTAT)}
	for _, tc := range cfg.THCode {
		f.THCode = append(f.THCode, calib.Triplet(tc))
	}
	return f
}

// Source returns the calibration source selected by cfg.
func Source(cfg *config.CalibrationConfig) calib.Source {
	if cfg.Source == config.SourceFuses {
		return ths.Fuses{Fallback: Fallback(cfg)}
	}
	return Fallback(cfg)
}
