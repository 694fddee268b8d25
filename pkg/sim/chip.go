// Package sim simulates an R-Car Gen3 THS block: up to three sensor
// channels with register-accurate behavior, two shared interrupt lines and
// one heater per channel driving a first-order thermal model.
//
// A Chip implements ths.Platform so the driver runs against it unchanged.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/soc"
	"github.com/itohio/gotsc/pkg/ths"
	"github.com/itohio/gotsc/pkg/ths/hw"
)

// Ensure Chip implements ths.Platform.
var _ ths.Platform = (*Chip)(nil)

// Chip simulates a THS block.
type Chip struct {
	cfg  *config.SimConfig
	soc  soc.Attribute
	tscs []*TSC
	// lines[0] carries TEMPD1 events, lines[1] TEMP2 events.
	lines [ths.MaxLines]*irq.Chan

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	heaters [ths.MaxChannels]bool
	temps   [ths.MaxChannels]float32
	elapsed time.Duration
}

// NewChip creates a chip whose channels are calibrated with cal.
func NewChip(cfg *config.SimConfig, attr soc.Attribute, cal calib.Fallback) (*Chip, error) {
	if cfg == nil {
		cfg = &config.Default().Sim
	}
	if cfg.Channels < 1 || cfg.Channels > ths.MaxChannels {
		return nil, fmt.Errorf("invalid channel count %d", cfg.Channels)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Chip{
		cfg:    cfg,
		soc:    attr,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range c.lines {
		c.lines[i] = irq.NewChan(fmt.Sprintf("sim:ch%d", i))
	}

	for i := range cfg.Channels {
		in, err := cal.Inputs(i, nil)
		if err != nil {
			return nil, err
		}
		tsc, err := newTSC(i, in, cfg.Fused, c.fire)
		if err != nil {
			return nil, fmt.Errorf("tsc%d: %w", i, err)
		}
		tsc.set(cfg.Ambient)
		c.temps[i] = cfg.Ambient
		c.tscs = append(c.tscs, tsc)
	}

	return c, nil
}

// fire raises the line of each pending source.
func (c *Chip) fire(status uint32) {
	if status&hw.IRQTempD1 != 0 {
		c.lines[0].Raise()
	}
	if status&hw.IRQTemp2 != 0 {
		c.lines[1].Raise()
	}
}

// Name implements ths.Platform.
func (c *Chip) Name() string {
	return "sim"
}

// SoC implements ths.Platform.
func (c *Chip) SoC() soc.Attribute {
	return c.soc
}

// Window implements ths.Platform.
func (c *Chip) Window(i int) (regs.Window, error) {
	if i < 0 || i >= len(c.tscs) {
		return nil, ths.ErrNoResource
	}
	return c.tscs[i], nil
}

// IRQ implements ths.Platform.
func (c *Chip) IRQ(i int) (irq.Line, error) {
	if i < 0 || i >= len(c.lines) {
		return nil, ths.ErrNoResource
	}
	return c.lines[i], nil
}

// TSC returns channel i.
func (c *Chip) TSC(i int) *TSC {
	return c.tscs[i]
}

// Line returns interrupt line i.
func (c *Chip) Line(i int) *irq.Chan {
	return c.lines[i]
}

// SetHeater switches the heater of channel i.
func (c *Chip) SetHeater(i int, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heaters[i] = on
}

// Heaters returns the heater states.
func (c *Chip) Heaters() [ths.MaxChannels]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heaters
}

// SetTemp forces the die temperature of channel i.
func (c *Chip) SetTemp(i int, celsius float32) {
	c.mu.Lock()
	c.temps[i] = celsius
	c.mu.Unlock()

	c.tscs[i].set(celsius)
}

// Start runs the thermal model.
func (c *Chip) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("already running")
	}
	c.running = true

	go c.run()
	return nil
}

// Close stops the thermal model and releases the interrupt lines.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return nil
	}
	c.cancel()
	c.cancel = nil
	c.running = false

	for _, l := range c.lines {
		l.Close()
	}
	return nil
}

// IsRunning returns whether the model is running.
func (c *Chip) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Chip) run() {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Step(c.cfg.Tick)
		}
	}
}

// Step advances the thermal model by dt.
func (c *Chip) Step(dt time.Duration) {
	c.mu.Lock()
	c.elapsed += dt
	temps := c.step(dt)
	c.mu.Unlock()

	for i, tsc := range c.tscs {
		tsc.set(temps[i])
	}
}

// step moves every channel towards its steady state: ambient plus the
// rise of its own heater and a coupled share of the others. c.mu must be
// held.
func (c *Chip) step(dt time.Duration) []float32 {
	alpha := float32(dt.Seconds() / c.cfg.TimeConstant.Seconds())
	alpha = math32.Min(alpha, 1)
	t := float32(c.elapsed.Seconds())

	temps := make([]float32, len(c.tscs))
	for i := range c.tscs {
		target := c.cfg.Ambient
		for j, on := range c.heaters[:len(c.tscs)] {
			switch {
			case !on:
			case i == j:
				target += c.cfg.HeaterRise
			default:
				target += c.cfg.HeaterRise * c.cfg.Coupling
			}
		}

		c.temps[i] += alpha * (target - c.temps[i])

		noise := (math32.Sin(t*7.1+float32(i)) + math32.Cos(t*5.3+float32(2*i))) * c.cfg.Noise * 0.5
		temps[i] = c.temps[i] + noise
	}
	return temps
}
