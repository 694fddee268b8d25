package ths

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/platinasystems/log"
	"go.uber.org/multierr"
)

// Driver is an attached THS instance.
type Driver struct {
	name  string
	fw    Framework
	src   calib.Source
	sleep Sleeper
	seq   Sequence

	tscs  [MaxChannels]*Channel
	num   int
	lines []irq.Line

	// mu guards the interrupt masks and state.
	mu       sync.Mutex
	state    State
	detached bool

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures Attach.
type Option func(*Driver)

// WithSource sets the calibration source. The default serves the fallback
// constants.
func WithSource(src calib.Source) Option {
	return func(d *Driver) {
		d.src = src
	}
}

// WithSleeper replaces the sleeps between power-up stages.
func WithSleeper(s Sleeper) Option {
	return func(d *Driver) {
		d.sleep = s
	}
}

// Attach sets up every channel of p, registers them with fw and arms the
// threshold interrupts. Channels are probed in order until the first
// missing window. Either every channel is attached or none is.
//
// ctx bounds the lifetime of the interrupt goroutines; Detach stops them
// as well.
func Attach(ctx context.Context, p Platform, fw Framework, opts ...Option) (*Driver, error) {
	d := &Driver{
		name:  p.Name(),
		fw:    fw,
		src:   calib.DefaultFallback(),
		sleep: DefaultSleeper,
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seq = SelectSequence(p.SoC())

	for i := range MaxLines {
		l, err := p.IRQ(i)
		if errors.Is(err, ErrNoResource) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: irq %d: %w", d.name, i, err)
		}
		d.lines = append(d.lines, l)
	}
	if len(d.lines) == 0 {
		return nil, fmt.Errorf("%s: no interrupt line: %w", d.name, ErrNoResource)
	}

	for i := range MaxChannels {
		w, err := p.Window(i)
		if errors.Is(err, ErrNoResource) {
			break
		}
		if err != nil {
			return nil, d.unwind(fmt.Errorf("%s: tsc%d: %w", d.name, i, err))
		}

		if err := d.attachChannel(i, w); err != nil {
			return nil, d.unwind(multierr.Append(fmt.Errorf("%s: %w", d.name, err), closeWindow(w)))
		}

		n, err := fw.Trips(d.tscs[i].zone)
		if err != nil {
			return nil, d.unwind(fmt.Errorf("%s: tsc%d: %w", d.name, i, err))
		}
		log.Printf("info: %s: TSC%d: Loaded %d trip points", d.name, i, n)
	}

	if d.num == 0 {
		return nil, fmt.Errorf("%s: %w", d.name, ErrNotFound)
	}

	log.Printf("info: %s: %d channels, %s sequence", d.name, d.num, d.seq)

	d.mu.Lock()
	d.irqSet(true)
	d.state = Armed
	d.mu.Unlock()

	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(len(d.lines) + 1)
	for _, l := range d.lines {
		go d.serveLine(ctx, l)
	}
	go d.worker(ctx)

	return d, nil
}

// attachChannel initializes channel i and registers it. On success the
// channel is counted and owns w.
func (d *Driver) attachChannel(i int, w regs.Window) error {
	d.seq.Run(w, d.sleep)

	in, err := d.src.Inputs(i, w)
	if err != nil {
		return fmt.Errorf("tsc%d: %w", i, err)
	}
	if err := linkErr(w); err != nil {
		return fmt.Errorf("tsc%d: %w", i, err)
	}

	tsc, err := newChannel(i, w, in)
	if err != nil {
		return err
	}

	z, err := d.fw.Register(i, tsc)
	if err != nil {
		return fmt.Errorf("tsc%d: failed to register zone: %w", i, err)
	}
	tsc.zone = z

	d.tscs[i] = tsc
	d.num++
	return nil
}

// unwind releases every attached channel and returns err combined with
// any release errors.
func (d *Driver) unwind(err error) error {
	return multierr.Append(err, d.release())
}

func (d *Driver) release() error {
	var err error
	for i := d.num - 1; i >= 0; i-- {
		tsc := d.tscs[i]
		err = multierr.Append(err, d.fw.Unregister(tsc.zone))
		err = multierr.Append(err, closeWindow(tsc.w))
		d.tscs[i] = nil
	}
	d.num = 0
	return err
}

func closeWindow(w regs.Window) error {
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Name returns the instance name.
func (d *Driver) Name() string {
	return d.name
}

// Sequence returns the power-up sequence chosen at attach.
func (d *Driver) Sequence() Sequence {
	return d.seq
}

// Channels returns the attached channels in order.
func (d *Driver) Channels() []*Channel {
	result := make([]*Channel, d.num)
	copy(result, d.tscs[:d.num])
	return result
}

// State returns the interrupt state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// disarm masks every source. It reports whether the driver was already
// detached.
func (d *Driver) disarm() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.detached {
		return true
	}
	d.irqSet(false)
	d.state = Disarmed
	return false
}

// Suspend masks every interrupt source. A notification in flight is the
// last one until Resume.
func (d *Driver) Suspend() error {
	if d.disarm() {
		return ErrDetached
	}
	return nil
}

// Resume re-runs the power-up sequence of every channel, restores the
// equations and trip windows and re-arms.
func (d *Driver) Resume() error {
	d.mu.Lock()
	detached := d.detached
	d.mu.Unlock()
	if detached {
		return ErrDetached
	}

	for i := 0; i < d.num; i++ {
		tsc := d.tscs[i]
		d.seq.Run(tsc.w, d.sleep)
		if err := tsc.restore(); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.irqSet(true)
	d.state = Armed
	return nil
}

// Detach disarms, stops the interrupt goroutines and releases every
// channel. It must not be called from a zone update.
func (d *Driver) Detach() error {
	if d.disarm() {
		return nil
	}

	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	d.detached = true
	d.mu.Unlock()

	if err := d.release(); err != nil {
		return fmt.Errorf("%s: detach: %w", d.name, err)
	}
	return nil
}
