package ths

import (
	"context"
	"errors"

	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/ths/hw"
	"github.com/platinasystems/log"
)

// State is the interrupt state of a driver.
type State int

const (
	// Disarmed: every source is masked. Initial state and the state after
	// Suspend and Detach.
	Disarmed State = iota
	// Armed: threshold sources are unmasked on every channel.
	Armed
	// Pending: an event was latched, sources are masked and the zones
	// are being notified.
	Pending
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "disarmed"
	case Armed:
		return "armed"
	case Pending:
		return "pending"
	}
	return "unknown"
}

type irqReturn int

const (
	irqNone irqReturn = iota
	irqHandled
	irqWakeThread
)

// irqSet masks or unmasks the threshold sources of every channel. d.mu
// must be held.
func (d *Driver) irqSet(on bool) {
	var v uint32
	if on {
		v = hw.IRQArmed
	}
	for i := 0; i < d.num; i++ {
		d.tscs[i].w.Write32(hw.IRQMSK, v)
	}
}

// handleIRQ acknowledges the status of every channel. Any latched status
// masks all sources and hands over to the worker.
func (d *Driver) handleIRQ() irqReturn {
	d.mu.Lock()
	defer d.mu.Unlock()

	var status uint32
	for i := 0; i < d.num; i++ {
		w := d.tscs[i].w
		status |= w.Read32(hw.IRQSTR)
		w.Write32(hw.IRQSTR, 0)
	}

	if status == 0 {
		return irqNone
	}
	if d.state != Armed {
		return irqHandled
	}

	d.irqSet(false)
	d.state = Pending
	return irqWakeThread
}

// irqThread notifies every zone and re-arms. Zones may block; the mask
// lock is only taken to re-arm.
func (d *Driver) irqThread() {
	for i := 0; i < d.num; i++ {
		d.tscs[i].zone.Update(EventUnspecified)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Suspend or Detach may have disarmed meanwhile.
	if d.state == Pending {
		d.irqSet(true)
		d.state = Armed
	}
}

// serveLine runs the top half for one interrupt line.
func (d *Driver) serveLine(ctx context.Context, l irq.Line) {
	defer d.wg.Done()

	for {
		if err := l.Wait(ctx); err != nil {
			if ctx.Err() == nil && !errors.Is(err, irq.ErrClosed) {
				log.Print("warning: ", d.name, ": interrupt line: ", err)
			}
			return
		}

		if d.handleIRQ() == irqWakeThread {
			select {
			case d.wake <- struct{}{}:
			default:
			}
		}
	}
}

// worker runs irqThread for every wake request.
func (d *Driver) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			d.irqThread()
		}
	}
}
