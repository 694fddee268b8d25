package ths

import (
	"fmt"
	"sync"

	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/ths/hw"
)

// Channel is one TSC. Its register window is owned by the channel.
//
// The zone framework serializes GetTemp and SetTrips per zone; mu guards
// the equations and trip window against readers outside the framework.
type Channel struct {
	id   int
	w    regs.Window
	in   calib.Inputs
	zone Zone

	mu        sync.RWMutex
	coefs     calib.Coefs
	low, high int32
	tripsSet  bool
}

func newChannel(id int, w regs.Window, in calib.Inputs) (*Channel, error) {
	coefs, err := calib.Solve(in)
	if err != nil {
		return nil, fmt.Errorf("tsc%d: %w", id, err)
	}
	return &Channel{id: id, w: w, in: in, coefs: coefs}, nil
}

// ID returns the channel index.
func (c *Channel) ID() int {
	return c.id
}

// Inputs returns the calibration inputs of the channel.
func (c *Channel) Inputs() calib.Inputs {
	return c.in
}

// Coefs returns the calibration equations of the channel.
func (c *Channel) Coefs() calib.Coefs {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coefs
}

// Trips returns the last programmed trip window. ok is false until the
// first SetTrips.
func (c *Channel) Trips() (low, high int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.low), int(c.high), c.tripsSet
}

// GetTemp reads the current temperature in millicelsius, rounded to
// calib.Granularity. A failed register access is reported instead of the
// reading it spoiled.
func (c *Channel) GetTemp() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw := c.w.Read32(hw.TEMP)
	if err := linkErr(c.w); err != nil {
		return 0, fmt.Errorf("tsc%d: %w", c.id, err)
	}
	mc, err := c.coefs.Reading(raw & hw.CTempMask)
	if err != nil {
		return 0, fmt.Errorf("tsc%d: %w", c.id, err)
	}
	return int(mc), nil
}

// SetTrips programs the interrupt thresholds. Temperatures outside the
// valid band are clamped; it never fails.
func (c *Channel) SetTrips(low, high int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setTrips(calib.Clamp(low), calib.Clamp(high))
	return nil
}

func (c *Channel) setTrips(lo, hi int32) {
	c.w.Write32(hw.IRQTEMP1, uint32(c.coefs.Code(lo))&hw.CTempMask)
	c.w.Write32(hw.IRQTEMP2, uint32(c.coefs.Code(hi))&hw.CTempMask)

	c.low, c.high, c.tripsSet = lo, hi, true
}

// restore re-derives the equations and reprograms the last trip window.
func (c *Channel) restore() error {
	coefs, err := calib.Solve(c.in)
	if err != nil {
		return fmt.Errorf("tsc%d: %w", c.id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.coefs = coefs
	if c.tripsSet {
		c.setTrips(c.low, c.high)
	}
	if err := linkErr(c.w); err != nil {
		return fmt.Errorf("tsc%d: %w", c.id, err)
	}
	return nil
}

// linkErr returns the failure of a window that can fail.
func linkErr(w regs.Window) error {
	if f, ok := w.(regs.Faulter); ok {
		return f.Err()
	}
	return nil
}
