package ths

import (
	"time"

	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/soc"
	"github.com/itohio/gotsc/pkg/ths/hw"
)

// Sleeper waits between min and max.
type Sleeper func(min, max time.Duration)

// DefaultSleeper sleeps for min.
func DefaultSleeper(min, _ time.Duration) {
	time.Sleep(min)
}

// Sequence is a channel power-up sequence.
type Sequence int

const (
	// SequenceDefault powers up every stepping but r8a7795 ES1.x.
	SequenceDefault Sequence = iota
	// SequenceR8A7795ES1 brings up the analog bias, the voltage monitor
	// and the ADC in separate stages.
	SequenceR8A7795ES1
)

// es1 matches the steppings that need SequenceR8A7795ES1.
var es1 = soc.Attribute{SoCID: "r8a7795", Revision: "ES1.*"}

// SelectSequence picks the sequence for a SoC.
func SelectSequence(a soc.Attribute) Sequence {
	if soc.Match(a, es1) {
		return SequenceR8A7795ES1
	}
	return SequenceDefault
}

func (s Sequence) String() string {
	switch s {
	case SequenceDefault:
		return "default"
	case SequenceR8A7795ES1:
		return "r8a7795-es1"
	}
	return "unknown"
}

// Run resets and starts the channel behind w.
func (s Sequence) Run(w regs.Window, sleep Sleeper) {
	switch s {
	case SequenceR8A7795ES1:
		w.Write32(hw.CTSR, hw.CTSRTHBGR)
		w.Write32(hw.CTSR, 0)
		sleep(time.Millisecond, 2*time.Millisecond)

		w.Write32(hw.CTSR, hw.CTSRPONM)
		w.Write32(hw.IRQCTL, hw.IRQAll)
		w.Write32(hw.IRQMSK, 0)
		w.Write32(hw.IRQEN, hw.IRQArmed)

		w.Write32(hw.CTSR, hw.CTSRPONM|hw.CTSRAOUT|hw.CTSRTHBGR|hw.CTSRVMEN)
		sleep(100*time.Microsecond, 200*time.Microsecond)

		w.Write32(hw.CTSR, hw.CTSRPONM|hw.CTSRAOUT|hw.CTSRTHBGR|hw.CTSRVMEN|hw.CTSRVMST|hw.CTSRTHSST)
		sleep(time.Millisecond, 2*time.Millisecond)
	default:
		v := w.Read32(hw.THCTR)
		w.Write32(hw.THCTR, v&^hw.THCTRPONM)
		sleep(time.Millisecond, 2*time.Millisecond)

		w.Write32(hw.IRQCTL, hw.IRQAll)
		w.Write32(hw.IRQMSK, 0)
		w.Write32(hw.IRQEN, hw.IRQArmed)

		v = w.Read32(hw.THCTR)
		w.Write32(hw.THCTR, v|hw.THCTRTHSST)
		sleep(time.Millisecond, 2*time.Millisecond)
	}
}
