package sim

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/ths/hw"
)

// TSC models the registers of one sensor channel.
//
// TEMP follows the die temperature through the channel's true calibration
// once the ADC is started. Crossing IRQTEMP1 downwards latches TEMPD1 and
// crossing IRQTEMP2 upwards latches TEMP2 in IRQSTR when enabled in IRQEN.
// Latched sources unmasked in IRQMSK fire the interrupt line.
type TSC struct {
	id    int
	coefs calib.Coefs
	fire  func(status uint32)

	mu      sync.Mutex
	regs    map[uint32]uint32
	celsius float32
	code    uint32
}

// Ensure TSC implements regs.Window.
var _ regs.Window = (*TSC)(nil)

func newTSC(id int, in calib.Inputs, fused bool, fire func(uint32)) (*TSC, error) {
	coefs, err := calib.Solve(in)
	if err != nil {
		return nil, err
	}

	t := &TSC{
		id:    id,
		coefs: coefs,
		fire:  fire,
		regs:  make(map[uint32]uint32),
	}
	if fused {
		t.regs[hw.PTAT1] = uint32(in.PTAT[0])
		t.regs[hw.PTAT2] = uint32(in.PTAT[1])
		t.regs[hw.PTAT3] = uint32(in.PTAT[2])
		t.regs[hw.THCODE1] = uint32(in.THCode[0])
		t.regs[hw.THCODE2] = uint32(in.THCode[1])
		t.regs[hw.THCODE3] = uint32(in.THCode[2])
	}
	return t, nil
}

// started reports whether the ADC runs. Both register layouts keep the
// start bit in bit 0.
func (t *TSC) started() bool {
	return t.regs[hw.THCTR]&hw.THCTRTHSST != 0
}

// codeFor converts degrees into a raw code with the averaged forward
// equations of the true calibration.
func (t *TSC) codeFor(celsius float32) uint32 {
	a := float32(t.coefs.A1+t.coefs.A2) / 2
	b := float32(t.coefs.B1+t.coefs.B2) / 2
	code := math32.Round((celsius*a + b) / 128)
	return uint32(math32.Max(0, math32.Min(code, hw.CTempMask)))
}

// Read32 implements regs.Window.
func (t *TSC) Read32(off uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if off == hw.TEMP {
		if !t.started() {
			return 0
		}
		return t.code
	}
	return t.regs[off]
}

// Write32 implements regs.Window.
func (t *TSC) Write32(off, val uint32) {
	t.mu.Lock()
	t.regs[off] = val
	pending := t.pending()
	t.mu.Unlock()

	// Unmasking a latched source fires right away.
	if off == hw.IRQMSK && pending != 0 {
		t.fire(pending)
	}
}

func (t *TSC) pending() uint32 {
	return t.regs[hw.IRQSTR] & t.regs[hw.IRQMSK]
}

// Celsius returns the die temperature.
func (t *TSC) Celsius() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.celsius
}

// Code returns the current raw code.
func (t *TSC) Code() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

// set moves the die temperature and evaluates the comparators.
func (t *TSC) set(celsius float32) {
	t.mu.Lock()

	prev := t.code
	t.celsius = celsius
	t.code = t.codeFor(celsius)

	var status uint32
	if t.started() {
		low, high := t.regs[hw.IRQTEMP1], t.regs[hw.IRQTEMP2]
		if prev >= low && t.code < low {
			status |= hw.IRQTempD1
		}
		if prev <= high && t.code > high {
			status |= hw.IRQTemp2
		}
		status &= t.regs[hw.IRQEN]
		t.regs[hw.IRQSTR] |= status
	}
	pending := t.pending()
	t.mu.Unlock()

	if status&pending != 0 {
		t.fire(pending)
	}
}
