// Package hw holds the register map of the R-Car Gen3 thermal sensor
// channel (TSC).
package hw

// Register offsets from the channel window base.
const (
	IRQSTR   = 0x04
	IRQMSK   = 0x08
	IRQCTL   = 0x0C
	IRQEN    = 0x10
	IRQTEMP1 = 0x14
	IRQTEMP2 = 0x18
	IRQTEMP3 = 0x1C
	CTSR     = 0x20
	THCTR    = 0x20 // same register, default sequence layout
	TEMP     = 0x28
	THCODE1  = 0x50
	THCODE2  = 0x54
	THCODE3  = 0x58
	PTAT1    = 0x5C
	PTAT2    = 0x60
	PTAT3    = 0x64
)

// WindowSize covers every register above.
const WindowSize = 0x68

// IRQSTR, IRQMSK, IRQCTL and IRQEN bits.
const (
	IRQTemp1  = 1 << 0
	IRQTemp2  = 1 << 1
	IRQTemp3  = 1 << 2
	IRQTempD1 = 1 << 3
	IRQTempD2 = 1 << 4
	IRQTempD3 = 1 << 5

	// IRQAll is every source of a channel.
	IRQAll = 0x3F
	// IRQArmed are the sources the driver listens to: the reading fell
	// below IRQTEMP1 or rose above IRQTEMP2.
	IRQArmed = IRQTempD1 | IRQTemp2
)

// CTSR bits (r8a7795 ES1.x layout).
const (
	CTSRPONM  = 1 << 8
	CTSRAOUT  = 1 << 7
	CTSRTHBGR = 1 << 5
	CTSRVMEN  = 1 << 4
	CTSRVMST  = 1 << 1
	CTSRTHSST = 1 << 0
)

// THCTR bits.
const (
	THCTRPONM  = 1 << 6
	THCTRTHSST = 1 << 0
)

// CTempMask masks the 12-bit TEMP code.
const CTempMask = 0xFFF

// FuseMask masks the 12-bit calibration fuse codes.
const FuseMask = 0xFFF
