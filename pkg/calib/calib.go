// Package calib derives the per-channel linear temperature equations from
// calibration reference codes and converts between ADC codes and
// millicelsius with them.
//
// The sensor is approximated by
//
//	code = temp * a + b  =>  temp = (code - b) / a
//
// with two (a, b) pairs, one anchored at the low reference junction
// temperature and one at the high one. Both are computed from a PTAT triplet
// and a per-channel THCODE triplet. The formulas and the constants 137, 96
// and -41 come from the vendor BSP and are kept bit-for-bit; they are not
// derived here.
package calib

import (
	"errors"
	"fmt"

	"github.com/itohio/gotsc/pkg/fixpt"
)

const (
	// CodeMask masks a 12-bit calibration or ADC code.
	CodeMask = 0xFFF

	// MinMillicelsius and MaxMillicelsius bound the valid sensor band.
	MinMillicelsius = -40000
	MaxMillicelsius = 125000

	// Granularity is the resolution readings are rounded to.
	Granularity = 500

	ptatScale = 137
	tj1       = 96
	tj3       = -41

	// Solved coefficients must satisfy One <= |a| < maxCoef and |b| < maxCoef
	// so every conversion of a 12-bit code or an in-band temperature stays
	// within int32 (see Millicelsius and Code).
	maxCoef = 1 << 20
)

// ErrDegenerate is returned when calibration inputs cannot produce usable
// equations.
var ErrDegenerate = errors.New("degenerate calibration")

// ErrOutOfRange is returned for readings outside the valid sensor band.
var ErrOutOfRange = errors.New("temperature out of range")

// Triplet holds three calibration reference codes.
type Triplet [3]int32

// Inputs are the reference codes a channel's equations are derived from.
type Inputs struct {
	PTAT   Triplet `yaml:"ptat"`
	THCode Triplet `yaml:"thcode"`
}

// Coefs are the two linear equations of a channel in fixed-point.
type Coefs struct {
	A1, B1 fixpt.Fixed // anchored at the low reference point (-41)
	A2, B2 fixpt.Fixed // anchored at the high reference point (96)
}

// Solve computes the equation pair for one channel. It is a pure function
// of its inputs.
func Solve(in Inputs) (Coefs, error) {
	var c Coefs

	for i := range 3 {
		if in.PTAT[i] < 0 || in.PTAT[i] > CodeMask || in.THCode[i] < 0 || in.THCode[i] > CodeMask {
			return c, fmt.Errorf("%w: code outside 12 bits: ptat=%v thcode=%v", ErrDegenerate, in.PTAT, in.THCode)
		}
	}

	ptat, thcode := in.PTAT, in.THCode
	if ptat[0] == ptat[2] {
		return c, fmt.Errorf("%w: ptat[0] == ptat[2] (%d)", ErrDegenerate, ptat[0])
	}

	// Not rounded: scaling this quotient as well could overflow
	// (4095 * 4095 << 14 > MaxInt32). Dividend is at most 4095*137<<7.
	tj2 := fixpt.FromInt((ptat[1]-ptat[2])*ptatScale)/fixpt.Fixed(ptat[0]-ptat[2]) - fixpt.FromInt(41)

	d1 := tj2 - fixpt.FromInt(tj3)
	d2 := tj2 - fixpt.FromInt(tj1)
	if d1 == 0 || d2 == 0 {
		return c, fmt.Errorf("%w: junction estimate %d on a reference point", ErrDegenerate, tj2)
	}

	c.A1 = fixpt.Div(fixpt.FromInt(thcode[1]-thcode[2]), d1)
	c.A2 = fixpt.Div(fixpt.FromInt(thcode[1]-thcode[0]), d2)
	if !slopeOK(c.A1) || !slopeOK(c.A2) {
		return c, fmt.Errorf("%w: slopes %d, %d", ErrDegenerate, c.A1, c.A2)
	}

	// |a| < 2^20 so a*96 cannot overflow.
	c.B1 = fixpt.FromInt(thcode[2]) - c.A1*tj3
	c.B2 = fixpt.FromInt(thcode[0]) - c.A2*tj1
	if !interceptOK(c.B1) || !interceptOK(c.B2) {
		return c, fmt.Errorf("%w: intercepts %d, %d", ErrDegenerate, c.B1, c.B2)
	}

	return c, nil
}

func slopeOK(a fixpt.Fixed) bool {
	return (a >= fixpt.One && a < maxCoef) || (a <= -fixpt.One && a > -maxCoef)
}

func interceptOK(b fixpt.Fixed) bool {
	return b > -maxCoef && b < maxCoef
}

// Millicelsius converts a 12-bit code into millicelsius by averaging the
// inverses of both equations. The result is not range checked or rounded.
//
// With |b| < 2^20 and code <= 0xFFF the scaled difference (code<<7 - b) is
// below 1.6*2^20, times 2^7 inside Div stays below 2^28. Dividing by
// |a| >= One keeps each estimate below 1.6*2^20, so the *1000 in
// fixpt.Millicelsius cannot overflow.
func (c Coefs) Millicelsius(code int32) int32 {
	v1 := fixpt.Div(fixpt.FromInt(code)-c.B1, c.A1)
	v2 := fixpt.Div(fixpt.FromInt(code)-c.B2, c.A2)
	return ((v1 + v2) / 2).Millicelsius()
}

// Code converts millicelsius into the raw code domain with the forward
// equations, evaluated at whole degrees and averaged.
//
// mc is expected inside the valid band: 125 * 2^20 + 2^20 per equation keeps
// the sum of both below 2^28.
func (c Coefs) Code(mc int32) int32 {
	celsius := fixpt.Fixed(fixpt.DivRoundClosest(mc, 1000))
	v1 := celsius*c.A1 + c.B1
	v2 := celsius*c.A2 + c.B2
	return ((v1 + v2) / 2).Int()
}

// Reading converts a raw register value into a rounded reading. Results
// outside the valid band are rejected with ErrOutOfRange.
func (c Coefs) Reading(raw uint32) (int32, error) {
	code := int32(raw & CodeMask)
	mc := c.Millicelsius(code)
	if !InRange(mc) {
		return 0, fmt.Errorf("%w: code %#x gives %d mC", ErrOutOfRange, code, mc)
	}
	return Round(mc), nil
}

// InRange reports whether mc lies inside the valid sensor band.
func InRange(mc int32) bool {
	return mc >= MinMillicelsius && mc <= MaxMillicelsius
}

// Clamp limits mc to the valid sensor band.
func Clamp(mc int) int32 {
	switch {
	case mc < MinMillicelsius:
		return MinMillicelsius
	case mc > MaxMillicelsius:
		return MaxMillicelsius
	}
	return int32(mc)
}

// Round rounds mc to the nearest multiple of Granularity, halves away from
// zero.
func Round(mc int32) int32 {
	offs := int32(Granularity / 2)
	if mc < 0 {
		offs = -offs
	}
	return (mc + offs) / Granularity * Granularity
}
