// Package fixpt implements the binary fixed-point arithmetic used by the
// sensor calibration and conversion code.
//
// A Fixed holds a real value scaled by 2^Shift. Calibration and ADC codes are
// 12-bit (0..0xFFF) so the largest product the calibration formulas form is
// 0xFFF*0xFFF = 0xFFE001 (24 bits). Together with the sign bit that leaves
// 7 bits of a 32-bit integer for the fraction, hence Shift = 7.
package fixpt

// Shift is the number of fractional bits.
const Shift = 7

// One is 1.0 in fixed-point.
const One Fixed = 1 << Shift

// Fixed is a signed fixed-point value with Shift fractional bits.
type Fixed int32

// FromInt widens an integer to fixed-point.
//
// |x| must stay below 2^24; 12-bit codes (and their differences) give at
// most 0xFFF<<7 = 524160.
func FromInt(x int32) Fixed {
	return Fixed(x << Shift)
}

// Int narrows f to an integer. The shift is arithmetic, so negative values
// round towards minus infinity.
func (f Fixed) Int() int32 {
	return int32(f) >> Shift
}

// Div divides a by b and rounds the quotient to the nearest fixed-point
// value, halves away from zero.
//
// The dividend is scaled by 2^Shift before dividing, so |a| must stay below
// 2^24. For a difference of two widened 12-bit codes that is at most
// 524160<<7 = 67092480.
func Div(a, b Fixed) Fixed {
	return Fixed(DivRoundClosest(int32(a)<<Shift, int32(b)))
}

// Millicelsius converts a fixed-point temperature in degrees to millidegrees.
// |f| must stay below 2^31/1000 (about 16777 degrees).
func (f Fixed) Millicelsius() int32 {
	return (int32(f) * 1000) >> Shift
}

// DivRoundClosest divides x by d rounding halves away from zero. Division
// truncates towards zero the same way C does.
func DivRoundClosest(x, d int32) int32 {
	if (x > 0) == (d > 0) {
		return (x + d/2) / d
	}
	return (x - d/2) / d
}
