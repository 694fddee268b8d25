package fixpt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromInt(t *testing.T) {
	assert.Equal(t, Fixed(0), FromInt(0))
	assert.Equal(t, One, FromInt(1))
	assert.Equal(t, Fixed(524160), FromInt(0xFFF))
	assert.Equal(t, Fixed(-5248), FromInt(-41))
}

func TestInt(t *testing.T) {
	tests := []struct {
		in   Fixed
		want int32
	}{
		{FromInt(25), 25},
		{FromInt(-41), -41},
		{Fixed(191), 1},   // 1.49
		{Fixed(255), 1},   // 1.99
		{Fixed(-1), -1},   // arithmetic shift
		{Fixed(-129), -2}, // -1.008
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Int(), "Int(%d)", tt.in)
	}
}

func TestDivRoundClosest(t *testing.T) {
	tests := []struct {
		x, d, want int32
	}{
		{7, 2, 4},
		{5, 2, 3},
		{4, 2, 2},
		{-7, 2, -4},
		{-5, 2, -3},
		{5, -2, -3},
		{-5, -2, 3},
		{0, 3, 0},
		{1499, 1000, 1},
		{1500, 1000, 2},
		{-1500, 1000, -2},
		{-1499, 1000, -1},
		{125000, 1000, 125},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DivRoundClosest(tt.x, tt.d), "DivRoundClosest(%d, %d)", tt.x, tt.d)
	}
}

func TestDiv(t *testing.T) {
	assert.Equal(t, One, Div(One, One))
	assert.Equal(t, FromInt(3), Div(FromInt(6), FromInt(2)))
	assert.Equal(t, Fixed(64), Div(FromInt(1), FromInt(2)))   // 0.5
	assert.Equal(t, Fixed(-43), Div(FromInt(-1), FromInt(3))) // -0.3359
	assert.Equal(t, Fixed(43), Div(FromInt(1), FromInt(3)))   // 0.3359

	// Worst case dividend for 12-bit code differences.
	assert.Equal(t, FromInt(0xFFF), Div(FromInt(0xFFF), One))
}

func TestMillicelsius(t *testing.T) {
	assert.Equal(t, int32(25000), FromInt(25).Millicelsius())
	assert.Equal(t, int32(-40000), FromInt(-40).Millicelsius())
	assert.Equal(t, int32(500), Fixed(64).Millicelsius())
	assert.Equal(t, int32(7), Fixed(1).Millicelsius()) // 1000/128 truncated
	assert.Equal(t, int32(-8), Fixed(-1).Millicelsius())
}
