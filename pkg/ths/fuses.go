package ths

import (
	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/ths/hw"
	"github.com/platinasystems/log"
)

// Fuses reads calibration codes from the channel's fuse registers. When a
// channel has any unprogrammed (zero) fuse, Fallback serves it instead.
type Fuses struct {
	Fallback calib.Source
}

// Ensure Fuses implements calib.Source.
var _ calib.Source = Fuses{}

// Inputs implements calib.Source.
func (f Fuses) Inputs(ch int, r calib.Reader) (calib.Inputs, error) {
	fuse := func(off uint32) int32 {
		return int32(r.Read32(off) & hw.FuseMask)
	}

	in := calib.Inputs{
		PTAT:   calib.Triplet{fuse(hw.PTAT1), fuse(hw.PTAT2), fuse(hw.PTAT3)},
		THCode: calib.Triplet{fuse(hw.THCODE1), fuse(hw.THCODE2), fuse(hw.THCODE3)},
	}

	for i := range 3 {
		if in.PTAT[i] != 0 && in.THCode[i] != 0 {
			continue
		}
		if f.Fallback == nil {
			return calib.Inputs{}, calib.ErrNoCalibration
		}
		log.Printf("notice: tsc%d: fuses not programmed, using fallback calibration", ch)
		return f.Fallback.Inputs(ch, r)
	}

	return in, nil
}
