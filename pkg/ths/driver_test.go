package ths

import (
	"context"
	"testing"

	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/soc"
	"github.com/itohio/gotsc/pkg/ths/hw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attachTest(t *testing.T, p *fakePlatform, fw *fakeFramework, opts ...Option) *Driver {
	t.Helper()

	opts = append([]Option{WithSleeper(noSleep)}, opts...)
	d, err := Attach(context.Background(), p, fw, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Detach() })
	return d
}

func TestAttach(t *testing.T) {
	p := newFakePlatform(3, 2)
	fw := newFakeFramework()

	d := attachTest(t, p, fw)

	assert.Equal(t, "fake", d.Name())
	assert.Equal(t, SequenceDefault, d.Sequence())
	assert.Equal(t, Armed, d.State())
	assert.Equal(t, 3, fw.Registered())
	require.Len(t, d.Channels(), 3)

	for i, ch := range d.Channels() {
		assert.Equal(t, i, ch.ID())

		in, err := calib.DefaultFallback().Inputs(i, nil)
		require.NoError(t, err)
		want, err := calib.Solve(in)
		require.NoError(t, err)
		assert.Equal(t, want, ch.Coefs())
		assert.Equal(t, in, ch.Inputs())

		assert.Equal(t, uint32(hw.IRQArmed), p.windows[i].Get(hw.IRQMSK))
		assert.Equal(t, uint32(hw.IRQArmed), p.windows[i].Get(hw.IRQEN))
		assert.Same(t, ch, fw.Zone(i).sensor)
	}
}

func TestAttach_StopsAtFirstMissingWindow(t *testing.T) {
	p := newFakePlatform(2, 1)
	fw := newFakeFramework()

	d := attachTest(t, p, fw)

	assert.Len(t, d.Channels(), 2)
	assert.Equal(t, 2, fw.Registered())
}

func TestAttach_ES1Sequence(t *testing.T) {
	p := newFakePlatform(1, 1)
	p.soc = soc.Attribute{SoCID: "r8a7795", Revision: "ES1.1"}

	d := attachTest(t, p, newFakeFramework())

	assert.Equal(t, SequenceR8A7795ES1, d.Sequence())
	assert.Equal(t, uint32(0x1B3), p.windows[0].Get(hw.CTSR))
}

func TestAttach_Fuses(t *testing.T) {
	p := newFakePlatform(1, 1)
	fuses := map[uint32]uint32{
		hw.PTAT1: 2350, hw.PTAT2: 1510, hw.PTAT3: 436,
		hw.THCODE1: 3249, hw.THCODE2: 2801, hw.THCODE3: 2222,
	}
	for off, v := range fuses {
		p.windows[0].Set(off, v)
	}

	d := attachTest(t, p, newFakeFramework(), WithSource(Fuses{Fallback: calib.DefaultFallback()}))

	in := calib.Inputs{PTAT: calib.Triplet{2350, 1510, 436}, THCode: calib.Triplet{3249, 2801, 2222}}
	want, err := calib.Solve(in)
	require.NoError(t, err)
	assert.Equal(t, want, d.Channels()[0].Coefs())
}

func TestAttach_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fakePlatform, fw *fakeFramework)
		src     calib.Source
		lines   int
		wantErr error
	}{
		{
			name:    "no channels",
			setup:   func(p *fakePlatform, _ *fakeFramework) { p.windows = nil },
			lines:   2,
			wantErr: ErrNotFound,
		},
		{
			name:    "no interrupt lines",
			lines:   0,
			wantErr: ErrNoResource,
		},
		{
			name:    "last channel fails registration",
			setup:   func(_ *fakePlatform, fw *fakeFramework) { fw.failAt = 2 },
			lines:   2,
			wantErr: errInjected,
		},
		{
			name:    "first channel fails registration",
			setup:   func(_ *fakePlatform, fw *fakeFramework) { fw.failAt = 0 },
			lines:   1,
			wantErr: errInjected,
		},
		{
			name:    "window fails to map",
			setup:   func(p *fakePlatform, _ *fakeFramework) { p.windowErrAt = 1 },
			lines:   2,
			wantErr: errInjected,
		},
		{
			name:    "register link fails",
			setup:   func(p *fakePlatform, _ *fakeFramework) { p.faults = map[int]error{1: errInjected} },
			lines:   2,
			wantErr: errInjected,
		},
		{
			name:    "trip count fails",
			setup:   func(_ *fakePlatform, fw *fakeFramework) { fw.tripsErr = errInjected },
			lines:   2,
			wantErr: errInjected,
		},
		{
			name: "calibration fails",
			setup: func(p *fakePlatform, _ *fakeFramework) {
				fuses := map[uint32]uint32{
					hw.PTAT1: 2350, hw.PTAT2: 1510, hw.PTAT3: 436,
					hw.THCODE1: 3249, hw.THCODE2: 2801, hw.THCODE3: 2222,
				}
				for off, v := range fuses {
					p.windows[0].Set(off, v)
				}
				p.windows[1].Set(hw.PTAT1, 1)
			},
			src:     Fuses{},
			lines:   2,
			wantErr: calib.ErrNoCalibration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlatform(3, tt.lines)
			fw := newFakeFramework()
			if tt.setup != nil {
				tt.setup(p, fw)
			}

			src := tt.src
			if src == nil {
				src = calib.DefaultFallback()
			}

			d, err := Attach(context.Background(), p, fw, WithSleeper(noSleep), WithSource(src))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, d)
			assert.Equal(t, 0, fw.Registered(), "registered zones left after unwind")
		})
	}
}

func TestSuspendResume_Deterministic(t *testing.T) {
	p := newFakePlatform(3, 2)
	fw := newFakeFramework()
	d := attachTest(t, p, fw)

	chans := d.Channels()
	before := make([]calib.Coefs, len(chans))
	for i, ch := range chans {
		before[i] = ch.Coefs()
	}
	require.NoError(t, chans[0].SetTrips(25000, 96000))

	require.NoError(t, d.Suspend())
	assert.Equal(t, Disarmed, d.State())
	for _, w := range p.windows {
		assert.Equal(t, uint32(0), w.Get(hw.IRQMSK))
		w.Reset()
	}

	require.NoError(t, d.Resume())
	assert.Equal(t, Armed, d.State())

	for i, ch := range chans {
		assert.Equal(t, before[i], ch.Coefs(), "channel %d", i)
		assert.Contains(t, p.windows[i].Writes(), regs.Access{Write: true, Off: hw.IRQCTL, Val: hw.IRQAll})
		assert.Equal(t, uint32(hw.IRQArmed), p.windows[i].Get(hw.IRQMSK))
	}

	low, high, ok := chans[0].Trips()
	assert.True(t, ok)
	assert.Equal(t, 25000, low)
	assert.Equal(t, 96000, high)
	assert.Equal(t, uint32(2719), p.windows[0].Get(hw.IRQTEMP1))
	assert.Equal(t, uint32(3250), p.windows[0].Get(hw.IRQTEMP2))

	// Channels that never had trips keep them unset.
	for _, a := range p.windows[1].Writes() {
		assert.NotEqual(t, uint32(hw.IRQTEMP1), a.Off)
		assert.NotEqual(t, uint32(hw.IRQTEMP2), a.Off)
	}
	_, _, ok = chans[1].Trips()
	assert.False(t, ok)
}

func TestDetach(t *testing.T) {
	p := newFakePlatform(3, 2)
	fw := newFakeFramework()

	d, err := Attach(context.Background(), p, fw, WithSleeper(noSleep))
	require.NoError(t, err)

	require.NoError(t, d.Detach())
	assert.Equal(t, 0, fw.Registered())
	assert.Equal(t, Disarmed, d.State())
	assert.Empty(t, d.Channels())
	for _, w := range p.windows {
		assert.Equal(t, uint32(0), w.Get(hw.IRQMSK))
	}

	require.NoError(t, d.Detach())
	assert.ErrorIs(t, d.Suspend(), ErrDetached)
	assert.ErrorIs(t, d.Resume(), ErrDetached)
}

func TestDetach_AfterContextCancel(t *testing.T) {
	p := newFakePlatform(1, 1)
	fw := newFakeFramework()

	ctx, cancel := context.WithCancel(context.Background())
	d, err := Attach(ctx, p, fw, WithSleeper(noSleep))
	require.NoError(t, err)

	cancel()
	require.NoError(t, d.Detach())
	assert.Equal(t, 0, fw.Registered())
}
