package ths

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/gotsc/pkg/ths/hw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDriver_GracefulShutdown_NoUpdatesAfterDetach tests that interrupts
// raised after Detach reach no zone.
func TestDriver_GracefulShutdown_NoUpdatesAfterDetach(t *testing.T) {
	p := newFakePlatform(3, 2)
	fw := newFakeFramework()

	d, err := Attach(context.Background(), p, fw, WithSleeper(noSleep))
	require.NoError(t, err)

	require.NoError(t, d.Detach())

	for _, w := range p.windows {
		w.Set(hw.IRQSTR, hw.IRQTemp2)
	}
	for _, l := range p.lines {
		l.Raise()
	}

	time.Sleep(50 * time.Millisecond)

	for i := range p.windows {
		assert.Equal(t, 0, fw.Zone(i).Updates(), "channel %d", i)
	}
}

// TestDriver_GracefulShutdown_DetachWaitsForWorker tests that Detach returns
// only after an in-flight notification finished.
func TestDriver_GracefulShutdown_DetachWaitsForWorker(t *testing.T) {
	p := newFakePlatform(1, 1)
	fw := newFakeFramework()

	d, err := Attach(context.Background(), p, fw, WithSleeper(noSleep))
	require.NoError(t, err)

	block := make(chan struct{})
	fw.Zone(0).block = block

	p.windows[0].Set(hw.IRQSTR, hw.IRQTempD1)
	p.lines[0].Raise()
	require.Eventually(t, func() bool { return d.State() == Pending }, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- d.Detach() }()

	select {
	case <-done:
		t.Fatal("detach returned with a notification in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("detach did not return")
	}

	assert.Equal(t, 1, fw.Zone(0).Updates())
	assert.Equal(t, Disarmed, d.State())
	assert.Equal(t, uint32(0), p.windows[0].Get(hw.IRQMSK))
}
