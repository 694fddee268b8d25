package ths

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/soc"
)

var errInjected = errors.New("injected")

type fakePlatform struct {
	soc     soc.Attribute
	windows []*regs.Mem
	lines   []*irq.Chan
	// windowErr fails Window(i) for i == windowErrAt.
	windowErrAt int
	// faults break the link of window i.
	faults map[int]error
}

// faultyWindow is a window whose link failed with err.
type faultyWindow struct {
	*regs.Mem
	err error
}

func (w faultyWindow) Err() error { return w.err }

func newFakePlatform(channels, lines int) *fakePlatform {
	p := &fakePlatform{
		soc:         soc.Attribute{SoCID: "r8a7796", Revision: "ES1.0"},
		windowErrAt: -1,
	}
	for range channels {
		p.windows = append(p.windows, regs.NewMem())
	}
	for i := range lines {
		p.lines = append(p.lines, irq.NewChan(fmt.Sprintf("fake:ch%d", i)))
	}
	return p
}

func (p *fakePlatform) Name() string       { return "fake" }
func (p *fakePlatform) SoC() soc.Attribute { return p.soc }

func (p *fakePlatform) Window(i int) (regs.Window, error) {
	if i == p.windowErrAt {
		return nil, errInjected
	}
	if i >= len(p.windows) {
		return nil, ErrNoResource
	}
	if err, ok := p.faults[i]; ok {
		return faultyWindow{Mem: p.windows[i], err: err}, nil
	}
	return p.windows[i], nil
}

func (p *fakePlatform) IRQ(i int) (irq.Line, error) {
	if i >= len(p.lines) {
		return nil, ErrNoResource
	}
	return p.lines[i], nil
}

type fakeZone struct {
	mu      sync.Mutex
	id      int
	sensor  Sensor
	updates []Event
	// block delays Update until closed.
	block chan struct{}
}

func (z *fakeZone) Update(ev Event) {
	if z.block != nil {
		<-z.block
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.updates = append(z.updates, ev)
}

func (z *fakeZone) Updates() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return len(z.updates)
}

type fakeFramework struct {
	mu         sync.Mutex
	zones      map[int]*fakeZone
	registered map[int]bool
	failAt     int
	tripsErr   error
	trips      int
}

func newFakeFramework() *fakeFramework {
	return &fakeFramework{
		zones:      make(map[int]*fakeZone),
		registered: make(map[int]bool),
		failAt:     -1,
		trips:      2,
	}
}

func (f *fakeFramework) Register(id int, s Sensor) (Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id == f.failAt {
		return nil, errInjected
	}
	z := &fakeZone{id: id, sensor: s}
	f.zones[id] = z
	f.registered[id] = true
	return z, nil
}

func (f *fakeFramework) Trips(Zone) (int, error) {
	return f.trips, f.tripsErr
}

func (f *fakeFramework) Unregister(z Zone) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fz := z.(*fakeZone)
	if !f.registered[fz.id] {
		return fmt.Errorf("zone %d not registered", fz.id)
	}
	delete(f.registered, fz.id)
	return nil
}

func (f *fakeFramework) Registered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

func (f *fakeFramework) Zone(id int) *fakeZone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zones[id]
}

type sleepRecord struct {
	min, max time.Duration
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []sleepRecord
}

func (r *recordingSleeper) Sleep(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, sleepRecord{min, max})
}

func noSleep(time.Duration, time.Duration) {}
