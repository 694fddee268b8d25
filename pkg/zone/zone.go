// Package zone is a small thermal zone framework. Each registered sensor
// gets a zone that keeps the sensor's hardware trip window around the
// current temperature and reports readings to subscribers.
package zone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/itohio/gotsc/pkg/ths"
	"github.com/platinasystems/log"
	"periph.io/x/conn/v3/physic"
)

var (
	// ErrExists is returned when an id is registered twice.
	ErrExists = errors.New("zone already registered")
	// ErrUnknown is returned for zones not registered with the framework.
	ErrUnknown = errors.New("unknown zone")
)

// Ensure the framework satisfies the driver contract.
var (
	_ ths.Framework = (*Framework)(nil)
	_ ths.Zone      = (*Zone)(nil)
)

// Trip is a trip point. Temperatures are in millicelsius.
type Trip struct {
	Name       string
	Temp       int
	Hysteresis int
	Type       string
}

// Reading is the outcome of one zone update.
type Reading struct {
	Zone  int
	Name  string
	Time  time.Time
	Event ths.Event

	Millicelsius int
	Temp         physic.Temperature

	// Low and High are the programmed trip window.
	Low, High int
	// Crossed are the trips at or below the temperature.
	Crossed []Trip

	Err error
}

// Framework keeps the registered zones.
type Framework struct {
	trips []Trip

	mu    sync.RWMutex
	zones map[int]*Zone

	callbacks []func(Reading)
	cbMu      sync.RWMutex
}

// New creates a framework. Every zone uses the same trips.
func New(trips []Trip) *Framework {
	return &Framework{
		trips: slices.Clone(trips),
		zones: make(map[int]*Zone),
	}
}

// Register creates the zone of sensor id and runs a first update, which
// programs the initial trip window.
func (f *Framework) Register(id int, s ths.Sensor) (ths.Zone, error) {
	f.mu.Lock()
	if _, ok := f.zones[id]; ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("tsc%d: %w", id, ErrExists)
	}
	z := &Zone{
		fw:     f,
		id:     id,
		name:   fmt.Sprintf("tsc%d", id),
		sensor: s,
	}
	f.zones[id] = z
	f.mu.Unlock()

	z.Update(ths.EventUnspecified)
	return z, nil
}

// Trips returns the number of trips of z.
func (f *Framework) Trips(z ths.Zone) (int, error) {
	if _, err := f.lookup(z); err != nil {
		return 0, err
	}
	return len(f.trips), nil
}

// Unregister removes z.
func (f *Framework) Unregister(z ths.Zone) error {
	zz, err := f.lookup(z)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.zones, zz.id)
	return nil
}

func (f *Framework) lookup(z ths.Zone) (*Zone, error) {
	zz, ok := z.(*Zone)
	if !ok || zz.fw != f {
		return nil, ErrUnknown
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.zones[zz.id] != zz {
		return nil, fmt.Errorf("%s: %w", zz.name, ErrUnknown)
	}
	return zz, nil
}

// Zones returns the registered zones ordered by id.
func (f *Framework) Zones() []*Zone {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]*Zone, 0, len(f.zones))
	for _, z := range f.zones {
		result = append(result, z)
	}
	slices.SortFunc(result, func(a, b *Zone) int { return a.id - b.id })
	return result
}

// OnUpdate registers a callback invoked after every zone update. Callbacks
// run without framework locks held and must return quickly.
func (f *Framework) OnUpdate(callback func(Reading)) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.callbacks = append(f.callbacks, callback)
}

func (f *Framework) notify(r Reading) {
	f.cbMu.RLock()
	callbacks := make([]func(Reading), len(f.callbacks))
	copy(callbacks, f.callbacks)
	f.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}

// Run polls every zone each interval until ctx is done.
func (f *Framework) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, z := range f.Zones() {
				z.Update(ths.EventPoll)
			}
		}
	}
}

// Quiesce runs fn while no zone update is in progress. Suspend and resume
// of the sensors go through it.
func (f *Framework) Quiesce(fn func() error) error {
	zones := f.Zones()
	for _, z := range zones {
		z.mu.Lock()
	}
	defer func() {
		for _, z := range zones {
			z.mu.Unlock()
		}
	}()

	return fn()
}

// Window computes the trip window around temp: the highest trip low point
// (trip minus hysteresis) below temp and the lowest trip above it. Without
// such trips the window is open on that side.
func Window(trips []Trip, temp int) (low, high int) {
	low, high = math.MinInt32, math.MaxInt32
	for _, t := range trips {
		tripLow := t.Temp - t.Hysteresis
		if tripLow < temp && tripLow > low {
			low = tripLow
		}
		if t.Temp > temp && t.Temp < high {
			high = t.Temp
		}
	}
	return low, high
}

// Zone is the zone of one sensor. Updates are serialized.
type Zone struct {
	fw   *Framework
	id   int
	name string

	mu      sync.Mutex
	sensor  ths.Sensor
	last    Reading
	crossed map[string]bool
}

// ID returns the sensor id.
func (z *Zone) ID() int {
	return z.id
}

// Name returns the zone name.
func (z *Zone) Name() string {
	return z.name
}

// Last returns the most recent reading.
func (z *Zone) Last() Reading {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.last
}

// Update reads the sensor, moves the trip window and notifies subscribers.
func (z *Zone) Update(ev ths.Event) {
	z.mu.Lock()
	r := z.update(ev)
	z.last = r
	z.mu.Unlock()

	z.fw.notify(r)
}

func (z *Zone) update(ev ths.Event) Reading {
	r := Reading{
		Zone:  z.id,
		Name:  z.name,
		Time:  time.Now(),
		Event: ev,
	}

	mc, err := z.sensor.GetTemp()
	if err != nil {
		log.Print("warning: ", z.name, ": ", err)
		r.Err = err
		return r
	}
	r.Millicelsius = mc
	r.Temp = ths.Temperature(mc)

	r.Low, r.High = Window(z.fw.trips, mc)
	if err := z.sensor.SetTrips(r.Low, r.High); err != nil {
		log.Print("warning: ", z.name, ": set trips: ", err)
		r.Err = err
	}

	if z.crossed == nil {
		z.crossed = make(map[string]bool)
	}
	for _, t := range z.fw.trips {
		crossed := mc >= t.Temp
		if crossed {
			r.Crossed = append(r.Crossed, t)
		}
		if crossed != z.crossed[t.Name] {
			z.crossed[t.Name] = crossed
			if crossed {
				log.Printf("notice: %s: %s trip %s crossed at %s", z.name, t.Type, t.Name, r.Temp)
			} else {
				log.Printf("notice: %s: %s trip %s cleared at %s", z.name, t.Type, t.Name, r.Temp)
			}
		}
	}

	return r
}
