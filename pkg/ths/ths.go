// Package ths drives the R-Car Gen3 thermal sensor (THS): up to three
// sensor channels (TSCs) sharing one or two interrupt lines.
//
// The driver initializes every channel, derives its calibration equations,
// serves temperature readings and trip programming to a thermal zone
// framework and forwards threshold interrupts to it. Platform discovery and
// the zone policy are supplied by the caller through Platform and Framework.
package ths

import (
	"errors"

	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/soc"
	"periph.io/x/conn/v3/physic"
)

const (
	// MaxChannels is the number of TSCs a THS block can have.
	MaxChannels = 3
	// MaxLines is the number of interrupt lines the driver requests.
	MaxLines = 2
)

var (
	// ErrOutOfRange is returned by GetTemp for readings outside the valid
	// band. It is the calibration package's sentinel.
	ErrOutOfRange = calib.ErrOutOfRange
	// ErrNoResource is returned for a missing register window or
	// interrupt line.
	ErrNoResource = errors.New("resource unavailable")
	// ErrNotFound is returned by Attach when no channel could be set up.
	ErrNotFound = errors.New("no thermal sensor channels")
	// ErrDetached is returned by operations on a detached driver.
	ErrDetached = errors.New("driver detached")
)

// Sensor is the contract a channel offers to the zone framework.
type Sensor interface {
	GetTemp() (int, error)
	SetTrips(low, high int) error
}

// Ensure Channel implements Sensor.
var _ Sensor = (*Channel)(nil)

// Event tells a zone why it is being updated.
type Event int

const (
	EventUnspecified Event = iota
	EventPoll
)

func (e Event) String() string {
	switch e {
	case EventUnspecified:
		return "unspecified"
	case EventPoll:
		return "poll"
	}
	return "unknown"
}

// Zone is the framework's handle for a registered sensor.
type Zone interface {
	Update(ev Event)
}

// Framework is the thermal zone framework sensors register with.
type Framework interface {
	// Register creates the zone for channel id.
	Register(id int, s Sensor) (Zone, error)
	// Trips returns the number of trip points configured for z.
	Trips(z Zone) (int, error)
	// Unregister removes z.
	Unregister(z Zone) error
}

// Platform supplies the hardware resources of one THS instance.
//
// Window and IRQ return ErrNoResource when resource i does not exist.
// Windows are handed over to the driver, which closes them on Detach when
// they implement io.Closer. Interrupt lines stay owned by the platform.
type Platform interface {
	Name() string
	SoC() soc.Attribute
	Window(i int) (regs.Window, error)
	IRQ(i int) (irq.Line, error)
}

// Temperature converts millicelsius into a physic.Temperature.
func Temperature(mc int) physic.Temperature {
	return physic.Temperature(mc)*physic.MilliCelsius + physic.ZeroCelsius
}
