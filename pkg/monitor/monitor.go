// Package monitor runs one attached sensor block for an application: it
// opens the platform, attaches the driver to a zone framework, keeps a
// trace of the readings and optionally publishes them.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/platform"
	"github.com/itohio/gotsc/pkg/publish"
	"github.com/itohio/gotsc/pkg/sim"
	"github.com/itohio/gotsc/pkg/ths"
	"github.com/itohio/gotsc/pkg/trace"
	"github.com/itohio/gotsc/pkg/zone"
	"go.uber.org/multierr"
)

// Session tracks the components of one attached sensor block for graceful
// shutdown: platform, zone framework, driver and subscribers.
type Session struct {
	Platform ths.Platform
	Chip     *sim.Chip // nil unless the platform is simulated
	Zones    *zone.Framework
	Driver   *ths.Driver
	Trace    *trace.Trace

	pub *publish.Publisher

	cancel   context.CancelFunc
	pollDone chan struct{} // Closed when the polling goroutine exits

	mu        sync.Mutex
	suspended bool
}

// Trips converts the configured trip points.
func Trips(cfg *config.ZonesConfig) []zone.Trip {
	trips := make([]zone.Trip, len(cfg.Trips))
	for i, t := range cfg.Trips {
		trips[i] = zone.Trip{
			Name:       t.Name,
			Temp:       t.Temp,
			Hysteresis: t.Hysteresis,
			Type:       t.Type,
		}
	}
	return trips
}

// Start opens the configured platform and attaches the driver to it.
// onReading is registered before the zones exist so it sees the first
// reading of each zone. Options are passed to ths.Attach.
func Start(cfg *config.Config, onReading func(zone.Reading), opts ...ths.Option) (*Session, error) {
	p, err := platform.Open(cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Platform: p,
		Zones:    zone.New(Trips(&cfg.Zones)),
		Trace:    trace.New(time.Duration(cfg.Display.WindowSeconds * float64(time.Second))),
	}
	s.Chip, _ = p.(*sim.Chip)

	s.Zones.OnUpdate(s.Trace.Hook())
	if cfg.Redis.Addr != "" {
		s.pub = publish.Dial(cfg.Redis.Addr, cfg.Redis.Hash)
		s.Zones.OnUpdate(s.pub.Hook())
	}
	if onReading != nil {
		s.Zones.OnUpdate(onReading)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	opts = append([]ths.Option{ths.WithSource(platform.Source(&cfg.Calibration))}, opts...)
	s.Driver, err = ths.Attach(ctx, p, s.Zones, opts...)
	if err != nil {
		cancel()
		return nil, multierr.Append(err, s.closeResources())
	}

	s.pollDone = make(chan struct{})
	go func() {
		defer close(s.pollDone)
		if cfg.Zones.PollInterval > 0 {
			s.Zones.Run(ctx, cfg.Zones.PollInterval)
		}
	}()

	return s, nil
}

// SetSuspended suspends or resumes the driver while no zone update runs.
func (s *Session) SetSuspended(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suspended == on {
		return nil
	}

	fn := s.Driver.Resume
	if on {
		fn = s.Driver.Suspend
	}
	if err := s.Zones.Quiesce(fn); err != nil {
		return err
	}
	s.suspended = on
	return nil
}

// Suspended returns whether the driver is suspended.
func (s *Session) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Close stops polling, detaches the driver and releases the platform.
// Waits for every goroutine to finish.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.cancel()
	<-s.pollDone

	return multierr.Append(s.Driver.Detach(), s.closeResources())
}

func (s *Session) closeResources() error {
	var err error
	if c, ok := s.Platform.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("platform: %w", cerr))
		}
	}
	if s.pub != nil {
		err = multierr.Append(err, s.pub.Close())
	}
	return err
}
