// Package irq provides interrupt lines a driver can block on.
package irq

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Wait once the line has been closed.
var ErrClosed = errors.New("irq: line closed")

// Line is a single interrupt line. Wait blocks until the line fires, the
// context is done or the line is closed.
type Line interface {
	Wait(ctx context.Context) error
}

// Ensure implementations satisfy Line.
var (
	_ Line = (*Chan)(nil)
	_ Line = (*UIO)(nil)
	_ Line = (*Ticker)(nil)
)

// Chan is a software interrupt line. Raises that happen while nobody waits
// are latched; several raises before a Wait coalesce into one.
type Chan struct {
	name  string
	fired chan struct{}
	done  chan struct{}
}

// NewChan creates a software line.
func NewChan(name string) *Chan {
	return &Chan{
		name:  name,
		fired: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Name returns the line name.
func (c *Chan) Name() string {
	return c.name
}

// Raise fires the line.
func (c *Chan) Raise() {
	select {
	case c.fired <- struct{}{}:
	default:
	}
}

// Wait blocks until the line fires.
func (c *Chan) Wait(ctx context.Context) error {
	select {
	case <-c.fired:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases waiters. It must be called once.
func (c *Chan) Close() error {
	close(c.done)
	return nil
}

// Ticker is a line that fires periodically. It stands in for a real line
// on platforms that cannot deliver interrupts, turning the driver's top
// half into a status poll.
type Ticker struct {
	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

// NewTicker creates a line firing every interval.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{
		t:    time.NewTicker(interval),
		done: make(chan struct{}),
	}
}

// Wait blocks until the next tick.
func (t *Ticker) Wait(ctx context.Context) error {
	select {
	case <-t.t.C:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the ticker and releases waiters.
func (t *Ticker) Close() error {
	t.once.Do(func() {
		t.t.Stop()
		close(t.done)
	})
	return nil
}
