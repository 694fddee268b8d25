package irq

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds how long Wait sleeps in poll before checking ctx.
const pollInterval = 50 * time.Millisecond

// UIO is an interrupt line backed by a Linux userspace I/O device
// (/dev/uioN). The interrupt is re-enabled before each wait and the kernel
// event counter is read once it fires.
type UIO struct {
	mu     sync.Mutex
	fd     int
	closed bool
	count  uint32
}

// OpenUIO opens a UIO device node.
func OpenUIO(path string) (*UIO, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return newUIO(fd), nil
}

func newUIO(fd int) *UIO {
	return &UIO{fd: fd}
}

// Count returns the kernel event counter seen by the last Wait.
func (u *UIO) Count() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// Wait re-enables the interrupt and blocks until it fires.
func (u *UIO) Wait(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	fd := u.fd
	u.mu.Unlock()

	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	if _, err := unix.Write(fd, buf[:]); err != nil {
		return fmt.Errorf("failed to enable interrupt: %w", err)
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pfd[0].Revents = 0
		n, err := unix.Poll(pfd, int(pollInterval.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("failed to poll interrupt: %w", err)
		}
		if n == 0 {
			continue
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return ErrClosed
		}
		break
	}

	n, err := unix.Read(fd, buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return fmt.Errorf("failed to read interrupt count: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("short interrupt count read (%d bytes)", n)
	}

	u.mu.Lock()
	u.count = binary.NativeEndian.Uint32(buf[:])
	u.mu.Unlock()
	return nil
}

// Close closes the device.
func (u *UIO) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	return unix.Close(u.fd)
}
