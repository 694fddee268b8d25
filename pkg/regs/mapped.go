package regs

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is the physical memory device.
const DevMem = "/dev/mem"

// Mapped is a register window mapped from a file, normally /dev/mem or a
// UIO map. Accesses are single aligned 32-bit loads and stores.
type Mapped struct {
	mem   []byte
	delta int
	size  int
}

// Map maps size bytes at physical address base from path. base does not
// need to be page aligned.
func Map(path string, base int64, size int) (*Mapped, error) {
	if size <= 0 || size%4 != 0 {
		return nil, fmt.Errorf("invalid window size %#x", size)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer unix.Close(fd)

	page := int64(unix.Getpagesize())
	start := base &^ (page - 1)
	delta := int(base - start)

	mem, err := unix.Mmap(fd, start, delta+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s at %#x+%#x: %w", path, base, size, err)
	}

	return &Mapped{mem: mem, delta: delta, size: size}, nil
}

func (m *Mapped) word(off uint32) *uint32 {
	if off%4 != 0 || int(off)+4 > m.size {
		panic(fmt.Sprintf("regs: access at %#x outside %#x byte window", off, m.size))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.delta+int(off)]))
}

// Read32 loads the register at off.
func (m *Mapped) Read32(off uint32) uint32 {
	return atomic.LoadUint32(m.word(off))
}

// Write32 stores val at off.
func (m *Mapped) Write32(off, val uint32) {
	atomic.StoreUint32(m.word(off), val)
}

// Close unmaps the window.
func (m *Mapped) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
