// Package regs provides access to 32-bit memory-mapped register windows.
//
// A Window is owned by exactly one user. Implementations exist for plain
// memory (tests and simulation), mmap of a physical address range and a
// UART register bridge.
package regs

import "sync"

// Window is a 32-bit register window. Offsets are byte offsets from the
// window base and must be 4-byte aligned.
type Window interface {
	Read32(off uint32) uint32
	Write32(off, val uint32)
}

// Faulter is implemented by windows whose accesses can fail, such as a
// bridge window. Err returns the first failed access.
type Faulter interface {
	Err() error
}

// Ensure implementations satisfy Window.
var (
	_ Window = (*Mem)(nil)
	_ Window = (*Mapped)(nil)
	_ Window = bridgeWindow{}

	_ Faulter = bridgeWindow{}
)

// Access records a single register access on a Mem window.
type Access struct {
	Write bool
	Off   uint32
	Val   uint32
}

// Mem is a register window backed by memory. It records every access so
// tests can check register sequences.
type Mem struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	trace  []Access
	onRead map[uint32]func() uint32
}

// NewMem creates an empty memory window. All registers read as zero.
func NewMem() *Mem {
	return &Mem{
		regs:   make(map[uint32]uint32),
		onRead: make(map[uint32]func() uint32),
	}
}

// Read32 returns the register value.
func (m *Mem) Read32(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.regs[off]
	if fn := m.onRead[off]; fn != nil {
		v = fn()
	}
	m.trace = append(m.trace, Access{Off: off, Val: v})
	return v
}

// Write32 stores the register value.
func (m *Mem) Write32(off, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.regs[off] = val
	m.trace = append(m.trace, Access{Write: true, Off: off, Val: val})
}

// Set presets a register without recording an access.
func (m *Mem) Set(off, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[off] = val
}

// Get peeks at a register without recording an access.
func (m *Mem) Get(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[off]
}

// OnRead makes reads of off return fn() instead of the stored value.
func (m *Mem) OnRead(off uint32, fn func() uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRead[off] = fn
}

// Trace returns a copy of the recorded accesses.
func (m *Mem) Trace() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Access, len(m.trace))
	copy(result, m.trace)
	return result
}

// Writes returns the recorded writes only.
func (m *Mem) Writes() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Access, 0, len(m.trace))
	for _, a := range m.trace {
		if a.Write {
			result = append(result, a)
		}
	}
	return result
}

// Reset clears the recorded accesses.
func (m *Mem) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = m.trace[:0]
}
