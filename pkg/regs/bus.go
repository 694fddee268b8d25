package regs

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnmapped is returned for bus addresses outside every region.
var ErrUnmapped = errors.New("unmapped address")

// Bus routes absolute addresses to the windows mapped on it. ServeBridge
// uses it to expose several register blocks on one link.
type Bus struct {
	regions []region
}

type region struct {
	base, size uint32
	w          Window
}

// end is one past the last byte of r. It may be 1<<32.
func (r region) end() uint64 {
	return uint64(r.base) + uint64(r.size)
}

// Ensure Bus implements Window.
var _ Window = (*Bus)(nil)

// Map places w at base. Regions must not overlap.
func (b *Bus) Map(base, size uint32, w Window) error {
	n := region{base: base, size: size, w: w}
	if size == 0 || n.end() > 1<<32 {
		return fmt.Errorf("invalid region %#x+%#x", base, size)
	}
	for _, r := range b.regions {
		if uint64(base) < r.end() && uint64(r.base) < n.end() {
			return fmt.Errorf("region %#x+%#x overlaps %#x+%#x", base, size, r.base, r.size)
		}
	}
	b.regions = append(b.regions, n)
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].base < b.regions[j].base })
	return nil
}

// Check reports whether a 32-bit access at addr hits a region.
func (b *Bus) Check(addr uint32) error {
	_, _, err := b.lookup(addr)
	return err
}

func (b *Bus) lookup(addr uint32) (Window, uint32, error) {
	i := sort.Search(len(b.regions), func(i int) bool {
		return b.regions[i].end() > uint64(addr)
	})
	if i == len(b.regions) {
		return nil, 0, fmt.Errorf("%#x: %w", addr, ErrUnmapped)
	}
	r := b.regions[i]
	if addr < r.base || addr%4 != 0 || addr-r.base+4 > r.size {
		return nil, 0, fmt.Errorf("%#x: %w", addr, ErrUnmapped)
	}
	return r.w, addr - r.base, nil
}

// Read32 reads the register at addr. Unmapped addresses read as all ones.
func (b *Bus) Read32(addr uint32) uint32 {
	w, off, err := b.lookup(addr)
	if err != nil {
		return 0xffffffff
	}
	return w.Read32(off)
}

// Write32 writes the register at addr. Writes to unmapped addresses are
// dropped.
func (b *Bus) Write32(addr, val uint32) {
	w, off, err := b.lookup(addr)
	if err != nil {
		return
	}
	w.Write32(off, val)
}
