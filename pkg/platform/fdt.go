package platform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/platinasystems/fdt"
)

const fdtMagic = 0xd00dfeed

// Compatible lists the device tree compatible strings of THS blocks.
var Compatible = []string{
	"renesas,r8a7795-thermal",
	"renesas,r8a7796-thermal",
}

// ErrNoNode is returned by Discover when the tree has no enabled THS node.
var ErrNoNode = errors.New("no thermal sensor node")

// Resource is a register window in physical address space.
type Resource struct {
	Base uint64
	Size uint64
}

func (r Resource) String() string {
	return fmt.Sprintf("%#x+%#x", r.Base, r.Size)
}

// Discover finds the first enabled THS node of a flattened device tree
// blob and returns its register windows in reg order.
func Discover(blob []byte) (string, []Resource, error) {
	if err := checkHeader(blob); err != nil {
		return "", nil, err
	}

	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err := t.Parse(blob); err != nil {
		return "", nil, fmt.Errorf("failed to parse device tree: %w", err)
	}
	if t.RootNode == nil {
		return "", nil, fmt.Errorf("device tree has no root node")
	}

	matched := make(map[*fdt.Node]bool)
	t.EachProperty("compatible", "", func(n *fdt.Node, _, value string) {
		for _, c := range t.PropStringSlice([]byte(value)) {
			if slices.Contains(Compatible, c) {
				matched[n] = true
				return
			}
		}
	})

	var found []thsNode
	walk(t, t.RootNode, 2, 1, func(n *fdt.Node, addrCells, sizeCells int) {
		if !matched[n] || !enabled(t, n) {
			return
		}
		found = append(found, thsNode{n, addrCells, sizeCells})
	})
	if len(found) == 0 {
		return "", nil, ErrNoNode
	}

	// Children are kept in maps; sort for a stable pick.
	sort.Slice(found, func(i, j int) bool { return found[i].n.Name < found[j].n.Name })
	node := found[0]

	res, err := parseReg(t, node.n.Properties["reg"], node.addrCells, node.sizeCells)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", node.n.Name, err)
	}
	return node.n.Name, res, nil
}

type thsNode struct {
	n         *fdt.Node
	addrCells int
	sizeCells int
}

func checkHeader(blob []byte) error {
	// Fixed header of a version 17 blob.
	if len(blob) < 40 {
		return fmt.Errorf("device tree blob too short: %d bytes", len(blob))
	}
	if m := binary.BigEndian.Uint32(blob); m != fdtMagic {
		return fmt.Errorf("bad device tree magic %#x", m)
	}
	total := binary.BigEndian.Uint32(blob[4:])
	structOff := binary.BigEndian.Uint32(blob[8:])
	stringsOff := binary.BigEndian.Uint32(blob[12:])
	if int(total) > len(blob) || structOff >= total || stringsOff > total {
		return fmt.Errorf("truncated device tree blob")
	}
	return nil
}

// walk calls f for every node below n with the cell sizes its reg
// property is encoded with, which come from the parent.
func walk(t *fdt.Tree, n *fdt.Node, addrCells, sizeCells int, f func(n *fdt.Node, addrCells, sizeCells int)) {
	f(n, addrCells, sizeCells)

	childAddr, childSize := 2, 1
	if b, ok := n.Properties["#address-cells"]; ok && len(b) == 4 {
		childAddr = int(t.PropUint32(b))
	}
	if b, ok := n.Properties["#size-cells"]; ok && len(b) == 4 {
		childSize = int(t.PropUint32(b))
	}
	for _, c := range n.Children {
		walk(t, c, childAddr, childSize, f)
	}
}

func enabled(t *fdt.Tree, n *fdt.Node) bool {
	b, ok := n.Properties["status"]
	if !ok || len(b) == 0 {
		return true
	}
	s := t.PropString(b)
	return s == "okay" || s == "ok"
}

func parseReg(t *fdt.Tree, b []byte, addrCells, sizeCells int) ([]Resource, error) {
	if addrCells < 1 || addrCells > 2 || sizeCells < 1 || sizeCells > 2 {
		return nil, fmt.Errorf("unsupported cell sizes %d/%d", addrCells, sizeCells)
	}
	stride := addrCells + sizeCells
	cells := t.PropUint32Slice(b)
	if len(cells) == 0 || len(b)%4 != 0 || len(cells)%stride != 0 {
		return nil, fmt.Errorf("malformed reg property (%d bytes)", len(b))
	}

	var res []Resource
	for i := 0; i < len(cells); i += stride {
		res = append(res, Resource{
			Base: cellValue(cells[i : i+addrCells]),
			Size: cellValue(cells[i+addrCells : i+stride]),
		})
	}
	return res, nil
}

func cellValue(cells []uint32) uint64 {
	var v uint64
	for _, c := range cells {
		v = v<<32 | uint64(c)
	}
	return v
}
