package platform

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/itohio/gotsc/pkg/calib"
	"github.com/itohio/gotsc/pkg/config"
	"github.com/itohio/gotsc/pkg/irq"
	"github.com/itohio/gotsc/pkg/regs"
	"github.com/itohio/gotsc/pkg/sim"
	"github.com/itohio/gotsc/pkg/soc"
	"github.com/itohio/gotsc/pkg/ths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dtb assembles a flattened device tree blob.
type dtb struct {
	structs bytes.Buffer
	strs    bytes.Buffer
	offs    map[string]uint32
}

func newDTB() *dtb {
	return &dtb{offs: make(map[string]uint32)}
}

func (b *dtb) u32(v uint32) {
	binary.Write(&b.structs, binary.BigEndian, v)
}

func (b *dtb) pad() {
	for b.structs.Len()%4 != 0 {
		b.structs.WriteByte(0)
	}
}

func (b *dtb) begin(name string) *dtb {
	b.u32(1)
	b.structs.WriteString(name)
	b.structs.WriteByte(0)
	b.pad()
	return b
}

func (b *dtb) end() *dtb {
	b.u32(2)
	return b
}

func (b *dtb) prop(name string, val []byte) *dtb {
	off, ok := b.offs[name]
	if !ok {
		off = uint32(b.strs.Len())
		b.offs[name] = off
		b.strs.WriteString(name)
		b.strs.WriteByte(0)
	}
	b.u32(3)
	b.u32(uint32(len(val)))
	b.u32(off)
	b.structs.Write(val)
	b.pad()
	return b
}

func (b *dtb) cells(name string, v ...uint32) *dtb {
	val := make([]byte, 4*len(v))
	for i, c := range v {
		binary.BigEndian.PutUint32(val[4*i:], c)
	}
	return b.prop(name, val)
}

func (b *dtb) str(name string, v ...string) *dtb {
	var val []byte
	for _, s := range v {
		val = append(val, s...)
		val = append(val, 0)
	}
	return b.prop(name, val)
}

func (b *dtb) bytes() []byte {
	b.u32(9)

	const hdr, rsv = 40, 16
	structOff := uint32(hdr + rsv)
	stringsOff := structOff + uint32(b.structs.Len())
	total := stringsOff + uint32(b.strs.Len())

	var out bytes.Buffer
	for _, v := range []uint32{
		fdtMagic, total, structOff, stringsOff, hdr,
		17, 16, 0, uint32(b.strs.Len()), uint32(b.structs.Len()),
	} {
		binary.Write(&out, binary.BigEndian, v)
	}
	out.Write(make([]byte, rsv))
	out.Write(b.structs.Bytes())
	out.Write(b.strs.Bytes())
	return out.Bytes()
}

func r8a7795Tree(status string) []byte {
	b := newDTB().begin("").
		cells("#address-cells", 2).
		cells("#size-cells", 2).
		str("compatible", "renesas,salvator-x", "renesas,r8a7795").
		begin("soc").
		cells("#address-cells", 2).
		cells("#size-cells", 2).
		begin("serial@e6e88000").
		str("compatible", "renesas,scif-r8a7795").
		cells("reg", 0, 0xe6e88000, 0, 0x40).
		end().
		begin("thermal@e6198000").
		str("compatible", "renesas,r8a7795-thermal")
	if status != "" {
		b.str("status", status)
	}
	return b.cells("reg",
		0, 0xe6198000, 0, 0x100,
		0, 0xe61a0000, 0, 0x100,
		0, 0xe61a8000, 0, 0x100).
		end().
		end().
		end().
		bytes()
}

func TestDiscover(t *testing.T) {
	name, res, err := Discover(r8a7795Tree(""))
	require.NoError(t, err)

	assert.Equal(t, "thermal@e6198000", name)
	assert.Equal(t, []Resource{
		{Base: 0xe6198000, Size: 0x100},
		{Base: 0xe61a0000, Size: 0x100},
		{Base: 0xe61a8000, Size: 0x100},
	}, res)
}

func TestDiscover_Okay(t *testing.T) {
	_, res, err := Discover(r8a7795Tree("okay"))
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestDiscover_Disabled(t *testing.T) {
	_, _, err := Discover(r8a7795Tree("disabled"))
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestDiscover_SingleCells(t *testing.T) {
	blob := newDTB().begin("").
		cells("#address-cells", 1).
		cells("#size-cells", 1).
		begin("thermal@e6198000").
		str("compatible", "renesas,r8a7796-thermal", "renesas,rcar-gen3-thermal").
		cells("reg", 0xe6198000, 0x100, 0xe61a0000, 0x100).
		end().
		end().
		bytes()

	_, res, err := Discover(blob)
	require.NoError(t, err)
	assert.Equal(t, []Resource{
		{Base: 0xe6198000, Size: 0x100},
		{Base: 0xe61a0000, Size: 0x100},
	}, res)
}

func TestDiscover_NoNode(t *testing.T) {
	blob := newDTB().begin("").
		str("compatible", "renesas,r8a7795").
		end().
		bytes()

	_, _, err := Discover(blob)
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestDiscover_Malformed(t *testing.T) {
	badReg := newDTB().begin("").
		cells("#address-cells", 2).
		cells("#size-cells", 2).
		begin("thermal").
		str("compatible", "renesas,r8a7795-thermal").
		cells("reg", 0, 0xe6198000, 0).
		end().
		end().
		bytes()

	bad := r8a7795Tree("")
	bad[0] = 0

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"short", []byte{0xd0, 0x0d, 0xfe, 0xed}},
		{"magic", bad},
		{"truncated", r8a7795Tree("")[:60]},
		{"reg", badReg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Discover(tt.blob)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrNoNode)
		})
	}
}

func TestPlatform_Resources(t *testing.T) {
	mems := map[uint64]*regs.Mem{}
	open := func(r Resource) (regs.Window, error) {
		m := regs.NewMem()
		mems[r.Base] = m
		return m, nil
	}
	line := irq.NewChan("ths:ch0")
	p := New("ths", soc.Attribute{SoCID: "r8a7795"},
		[]Resource{{Base: 0x1000, Size: 0x100}, {Base: 0x2000, Size: 0x10}},
		open, 1, func(int) (irq.Line, error) { return line, nil })

	assert.Equal(t, "ths", p.Name())
	assert.Equal(t, "r8a7795", p.SoC().SoCID)
	assert.Len(t, p.Resources(), 2)

	w, err := p.Window(0)
	require.NoError(t, err)
	assert.Same(t, mems[0x1000], w)

	_, err = p.Window(1)
	assert.ErrorContains(t, err, "smaller than")

	_, err = p.Window(2)
	assert.ErrorIs(t, err, ths.ErrNoResource)

	l, err := p.IRQ(0)
	require.NoError(t, err)
	assert.Same(t, line, l)

	l2, err := p.IRQ(0)
	require.NoError(t, err)
	assert.Same(t, l, l2)

	_, err = p.IRQ(1)
	assert.ErrorIs(t, err, ths.ErrNoResource)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	// Chan lines are closed by the platform.
	assert.ErrorIs(t, line.Wait(context.Background()), irq.ErrClosed)

	_, err = p.IRQ(0)
	assert.ErrorIs(t, err, irq.ErrClosed)
}

func TestLocate_FromTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fdt")
	require.NoError(t, os.WriteFile(path, r8a7795Tree(""), 0644))

	cfg := config.Default().Platform
	cfg.FDT = path
	cfg.Channels = nil

	name, res := Locate(&cfg)
	assert.Equal(t, "thermal@e6198000", name)
	assert.Len(t, res, 3)
}

func TestLocate_Static(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"missing", nil},
		{"no node", newDTB().begin("").end().bytes()},
		{"garbage", []byte("not a device tree at all, really not")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Platform
			cfg.FDT = filepath.Join(t.TempDir(), "fdt")
			if tt.blob != nil {
				require.NoError(t, os.WriteFile(cfg.FDT, tt.blob, 0644))
			}
			cfg.Channels = []config.ChannelConfig{{Base: 0xe6198000, Size: 0x100}}

			name, res := Locate(&cfg)
			assert.Equal(t, "ths", name)
			assert.Equal(t, []Resource{{Base: 0xe6198000, Size: 0x100}}, res)
		})
	}
}

func TestLines(t *testing.T) {
	cfg := config.Default().Platform

	n, _ := lines(&cfg)
	assert.Equal(t, 2, n)

	cfg.IRQs = []string{"/dev/uio0", "/dev/uio1", "/dev/uio2"}
	n, _ = lines(&cfg)
	assert.Equal(t, ths.MaxLines, n)

	cfg.IRQs = nil
	cfg.IRQPoll = time.Millisecond
	n, open := lines(&cfg)
	assert.Equal(t, 1, n)

	l, err := open(0)
	require.NoError(t, err)
	_, ok := l.(*irq.Ticker)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.Wait(ctx))
	l.(*irq.Ticker).Close()
}

func TestDetect_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "family"), []byte("R-Car Gen3\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "soc_id"), []byte("r8a7796\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "revision"), []byte("ES1.0\n"), 0644))

	attr := Detect(&config.SoCConfig{Sysfs: dir})
	assert.Equal(t, soc.Attribute{Family: "R-Car Gen3", SoCID: "r8a7796", Revision: "ES1.0"}, attr)

	attr = Detect(&config.SoCConfig{Sysfs: dir, SoCID: "r8a7795", Revision: "ES1.1"})
	assert.Equal(t, soc.Attribute{Family: "R-Car Gen3", SoCID: "r8a7795", Revision: "ES1.1"}, attr)

	attr = Detect(&config.SoCConfig{Sysfs: filepath.Join(dir, "missing"), SoCID: "r8a7795"})
	assert.Equal(t, soc.Attribute{SoCID: "r8a7795"}, attr)
}

func TestSource(t *testing.T) {
	cfg := config.Default().Calibration

	src := Source(&cfg)
	fb, ok := src.(calib.Fallback)
	require.True(t, ok)
	assert.Equal(t, calib.DefaultFallback(), fb)

	cfg.Source = config.SourceFuses
	src = Source(&cfg)
	fuses, ok := src.(ths.Fuses)
	require.True(t, ok)
	assert.Equal(t, calib.DefaultFallback(), fuses.Fallback)
}

func TestOpen_Sim(t *testing.T) {
	cfg := config.Default()
	cfg.SoC.Sysfs = filepath.Join(t.TempDir(), "missing")
	cfg.SoC.SoCID = "r8a7795"
	cfg.SoC.Revision = "ES1.0"

	p, err := Open(cfg)
	require.NoError(t, err)

	chip, ok := p.(*sim.Chip)
	require.True(t, ok)
	defer chip.Close()

	assert.True(t, chip.IsRunning())
	assert.Equal(t, "ES1.0", p.SoC().Revision)
	assert.Equal(t, ths.SequenceR8A7795ES1, ths.SelectSequence(p.SoC()))
}

func TestOpen_DevMem(t *testing.T) {
	cfg := config.Default()
	cfg.SoC.Sysfs = filepath.Join(t.TempDir(), "missing")
	cfg.Platform.Backend = config.BackendDevMem
	cfg.Platform.FDT = ""
	cfg.Platform.IRQs = nil

	p, err := Open(cfg)
	require.NoError(t, err)
	defer p.(*Platform).Close()

	assert.Equal(t, "ths", p.Name())
	assert.Len(t, p.(*Platform).Resources(), 3)

	l, err := p.IRQ(0)
	require.NoError(t, err)
	assert.IsType(t, &irq.Ticker{}, l)
	_, err = p.IRQ(1)
	assert.ErrorIs(t, err, ths.ErrNoResource)
}

func TestOpen_SerialMissingPort(t *testing.T) {
	cfg := config.Default()
	cfg.SoC.Sysfs = filepath.Join(t.TempDir(), "missing")
	cfg.Platform.Backend = config.BackendSerial
	cfg.Platform.Serial.Port = filepath.Join(t.TempDir(), "ttyNONE")

	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.SoC.Sysfs = filepath.Join(t.TempDir(), "missing")
	cfg.Platform.Backend = "jtag"

	_, err := Open(cfg)
	assert.ErrorContains(t, err, "unknown platform backend")
}
