package regs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/platinasystems/log"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate of the tscbridge agent.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds the wait for a bridge reply.
	DefaultTimeout = 500 * time.Millisecond
)

// ErrBridge is returned for malformed or negative bridge replies.
var ErrBridge = errors.New("register bridge")

// Bridge reaches registers through a line protocol on a serial port, as
// exposed by a debug MCU sitting on the SoC bus or by tscbridge running on
// the target.
//
// Requests and replies are single lines with hex numbers:
//
//	r ADDR        ->  VALUE
//	w ADDR VALUE  ->  ok
//
// Any other reply line starting with "err" is an error.
type Bridge struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	rd   *bufio.Reader
	err  error
}

// NewBridge wraps an established connection.
func NewBridge(conn io.ReadWriteCloser) *Bridge {
	return &Bridge{
		conn: conn,
		rd:   bufio.NewReader(conn),
	}
}

// OpenBridge opens the serial port and returns a bridge on it.
func OpenBridge(port string, baudRate int) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(DefaultTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	return NewBridge(p), nil
}

// Ports lists the serial ports a bridge may be attached to.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Window returns a register window at physical address base.
func (b *Bridge) Window(base uint32) Window {
	return bridgeWindow{b: b, base: base}
}

// Err returns the first transfer error. Register accesses cannot report
// errors, so a failed read returns zero and the error sticks here.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Close closes the underlying connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// Read32 reads the register at physical address addr.
func (b *Bridge) Read32(addr uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply, err := b.transfer(fmt.Sprintf("r %08x\n", addr))
	if err != nil {
		return 0, b.fail(err)
	}

	v, err := strconv.ParseUint(reply, 16, 32)
	if err != nil {
		return 0, b.fail(fmt.Errorf("%w: invalid read reply %q", ErrBridge, reply))
	}
	return uint32(v), nil
}

// Write32 writes val to physical address addr.
func (b *Bridge) Write32(addr, val uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply, err := b.transfer(fmt.Sprintf("w %08x %08x\n", addr, val))
	if err != nil {
		return b.fail(err)
	}
	if reply != "ok" {
		return b.fail(fmt.Errorf("%w: invalid write reply %q", ErrBridge, reply))
	}
	return nil
}

// transfer sends one request line and returns the trimmed reply line.
func (b *Bridge) transfer(req string) (string, error) {
	if b.conn == nil {
		return "", fmt.Errorf("%w: closed", ErrBridge)
	}
	if _, err := io.WriteString(b.conn, req); err != nil {
		return "", fmt.Errorf("failed to send bridge request: %w", err)
	}

	line, err := b.rd.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read bridge reply: %w", err)
	}

	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "err") {
		return "", fmt.Errorf("%w: %s", ErrBridge, line)
	}
	return line, nil
}

func (b *Bridge) fail(err error) error {
	if b.err == nil {
		b.err = err
		log.Print("warning: ", err)
	}
	return err
}

type bridgeWindow struct {
	b    *Bridge
	base uint32
}

func (w bridgeWindow) Read32(off uint32) uint32 {
	v, _ := w.b.Read32(w.base + off)
	return v
}

func (w bridgeWindow) Write32(off, val uint32) {
	_ = w.b.Write32(w.base+off, val)
}

// Err implements Faulter. The error belongs to the whole bridge.
func (w bridgeWindow) Err() error {
	return w.b.Err()
}

// ServeBridge answers bridge requests from rw with accesses to w, using
// window offsets as addresses. Addresses a Bus does not map are refused.
// It returns when rw reaches EOF.
func ServeBridge(rw io.ReadWriter, w Window) error {
	sc := bufio.NewScanner(rw)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		reply, err := serveLine(line, w)
		if err != nil {
			reply = "err " + err.Error()
		}
		if _, err := io.WriteString(rw, reply+"\n"); err != nil {
			return err
		}
	}
	return sc.Err()
}

func serveLine(line string, w Window) (string, error) {
	parts := strings.Fields(line)
	parse := func(s string) (uint32, error) {
		v, err := strconv.ParseUint(s, 16, 32)
		return uint32(v), err
	}
	check := func(addr uint32) error {
		if bus, ok := w.(*Bus); ok {
			return bus.Check(addr)
		}
		return nil
	}

	switch {
	case len(parts) == 2 && parts[0] == "r":
		addr, err := parse(parts[1])
		if err != nil {
			return "", fmt.Errorf("bad address %q", parts[1])
		}
		if err := check(addr); err != nil {
			return "", err
		}
		return fmt.Sprintf("%08x", w.Read32(addr)), nil
	case len(parts) == 3 && parts[0] == "w":
		addr, err := parse(parts[1])
		if err != nil {
			return "", fmt.Errorf("bad address %q", parts[1])
		}
		val, err := parse(parts[2])
		if err != nil {
			return "", fmt.Errorf("bad value %q", parts[2])
		}
		if err := check(addr); err != nil {
			return "", err
		}
		w.Write32(addr, val)
		return "ok", nil
	}
	return "", fmt.Errorf("bad request %q", line)
}
