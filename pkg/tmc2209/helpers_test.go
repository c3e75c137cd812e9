package tmc2209

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/require"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
	"github.com/mbalug7/go-tmc2209/pkg/logger"
)

// fakeChannel models the shared single wire: bytes written are echoed into RX on Flush,
// and a reply produced by respond shows up on RX at the next Delay.
type fakeChannel struct {
	mu       sync.Mutex
	tx       []byte
	rx       []byte
	pending  []byte
	incoming []byte
	respond  func(frame []byte) []byte
	delays   int
	flushErr error
	writeErr error
}

var _ hal.Channel = (*fakeChannel)(nil)

func (c *fakeChannel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushErr != nil {
		return c.flushErr
	}
	if len(c.pending) == 0 {
		return nil
	}
	c.rx = append(c.rx, c.pending...)
	if c.respond != nil {
		c.incoming = append(c.incoming, c.respond(c.pending)...)
	}
	c.pending = nil
	return nil
}

func (c *fakeChannel) WriteByte(b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.tx = append(c.tx, b)
	c.pending = append(c.pending, b)
	return nil
}

func (c *fakeChannel) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx)
}

func (c *fakeChannel) ReadByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rx) == 0 {
		return 0, io.EOF
	}
	b := c.rx[0]
	c.rx = c.rx[1:]
	return b, nil
}

func (c *fakeChannel) Delay(time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays++
	c.rx = append(c.rx, c.incoming...)
	c.incoming = nil
}

func (c *fakeChannel) sent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.tx))
	copy(out, c.tx)
	return out
}

// crcOracle lets the fake device checksum frames without going through the crc package.
var crcOracle = crc8.MakeTable(crc8.Params{Poly: 0x07, RefIn: true, Name: "TMC-UART"})

// fakeDevice answers datagrams the way a TMC2209 at address does.
type fakeDevice struct {
	mu        sync.Mutex
	address   uint8
	registers map[hal.RegAddress]uint32
	writes    []hal.RegAddress
	corrupt   bool            // flip one payload bit in replies
	echoReg   *hal.RegAddress // answer with this register instead of the requested one
	silent    bool
}

func newFakeDevice(address uint8) *fakeDevice {
	return &fakeDevice{address: address, registers: map[hal.RegAddress]uint32{}}
}

func (d *fakeDevice) handle(frame []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.silent || len(frame) < 4 || frame[0] != Sync || frame[1] != d.address {
		return nil
	}
	if crc8.Checksum(frame[:len(frame)-1], crcOracle) != frame[len(frame)-1] {
		return nil
	}
	reg := hal.RegAddress(frame[2])
	if len(frame) == 8 && reg&hal.WriteFlag != 0 {
		d.registers[reg.Plain()] = binary.BigEndian.Uint32(frame[3:7])
		d.writes = append(d.writes, reg.Plain())
		return nil
	}
	if len(frame) != 4 {
		return nil
	}
	if d.echoReg != nil {
		reg = *d.echoReg
	}
	reply := make([]byte, 8)
	reply[0], reply[1], reply[2] = Sync, MasterAddress, byte(reg)
	binary.BigEndian.PutUint32(reply[3:7], d.registers[reg])
	reply[7] = crc8.Checksum(reply[:7], crcOracle)
	if d.corrupt {
		reply[4] ^= 0x10
	}
	return reply
}

func (d *fakeDevice) value(reg hal.RegAddress) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.registers[reg]
	return v, ok
}

func (d *fakeDevice) writeOrder() []hal.RegAddress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hal.RegAddress(nil), d.writes...)
}

func newWiredChannel(dev *fakeDevice) *fakeChannel {
	return &fakeChannel{respond: dev.handle}
}

func testLogger() logger.Logger {
	return logger.NewSlog(io.Discard, logger.DebugLevel, false)
}

func newTestDriver(t *testing.T, opts ...DriverOption) *Driver {
	t.Helper()
	d, err := NewDriver(append([]DriverOption{WithLogger(testLogger())}, opts...)...)
	require.NoError(t, err)
	return d
}

func newTestModule(t *testing.T, ch hal.Channel, address uint8) *Module {
	t.Helper()
	m, err := NewModule(ch, address, WithModuleLogger(testLogger()), WithDriver(newTestDriver(t)))
	require.NoError(t, err)
	return m
}
