package common

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
)

const (
	DefaultBaud         = 115200
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultRxBufferSize = 256

	bitsPerByte = 10 // start + 8 data + stop
	spinBelow   = 200 * time.Microsecond
	echoPoll    = 100 * time.Microsecond
)

// ErrEchoTimeout is returned by Flush when written bytes did not come back on the shared wire.
var ErrEchoTimeout = errors.New("serial: echo of written bytes not received")

// SerialConfig describes the UART the drivers are wired to.
type SerialConfig struct {
	Name         string        // serial port name, e.g. /dev/ttyS0
	Baud         int           // the TMC2209 detects the baud rate, 9600 to 500k
	Parity       serial.Parity // the TMC2209 only speaks 8N1
	ReadTimeout  time.Duration // how long one port read may block
	RxBufferSize int           // received bytes kept before the oldest are dropped
	NoEcho       bool          // TX and RX are separate lines, written bytes are not received back
}

type serialPort interface {
	io.ReadWriteCloser
}

// SerialChannel is a hal.Channel over a tarm/serial port.
//
// A reader goroutine moves received bytes into a buffer so Available never blocks.
// Bytes written on the shared wire come back as echo. The reader discards them as they
// arrive, and Flush blocks until the echo of every written byte has been seen, bounded
// by the read timeout.
type SerialChannel struct {
	port        serialPort
	byteTime    time.Duration
	bufSize     int
	echo        bool
	echoTimeout time.Duration

	muRx    sync.Mutex // guards rx, echoQ and readErr
	rx      []byte
	echoQ   []byte // written bytes whose echo has not been received yet
	readErr error

	muTx   sync.Mutex // guards txDone
	txDone time.Time  // moment the last written byte has left the wire

	done chan struct{}
	wg   sync.WaitGroup
}

var _ hal.Channel = (*SerialChannel)(nil)

// NewSerialChannel opens the serial port described by cfg.
func NewSerialChannel(cfg SerialConfig) (*SerialChannel, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("serial port name is empty")
	}
	cfg = cfg.withDefaults()
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		Size:        8,
		Parity:      cfg.Parity,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port, err: %w", err)
	}
	return newSerialChannel(port, cfg), nil
}

func (cfg SerialConfig) withDefaults() SerialConfig {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.RxBufferSize <= 0 {
		cfg.RxBufferSize = DefaultRxBufferSize
	}
	return cfg
}

func newSerialChannel(port serialPort, cfg SerialConfig) *SerialChannel {
	cfg = cfg.withDefaults()
	obj := &SerialChannel{
		port:        port,
		byteTime:    time.Duration(bitsPerByte) * time.Second / time.Duration(cfg.Baud),
		bufSize:     cfg.RxBufferSize,
		echo:        !cfg.NoEcho,
		echoTimeout: cfg.ReadTimeout,
		done:        make(chan struct{}),
	}
	obj.wg.Add(1)
	go obj.readLoop()
	return obj
}

func (obj *SerialChannel) readLoop() {
	defer obj.wg.Done()
	buf := make([]byte, 64)
	for {
		n, err := obj.port.Read(buf)
		if n > 0 {
			obj.receive(buf[:n])
		}
		select {
		case <-obj.done:
			return
		default:
		}
		// tarm/serial reports an idle line as io.EOF once the read timeout passes
		if err != nil && !errors.Is(err, io.EOF) {
			obj.muRx.Lock()
			obj.readErr = fmt.Errorf("failed to receive data: %w", err)
			obj.muRx.Unlock()
			return
		}
	}
}

// receive drops bytes matching the expected echo and buffers the rest.
func (obj *SerialChannel) receive(data []byte) {
	obj.muRx.Lock()
	defer obj.muRx.Unlock()
	for _, b := range data {
		if len(obj.echoQ) > 0 && obj.echoQ[0] == b {
			obj.echoQ = obj.echoQ[1:]
			continue
		}
		obj.rx = append(obj.rx, b)
	}
	if over := len(obj.rx) - obj.bufSize; over > 0 {
		obj.rx = obj.rx[over:]
	}
}

// ByteTime is the time one byte occupies the wire.
func (obj *SerialChannel) ByteTime() time.Duration {
	return obj.byteTime
}

// Flush blocks until every written byte has been transmitted and its echo received.
// When the echo does not show up within the read timeout the outstanding echo is
// forgotten and ErrEchoTimeout is returned.
func (obj *SerialChannel) Flush() error {
	obj.muTx.Lock()
	wait := time.Until(obj.txDone)
	obj.muTx.Unlock()
	if wait > 0 {
		obj.Delay(wait)
	}

	deadline := time.Now().Add(obj.echoTimeout)
	for {
		expired := !time.Now().Before(deadline)
		obj.muRx.Lock()
		missing, err := len(obj.echoQ), obj.readErr
		if expired {
			obj.echoQ = nil
		}
		obj.muRx.Unlock()

		switch {
		case err != nil:
			return err
		case missing == 0:
			return nil
		case expired:
			return fmt.Errorf("%w: %d bytes missing", ErrEchoTimeout, missing)
		}
		time.Sleep(echoPoll)
	}
}

func (obj *SerialChannel) WriteByte(b byte) error {
	obj.muTx.Lock()
	defer obj.muTx.Unlock()

	if obj.echo {
		// queued before the write so the reader cannot see the echo first
		obj.muRx.Lock()
		obj.echoQ = append(obj.echoQ, b)
		obj.muRx.Unlock()
	}
	if _, err := obj.port.Write([]byte{b}); err != nil {
		if obj.echo {
			obj.muRx.Lock()
			if n := len(obj.echoQ); n > 0 {
				obj.echoQ = obj.echoQ[:n-1]
			}
			obj.muRx.Unlock()
		}
		return fmt.Errorf("failed to send data, err: %w", err)
	}
	now := time.Now()
	if obj.txDone.Before(now) {
		obj.txDone = now
	}
	obj.txDone = obj.txDone.Add(obj.byteTime)
	return nil
}

func (obj *SerialChannel) Available() int {
	obj.muRx.Lock()
	defer obj.muRx.Unlock()
	return len(obj.rx)
}

func (obj *SerialChannel) ReadByte() (byte, error) {
	obj.muRx.Lock()
	defer obj.muRx.Unlock()
	if len(obj.rx) == 0 {
		if obj.readErr != nil {
			return 0, obj.readErr
		}
		return 0, io.EOF
	}
	b := obj.rx[0]
	obj.rx = obj.rx[1:]
	return b, nil
}

// Delay sleeps for d. Short delays spin, the scheduler cannot sleep for microseconds.
func (obj *SerialChannel) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinBelow {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// Close stops the reader and closes the port.
func (obj *SerialChannel) Close() error {
	select {
	case <-obj.done:
		return nil
	default:
	}
	close(obj.done)
	err := obj.port.Close()
	obj.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close serial stream: %w", err)
	}
	return nil
}
