//go:build tinygo && pico

package pico

import (
	"fmt"
	"time"

	"machine"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
)

const bitsPerByte = 10

// UARTChannel is a hal.Channel over a Raspberry Pi Pico hardware UART.
// TX and RX are tied together through a 1k resistor to PDN_UART.
type UARTChannel struct {
	uart     *machine.UART
	byteTime time.Duration
	txDone   time.Time
}

var _ hal.Channel = (*UARTChannel)(nil)

// NewUARTChannel configures uart for 8N1 at baud on the given pins.
func NewUARTChannel(uart *machine.UART, baud uint32, tx, rx machine.Pin) (*UARTChannel, error) {
	if baud == 0 {
		baud = 115200
	}
	err := uart.Configure(machine.UARTConfig{
		BaudRate: baud,
		TX:       tx,
		RX:       rx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure uart, err: %w", err)
	}
	uart.Buffer.Clear()
	return &UARTChannel{
		uart:     uart,
		byteTime: time.Duration(bitsPerByte) * time.Second / time.Duration(baud),
	}, nil
}

// Flush waits until the TX FIFO had time to shift out every written byte.
func (obj *UARTChannel) Flush() error {
	if wait := time.Until(obj.txDone); wait > 0 {
		obj.Delay(wait)
	}
	return nil
}

func (obj *UARTChannel) WriteByte(b byte) error {
	if err := obj.uart.WriteByte(b); err != nil {
		return fmt.Errorf("failed to send data, err: %w", err)
	}
	now := time.Now()
	if obj.txDone.Before(now) {
		obj.txDone = now
	}
	obj.txDone = obj.txDone.Add(obj.byteTime)
	return nil
}

func (obj *UARTChannel) Available() int {
	return obj.uart.Buffered()
}

func (obj *UARTChannel) ReadByte() (byte, error) {
	return obj.uart.ReadByte()
}

func (obj *UARTChannel) Delay(d time.Duration) {
	time.Sleep(d)
}
