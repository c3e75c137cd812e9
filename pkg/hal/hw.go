package hal

import "time"

// Channel is the byte oriented half-duplex line a driver talks through.
// TX and RX share one wire, so everything written is also received back.
// The channel is owned by the caller, drivers never open or close it.
type Channel interface {
	// Flush blocks until previously written bytes are physically sent.
	Flush() error
	WriteByte(b byte) error
	// Available returns the number of received bytes that can be read without blocking.
	Available() int
	ReadByte() (byte, error)
	// Delay pauses the caller, microsecond resolution is expected.
	Delay(d time.Duration)
}
