package tmc2209

import (
	"fmt"
	"time"

	"github.com/mbalug7/go-tmc2209/pkg/logger"
)

// Default reply timing. The reply window is DefaultReplyBudget polls of DefaultPollInterval,
// DefaultTurnaroundDelay is one byte time at the 500 kBaud the driver is often run at.
const (
	DefaultReplyBudget     = 250
	DefaultPollInterval    = 1 * time.Microsecond
	DefaultReplyTimeout    = DefaultReplyBudget * DefaultPollInterval
	DefaultTurnaroundDelay = 16 * time.Microsecond
)

// Accepted option ranges.
const (
	MinReplyTimeout = 10 * time.Microsecond
	MaxReplyTimeout = 5 * time.Second

	MaxTurnaroundDelay = 10 * time.Millisecond

	MinPollInterval = 1 * time.Microsecond
	MaxPollInterval = 10 * time.Millisecond
)

// DriverOption configures a Driver.
type DriverOption interface {
	apply(*Driver) error
}

type driverOptFunc func(*Driver) error

func (f driverOptFunc) apply(d *Driver) error {
	return f(d)
}

// WithReplyTimeout sets how long AwaitReply waits for the 8 reply bytes.
// Host serial adapters usually need a few milliseconds.
func WithReplyTimeout(timeout time.Duration) DriverOption {
	return driverOptFunc(func(d *Driver) error {
		if timeout < MinReplyTimeout || timeout > MaxReplyTimeout {
			return fmt.Errorf("tmc2209: reply timeout %s out of range [%s, %s]", timeout, MinReplyTimeout, MaxReplyTimeout)
		}
		d.replyTimeout = timeout
		return nil
	})
}

// WithTurnaroundDelay sets the pause between draining RX and listening for the reply.
func WithTurnaroundDelay(delay time.Duration) DriverOption {
	return driverOptFunc(func(d *Driver) error {
		if delay < 0 || delay > MaxTurnaroundDelay {
			return fmt.Errorf("tmc2209: turnaround delay %s out of range [0, %s]", delay, MaxTurnaroundDelay)
		}
		d.turnaround = delay
		return nil
	})
}

// WithPollInterval sets the delay between two checks for reply bytes.
func WithPollInterval(interval time.Duration) DriverOption {
	return driverOptFunc(func(d *Driver) error {
		if interval < MinPollInterval || interval > MaxPollInterval {
			return fmt.Errorf("tmc2209: poll interval %s out of range [%s, %s]", interval, MinPollInterval, MaxPollInterval)
		}
		d.pollInterval = interval
		return nil
	})
}

// WithLogger sets the logger used for exchange traces.
func WithLogger(l logger.Logger) DriverOption {
	return driverOptFunc(func(d *Driver) error {
		if l == nil {
			return fmt.Errorf("tmc2209: logger is nil")
		}
		d.logger = l
		return nil
	})
}
