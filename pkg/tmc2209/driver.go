package tmc2209

import (
	"context"
	"fmt"
	"time"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
	"github.com/mbalug7/go-tmc2209/pkg/logger"
)

// ExchangeState is the phase of one request/reply exchange.
type ExchangeState int

const (
	StateIdle ExchangeState = iota
	StateSending
	StateDraining
	StateWaiting
	StateComplete
	StateTimedOut
)

var exchangeStateNames = [...]string{"IDLE", "SENDING", "DRAINING", "WAITING", "COMPLETE", "TIMED_OUT"}

func (s ExchangeState) String() string {
	if s < 0 || int(s) >= len(exchangeStateNames) {
		return fmt.Sprintf("ExchangeState(%d)", int(s))
	}
	return exchangeStateNames[s]
}

// Driver sequences datagrams over a channel supplied on every call.
//
// A Driver keeps no per-exchange state and never owns a channel, one Driver can serve any
// number of buses. It does not serialize exchanges: callers sharing a channel between
// goroutines must hold a lock around the full request and reply, see Module.
type Driver struct {
	replyTimeout time.Duration
	turnaround   time.Duration
	pollInterval time.Duration
	logger       logger.Logger
}

// NewDriver creates a Driver with default timing, adjusted by opts.
func NewDriver(opts ...DriverOption) (*Driver, error) {
	d := &Driver{
		replyTimeout: DefaultReplyTimeout,
		turnaround:   DefaultTurnaroundDelay,
		pollInterval: DefaultPollInterval,
		logger:       logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// withLogger returns a copy of d that traces through l.
func (d *Driver) withLogger(l logger.Logger) *Driver {
	cp := *d
	cp.logger = l
	return &cp
}

func (d *Driver) ReplyTimeout() time.Duration {
	return d.replyTimeout
}

func (d *Driver) TurnaroundDelay() time.Duration {
	return d.turnaround
}

func (d *Driver) PollInterval() time.Duration {
	return d.pollInterval
}

// Write sends a write datagram. It is a no-op when ch is nil.
func (d *Driver) Write(ch hal.Channel, address uint8, reg hal.RegAddress, value uint32) error {
	if ch == nil {
		d.logger.Debug("write skipped, no channel", "reg", RegisterName(reg))
		return nil
	}
	datagram := EncodeWrite(address, reg, value)
	if err := d.send(ch, datagram, writeDatagramLength); err != nil {
		return fmt.Errorf("failed to write %s: %w", RegisterName(reg), err)
	}
	d.logger.Debug("register written", "address", address, "reg", RegisterName(reg), "value", fmt.Sprintf("0x%08X", value))
	return nil
}

// Request sends a read request datagram. It is a no-op when ch is nil.
func (d *Driver) Request(ch hal.Channel, address uint8, reg hal.RegAddress) error {
	if ch == nil {
		d.logger.Debug("request skipped, no channel", "reg", RegisterName(reg))
		return nil
	}
	datagram := EncodeRequest(address, reg)
	if err := d.send(ch, uint64(datagram), requestDatagramLength); err != nil {
		return fmt.Errorf("failed to request %s: %w", RegisterName(reg), err)
	}
	return nil
}

// send waits for pending TX then emits length bytes of datagram, least significant first.
func (d *Driver) send(ch hal.Channel, datagram uint64, length int) error {
	if err := ch.Flush(); err != nil {
		return fmt.Errorf("failed to flush channel: %w", err)
	}
	d.trace(StateSending)
	for i := 0; i < length; i++ {
		if err := ch.WriteByte(byte(datagram >> (8 * i))); err != nil {
			return fmt.Errorf("failed to send byte %d: %w", i, err)
		}
	}
	return nil
}

// AwaitReply collects the 8 byte reply to a request.
//
// Pending TX is flushed and stale RX, including the echo of the request on the shared wire,
// is discarded before the turnaround delay. The reply must then be complete within the
// reply timeout. On any failure FailedReply is returned with the error.
func (d *Driver) AwaitReply(ctx context.Context, ch hal.Channel) (uint64, error) {
	if ch == nil {
		return FailedReply, ErrChannelAbsent
	}
	if err := ch.Flush(); err != nil {
		return FailedReply, fmt.Errorf("failed to flush channel: %w", err)
	}

	d.trace(StateDraining)
	for ch.Available() > 0 {
		if _, err := ch.ReadByte(); err != nil {
			return FailedReply, fmt.Errorf("failed to drain stale byte: %w", err)
		}
	}
	ch.Delay(d.turnaround)

	d.trace(StateWaiting)
	deadline := time.Now().Add(d.replyTimeout)
	for ch.Available() < replyDatagramLength {
		if err := ctx.Err(); err != nil {
			return FailedReply, err
		}
		if !time.Now().Before(deadline) {
			d.trace(StateTimedOut)
			return FailedReply, ErrReplyTimeout
		}
		ch.Delay(d.pollInterval)
	}

	var reply uint64
	for i := 0; i < replyDatagramLength; i++ {
		b, err := ch.ReadByte()
		if err != nil {
			return FailedReply, fmt.Errorf("failed to read reply byte %d: %w", i, err)
		}
		reply |= uint64(b) << (8 * i)
	}
	d.trace(StateComplete)
	return reply, nil
}

// Read performs one request/reply exchange for reg. There is no retry.
// Every failure returns FailedValue together with the reason.
func (d *Driver) Read(ctx context.Context, ch hal.Channel, address uint8, reg hal.RegAddress) (uint32, error) {
	if ch == nil {
		return FailedValue, ErrChannelAbsent
	}
	if err := d.Request(ch, address, reg); err != nil {
		return FailedValue, err
	}
	raw, err := d.AwaitReply(ctx, ch)
	if err != nil {
		return FailedValue, fmt.Errorf("failed to read %s: %w", RegisterName(reg), err)
	}
	value, err := DecodeResponse(raw)
	if err != nil {
		return FailedValue, err
	}
	if echoed := ResponseRegister(raw); echoed != reg.Plain() {
		return FailedValue, fmt.Errorf("%w: requested %s, got %s", ErrRegisterMismatch, RegisterName(reg), RegisterName(echoed))
	}
	d.logger.Debug("register read", "address", address, "reg", RegisterName(reg), "value", fmt.Sprintf("0x%08X", value))
	return value, nil
}

func (d *Driver) trace(state ExchangeState) {
	d.logger.Debug("exchange", "state", state.String())
}
