package tmc2209

import (
	"context"
	"fmt"
	"sync"

	"github.com/mazen160/go-random"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
	"github.com/mbalug7/go-tmc2209/pkg/logger"
)

// Module is one TMC2209 on a serial line: the channel, its bus address and the register shadow.
type Module struct {
	ch      hal.Channel
	address uint8
	driver  *Driver
	shadow  *Shadow
	logger  logger.Logger
	mu      sync.Mutex // held for a full exchange, request and reply are never split
}

var _ hal.Module = (*Module)(nil)

// ModuleOption configures a Module.
type ModuleOption func(*Module) error

// WithDriver replaces the default Driver, e.g. to widen the reply timeout.
func WithDriver(d *Driver) ModuleOption {
	return func(m *Module) error {
		if d == nil {
			return fmt.Errorf("tmc2209: driver is nil")
		}
		m.driver = d
		return nil
	}
}

// WithShadow makes the module update a caller supplied shadow.
func WithShadow(s *Shadow) ModuleOption {
	return func(m *Module) error {
		if s == nil {
			return fmt.Errorf("tmc2209: shadow is nil")
		}
		m.shadow = s
		return nil
	}
}

func WithModuleLogger(l logger.Logger) ModuleOption {
	return func(m *Module) error {
		if l == nil {
			return fmt.Errorf("tmc2209: logger is nil")
		}
		m.logger = l
		return nil
	}
}

// NewModule creates a handler for the driver at address (0-3) on ch.
// The channel stays owned by the caller.
func NewModule(ch hal.Channel, address uint8, opts ...ModuleOption) (*Module, error) {
	if address > MaxBusAddress {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddress, address)
	}
	m := &Module{
		ch:      ch,
		address: address,
		shadow:  NewShadow(),
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("bus_address", address)
	if m.driver == nil {
		d, err := NewDriver(WithLogger(m.logger))
		if err != nil {
			return nil, err
		}
		m.driver = d
	}
	return m, nil
}

func (obj *Module) BusAddress() uint8 {
	return obj.address
}

func (obj *Module) Shadow() *Shadow {
	return obj.shadow
}

// Write writes value to reg and records it in the shadow.
func (obj *Module) Write(ctx context.Context, reg hal.RegAddress, value uint32) error {
	access, err := RegisterAccess(reg)
	if err != nil {
		return err
	}
	if !access.CanWrite() {
		return fmt.Errorf("%w: %s", ErrNotWritable, RegisterName(reg))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	if obj.ch == nil {
		obj.logger.Warn("no channel, write skipped", "reg", RegisterName(reg))
		return nil
	}
	log := obj.exchangeLogger()
	err = obj.driver.withLogger(log).Write(obj.ch, obj.address, reg, value)
	if err != nil {
		log.Debug("write failed", "reg", RegisterName(reg), "error", err)
		return err
	}
	obj.shadow.Store(reg, value)
	return nil
}

// Rewrite writes the shadowed value of reg again, e.g. after the driver lost power.
func (obj *Module) Rewrite(ctx context.Context, reg hal.RegAddress) error {
	value, ok := obj.shadow.Load(reg)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoShadowValue, RegisterName(reg))
	}
	return obj.Write(ctx, reg, value)
}

// Read reads reg. The shadow is only updated when the reply is valid.
// On failure FailedValue is returned with the reason.
func (obj *Module) Read(ctx context.Context, reg hal.RegAddress) (uint32, error) {
	access, err := RegisterAccess(reg)
	if err != nil {
		return FailedValue, err
	}
	if !access.CanRead() {
		return FailedValue, fmt.Errorf("%w: %s", ErrNotReadable, RegisterName(reg))
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	log := obj.exchangeLogger()
	value, err := obj.driver.withLogger(log).Read(ctx, obj.ch, obj.address, reg)
	if err != nil {
		log.Debug("read failed", "reg", RegisterName(reg), "error", err)
		return FailedValue, err
	}
	obj.shadow.Store(reg, value)
	return value, nil
}

// Available probes the driver by reading IOIN.
func (obj *Module) Available(ctx context.Context) bool {
	_, err := obj.Read(ctx, IOIN)
	return err == nil
}

// SetupDefaults writes the power-up configuration, stopping at the first failure.
func (obj *Module) SetupDefaults(ctx context.Context) error {
	for _, def := range defaultSequence {
		if err := obj.Write(ctx, def.reg, def.value); err != nil {
			return fmt.Errorf("failed to write default %s: %w", RegisterName(def.reg), err)
		}
	}
	obj.logger.Info("default configuration written")
	return nil
}

// GetModuleConfiguration returns the shadowed register values.
func (obj *Module) GetModuleConfiguration() string {
	return obj.shadow.String()
}

// exchangeLogger tags one exchange with a random id, every driver trace of it carries the id.
func (obj *Module) exchangeLogger() logger.Logger {
	id, err := random.String(8)
	if err != nil {
		return obj.logger
	}
	return obj.logger.With("exchange", id)
}
