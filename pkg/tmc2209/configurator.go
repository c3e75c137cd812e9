package tmc2209

import (
	"context"
	"fmt"
	"sort"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
)

// ConfigBuilder stages register values on a copy of the module shadow.
// Only registers whose staged value differs from the shadow are written by Apply.
type ConfigBuilder struct {
	module          *Module
	stagedRegisters *Shadow
	touched         map[hal.RegAddress]struct{}
	err             error
}

// NewConfigBuilder constructs ConfigBuilder
func NewConfigBuilder(module *Module) *ConfigBuilder {
	return &ConfigBuilder{
		module:          module,
		stagedRegisters: module.shadow.Copy(), // copy current values
		touched:         make(map[hal.RegAddress]struct{}),
	}
}

// Set stages value for any writable register
func (obj *ConfigBuilder) Set(reg hal.RegAddress, value uint32) *ConfigBuilder {
	if obj.err != nil {
		return obj
	}
	access, err := RegisterAccess(reg)
	if err != nil {
		obj.err = err
		return obj
	}
	if !access.CanWrite() {
		obj.err = fmt.Errorf("%w: %s", ErrNotWritable, RegisterName(reg))
		return obj
	}
	obj.stagedRegisters.Store(reg, value)
	obj.touched[reg.Plain()] = struct{}{}
	return obj
}

// Defaults stages the power-up configuration
func (obj *ConfigBuilder) Defaults() *ConfigBuilder {
	for _, def := range defaultSequence {
		obj.Set(def.reg, def.value)
	}
	return obj
}

// GlobalConfig stages GCONF
func (obj *ConfigBuilder) GlobalConfig(value uint32) *ConfigBuilder {
	return obj.Set(GCONF, value)
}

// Currents stages IHOLD_IRUN
func (obj *ConfigBuilder) Currents(value uint32) *ConfigBuilder {
	return obj.Set(IHOLD_IRUN, value)
}

// PowerDownDelay stages TPOWERDOWN
func (obj *ConfigBuilder) PowerDownDelay(value uint32) *ConfigBuilder {
	return obj.Set(TPOWERDOWN, value)
}

// Chopper stages CHOPCONF
func (obj *ConfigBuilder) Chopper(value uint32) *ConfigBuilder {
	return obj.Set(CHOPCONF, value)
}

// StealthChop stages PWMCONF
func (obj *ConfigBuilder) StealthChop(value uint32) *ConfigBuilder {
	return obj.Set(PWMCONF, value)
}

// StealthChopThreshold stages TPWMTHRS
func (obj *ConfigBuilder) StealthChopThreshold(value uint32) *ConfigBuilder {
	return obj.Set(TPWMTHRS, value)
}

// CoolStepThreshold stages TCOOLTHRS
func (obj *ConfigBuilder) CoolStepThreshold(value uint32) *ConfigBuilder {
	return obj.Set(TCOOLTHRS, value)
}

// CoolStep stages COOLCONF
func (obj *ConfigBuilder) CoolStep(value uint32) *ConfigBuilder {
	return obj.Set(COOLCONF, value)
}

// StallThreshold stages SGTHRS
func (obj *ConfigBuilder) StallThreshold(value uint32) *ConfigBuilder {
	return obj.Set(SGTHRS, value)
}

// Pending returns staged registers that differ from the module shadow, in address order.
func (obj *ConfigBuilder) Pending() []hal.RegAddress {
	current := obj.module.shadow.Snapshot()
	var pending []hal.RegAddress
	for reg := range obj.touched {
		value, _ := obj.stagedRegisters.Load(reg)
		if v, ok := current[reg]; !ok || v != value {
			pending = append(pending, reg)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	return pending
}

// Apply writes the pending registers to the driver
func (obj *ConfigBuilder) Apply(ctx context.Context) error {
	if obj.err != nil {
		return obj.err
	}
	pending := obj.Pending()
	if len(pending) == 0 {
		return ErrConfigUnchanged
	}
	for _, reg := range pending {
		value, _ := obj.stagedRegisters.Load(reg)
		if err := obj.module.Write(ctx, reg, value); err != nil {
			return fmt.Errorf("failed to apply staged config: %w", err)
		}
	}
	return nil
}
