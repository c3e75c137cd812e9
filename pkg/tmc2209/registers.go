package tmc2209

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
)

// General configuration registers
const (
	GCONF        hal.RegAddress = 0x00
	GSTAT        hal.RegAddress = 0x01
	IFCNT        hal.RegAddress = 0x02
	SLAVECONF    hal.RegAddress = 0x03
	OTP_PROG     hal.RegAddress = 0x04
	OTP_READ     hal.RegAddress = 0x05
	IOIN         hal.RegAddress = 0x06
	FACTORY_CONF hal.RegAddress = 0x07
)

// Velocity dependent control
const (
	IHOLD_IRUN hal.RegAddress = 0x10
	TPOWERDOWN hal.RegAddress = 0x11
	TSTEP      hal.RegAddress = 0x12
	TPWMTHRS   hal.RegAddress = 0x13
	TCOOLTHRS  hal.RegAddress = 0x14
	VACTUAL    hal.RegAddress = 0x22
)

// StallGuard and CoolStep
const (
	SGTHRS    hal.RegAddress = 0x40
	SG_RESULT hal.RegAddress = 0x41
	COOLCONF  hal.RegAddress = 0x42
)

// Sequencer, chopper and driver status
const (
	MSCNT      hal.RegAddress = 0x6A
	MSCURACT   hal.RegAddress = 0x6B
	CHOPCONF   hal.RegAddress = 0x6C
	DRV_STATUS hal.RegAddress = 0x6F
	PWMCONF    hal.RegAddress = 0x70
	PWM_SCALE  hal.RegAddress = 0x71
	PWM_AUTO   hal.RegAddress = 0x72
)

type registerInfo struct {
	name   string
	access hal.Access
}

var registerTable = map[hal.RegAddress]registerInfo{
	GCONF:        {"GCONF", hal.AccessReadWrite},
	GSTAT:        {"GSTAT", hal.AccessReadWrite},
	IFCNT:        {"IFCNT", hal.AccessRead},
	SLAVECONF:    {"SLAVECONF", hal.AccessWrite},
	OTP_PROG:     {"OTP_PROG", hal.AccessWrite},
	OTP_READ:     {"OTP_READ", hal.AccessRead},
	IOIN:         {"IOIN", hal.AccessRead},
	FACTORY_CONF: {"FACTORY_CONF", hal.AccessReadWrite},
	IHOLD_IRUN:   {"IHOLD_IRUN", hal.AccessWrite},
	TPOWERDOWN:   {"TPOWERDOWN", hal.AccessWrite},
	TSTEP:        {"TSTEP", hal.AccessRead},
	TPWMTHRS:     {"TPWMTHRS", hal.AccessWrite},
	TCOOLTHRS:    {"TCOOLTHRS", hal.AccessWrite},
	VACTUAL:      {"VACTUAL", hal.AccessWrite},
	SGTHRS:       {"SGTHRS", hal.AccessWrite},
	SG_RESULT:    {"SG_RESULT", hal.AccessRead},
	COOLCONF:     {"COOLCONF", hal.AccessWrite},
	MSCNT:        {"MSCNT", hal.AccessRead},
	MSCURACT:     {"MSCURACT", hal.AccessRead},
	CHOPCONF:     {"CHOPCONF", hal.AccessReadWrite},
	DRV_STATUS:   {"DRV_STATUS", hal.AccessRead},
	PWMCONF:      {"PWMCONF", hal.AccessReadWrite},
	PWM_SCALE:    {"PWM_SCALE", hal.AccessRead},
	PWM_AUTO:     {"PWM_AUTO", hal.AccessRead},
}

// Power-up values written by SetupDefaults.
const (
	GCONF_DEFAULT      uint32 = 0x000001C0 // pdn_disable, mstep_reg_select, multistep_filt
	IHOLD_IRUN_DEFAULT uint32 = 0x00011F10 // IHOLD 16, IRUN 31, IHOLDDELAY 1
	CHOPCONF_DEFAULT   uint32 = 0x10000053
	PWMCONF_DEFAULT    uint32 = 0xC10D0024
	TPWMTHRS_DEFAULT   uint32 = 0
	TCOOLTHRS_DEFAULT  uint32 = 0
	COOLCONF_DEFAULT   uint32 = 0
	SGTHRS_DEFAULT     uint32 = 0
	TPOWERDOWN_DEFAULT uint32 = 20
)

type defaultValue struct {
	reg   hal.RegAddress
	value uint32
}

// write order matters: GCONF selects UART control of the microstep resolution
var defaultSequence = []defaultValue{
	{GCONF, GCONF_DEFAULT},
	{IHOLD_IRUN, IHOLD_IRUN_DEFAULT},
	{CHOPCONF, CHOPCONF_DEFAULT},
	{PWMCONF, PWMCONF_DEFAULT},
	{TPWMTHRS, TPWMTHRS_DEFAULT},
	{TCOOLTHRS, TCOOLTHRS_DEFAULT},
}

// RegisterName returns the datasheet name of reg, or its hex address when unknown.
func RegisterName(reg hal.RegAddress) string {
	if info, ok := registerTable[reg.Plain()]; ok {
		return info.name
	}
	return reg.Plain().String()
}

// RegisterAccess returns the access mode of a known register.
func RegisterAccess(reg hal.RegAddress) (hal.Access, error) {
	info, ok := registerTable[reg.Plain()]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRegister, reg.Plain())
	}
	return info.access, nil
}

// LookupRegister resolves a register by name (case insensitive) or by numeric address
// such as "0x6C" or "108".
func LookupRegister(name string) (hal.RegAddress, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for reg, info := range registerTable {
		if info.name == upper {
			return reg, nil
		}
	}
	if addr, err := strconv.ParseUint(strings.TrimSpace(name), 0, 8); err == nil && addr < 0x80 {
		if _, ok := registerTable[hal.RegAddress(addr)]; ok {
			return hal.RegAddress(addr), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
}

// Registers returns every known register sorted by address.
func Registers() []hal.RegAddress {
	regs := make([]hal.RegAddress, 0, len(registerTable))
	for reg := range registerTable {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}
