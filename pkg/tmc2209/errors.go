package tmc2209

import "errors"

var (
	// ErrChannelAbsent is returned by reads issued without a channel. Writes without a
	// channel are silently skipped.
	ErrChannelAbsent = errors.New("tmc2209: no serial channel")
	// ErrReplyTimeout means fewer than 8 reply bytes arrived within the reply timeout.
	ErrReplyTimeout = errors.New("tmc2209: reply timeout")
	// ErrCRCMismatch means the reply checksum did not match its content.
	ErrCRCMismatch = errors.New("tmc2209: reply CRC mismatch")
	// ErrRegisterMismatch means a valid reply echoed a different register than requested.
	ErrRegisterMismatch = errors.New("tmc2209: reply for unexpected register")

	ErrInvalidAddress  = errors.New("tmc2209: bus address out of range [0, 3]")
	ErrUnknownRegister = errors.New("tmc2209: unknown register")
	ErrNotWritable     = errors.New("tmc2209: register is read only")
	ErrNotReadable     = errors.New("tmc2209: register is write only")
	ErrNoShadowValue   = errors.New("tmc2209: no shadow value for register")
	ErrConfigUnchanged = errors.New("tmc2209: staged configuration equals current configuration")
)
