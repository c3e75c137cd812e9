package tmc2209

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/mbalug7/go-tmc2209/pkg/crc"
	"github.com/mbalug7/go-tmc2209/pkg/hal"
)

const (
	// Sync starts every datagram, in both directions.
	Sync byte = 0x05
	// MasterAddress is the serial address carried by every reply.
	MasterAddress byte = 0xFF
	// MaxBusAddress is the highest address selectable with the MS1/MS2 pins.
	MaxBusAddress uint8 = 3
)

// Failure sentinels. A failed read yields FailedValue, a reply that never arrived FailedReply.
const (
	FailedValue uint32 = math.MaxUint32
	FailedReply uint64 = math.MaxUint64
)

const (
	writeDatagramLength   = 8
	requestDatagramLength = 4
	replyDatagramLength   = 8
)

// Datagrams are little endian words, byte 0 goes on the wire first:
//
//	write:    [sync][address][reg|0x80][data MSB .. data LSB][crc]
//	request:  [sync][address][reg][crc]
//	reply:    [sync][0xFF][reg][data MSB .. data LSB][crc]
const (
	addressShift  = 8
	registerShift = 16
	dataShift     = 24
	writeCRCShift = 56
	readCRCShift  = 24
)

// ReverseBytes swaps the byte order of a 32 bit value. Register values are stored
// natively and carried most significant byte first inside datagrams.
func ReverseBytes(value uint32) uint32 {
	return bits.ReverseBytes32(value)
}

// EncodeWrite builds the datagram writing value to reg on the driver at address.
func EncodeWrite(address uint8, reg hal.RegAddress, value uint32) uint64 {
	field := reg.ForWrite().ToByte()
	data := ReverseBytes(value)
	checksum := crc.WordCRC(data, crc.ByteCRC(field, crc.StartSeed(address)))

	return uint64(Sync) |
		uint64(address)<<addressShift |
		uint64(field)<<registerShift |
		uint64(data)<<dataShift |
		uint64(checksum)<<writeCRCShift
}

// EncodeRequest builds the datagram asking the driver at address for the content of reg.
func EncodeRequest(address uint8, reg hal.RegAddress) uint32 {
	field := reg.Plain().ToByte()
	checksum := crc.ByteCRC(field, crc.StartSeed(address))

	return uint32(Sync) |
		uint32(address)<<addressShift |
		uint32(field)<<registerShift |
		uint32(checksum)<<readCRCShift
}

// EncodeResponse builds the reply a driver sends for reg holding value.
func EncodeResponse(reg hal.RegAddress, value uint32) uint64 {
	field := reg.Plain().ToByte()
	data := ReverseBytes(value)
	checksum := crc.WordCRC(data, crc.ByteCRC(field, crc.ResponseSeed))

	return uint64(Sync) |
		uint64(MasterAddress)<<addressShift |
		uint64(field)<<registerShift |
		uint64(data)<<dataShift |
		uint64(checksum)<<writeCRCShift
}

// DecodeResponse validates a raw reply and returns the register value.
//
// FailedReply is passed through as ErrReplyTimeout without touching the CRC. Every failure
// returns FailedValue as well, so callers relying on the sentinel keep working.
func DecodeResponse(raw uint64) (uint32, error) {
	if raw == FailedReply {
		return FailedValue, ErrReplyTimeout
	}
	field := uint8(raw >> registerShift)
	data := uint32(raw >> dataShift)
	received := uint8(raw >> writeCRCShift)

	calculated := crc.WordCRC(data, crc.ByteCRC(field, crc.ResponseSeed))
	if received != calculated {
		return FailedValue, fmt.Errorf("%w: register %s, received 0x%02X, calculated 0x%02X",
			ErrCRCMismatch, hal.RegAddress(field), received, calculated)
	}
	return ReverseBytes(data), nil
}

// ResponseData is DecodeResponse collapsed to the sentinel convention.
func ResponseData(raw uint64) uint32 {
	value, err := DecodeResponse(raw)
	if err != nil {
		return FailedValue
	}
	return value
}

// ResponseRegister returns the register echoed in a raw reply.
func ResponseRegister(raw uint64) hal.RegAddress {
	return hal.RegAddress(uint8(raw >> registerShift))
}
