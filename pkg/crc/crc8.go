// Package crc implements the CRC-8 used by the TMC2209 single-wire UART interface.
//
// The polynomial is 0x07. Input bytes are consumed least significant bit first while the
// checksum register shifts left, so the result equals a plain CRC-8 over bit-reversed bytes.
package crc

import "github.com/sigurn/crc8"

// UART is the CRC-8 parameter set of the datagram checksum.
var UART = crc8.Params{Poly: 0x07, Init: 0x00, RefIn: true, RefOut: false, XorOut: 0x00, Name: "CRC-8/TMC-UART"}

var table = crc8.MakeTable(UART)

// Start seeds for bus addresses 0-3. Each one is the CRC of the sync byte followed by the
// serial address, so a datagram checksum can start at the register byte.
const (
	SeedAddress0 uint8 = 0x18
	SeedAddress1 uint8 = 0x91
	SeedAddress2 uint8 = 0xDF
	SeedAddress3 uint8 = 0x56
)

// ResponseSeed is the CRC of the sync byte followed by the master address 0xFF.
// Replies always carry the master address, so validation never depends on the bus address.
const ResponseSeed uint8 = 0xEB

// ByteCRC pushes one byte through the CRC register starting from seed.
func ByteCRC(b uint8, seed uint8) uint8 {
	return crc8.Update(seed, []byte{b}, table)
}

// WordCRC folds the four bytes of value, least significant first.
func WordCRC(value uint32, seed uint8) uint8 {
	for i := 0; i < 4; i++ {
		seed = ByteCRC(uint8(value&0xFF), seed)
		value >>= 8
	}
	return seed
}

// StartSeed returns the CRC seed for a bus address. Addresses outside 0-3 get 0,
// callers are expected to validate the address before building datagrams.
func StartSeed(address uint8) uint8 {
	switch address {
	case 0:
		return SeedAddress0
	case 1:
		return SeedAddress1
	case 2:
		return SeedAddress2
	case 3:
		return SeedAddress3
	}
	return 0
}

// Checksum folds data in order starting from seed.
func Checksum(seed uint8, data ...byte) uint8 {
	return crc8.Update(seed, data, table)
}
