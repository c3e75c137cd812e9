package hal

import "fmt"

// RegAddress is the 7 bit register address of a driver register.
type RegAddress uint8

// WriteFlag is set in the register field of datagrams that write a register.
const WriteFlag RegAddress = 0x80

func (obj RegAddress) ToByte() byte {
	return byte(obj)
}

// ForWrite returns the register field used in write datagrams.
func (obj RegAddress) ForWrite() RegAddress {
	return obj | WriteFlag
}

// Plain strips the write flag.
func (obj RegAddress) Plain() RegAddress {
	return obj &^ WriteFlag
}

func (obj RegAddress) String() string {
	return fmt.Sprintf("0x%02X", uint8(obj))
}

// Access describes which directions a register supports.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

func (obj Access) CanRead() bool {
	return obj&AccessRead != 0
}

func (obj Access) CanWrite() bool {
	return obj&AccessWrite != 0
}

func (obj Access) String() string {
	switch obj {
	case AccessRead:
		return "R"
	case AccessWrite:
		return "W"
	case AccessReadWrite:
		return "RW"
	}
	return "-"
}
