package hal

import "context"

// Module interface defines set of methods that are needed to communicate with one driver on the bus
type Module interface {
	Write(ctx context.Context, reg RegAddress, value uint32) error
	Read(ctx context.Context, reg RegAddress) (uint32, error)
	Available(ctx context.Context) bool
	BusAddress() uint8
	GetModuleConfiguration() string
}
