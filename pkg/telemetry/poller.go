package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
	"github.com/mbalug7/go-tmc2209/pkg/logger"
	"github.com/mbalug7/go-tmc2209/pkg/tmc2209"
)

const DefaultPollInterval = time.Second

// Sample is the JSON payload of one register reading.
type Sample struct {
	BusAddress uint8     `json:"bus_address"`
	Register   string    `json:"register"`
	Address    string    `json:"address"`
	Value      uint32    `json:"value"`
	Hex        string    `json:"hex"`
	Time       time.Time `json:"ts"`
}

// Poller periodically reads registers of one module and publishes them.
type Poller struct {
	module    hal.Module
	regs      []hal.RegAddress
	interval  time.Duration
	publisher Publisher
	logger    logger.Logger
	now       func() time.Time
}

type PollerOption func(*Poller) error

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("telemetry: poll interval must be positive, got %s", d)
		}
		p.interval = d
		return nil
	}
}

// WithRegisters sets the registers polled, IOIN and DRV_STATUS by default.
func WithRegisters(regs ...hal.RegAddress) PollerOption {
	return func(p *Poller) error {
		for _, reg := range regs {
			access, err := tmc2209.RegisterAccess(reg)
			if err != nil {
				return err
			}
			if !access.CanRead() {
				return fmt.Errorf("%w: %s", tmc2209.ErrNotReadable, tmc2209.RegisterName(reg))
			}
		}
		p.regs = regs
		return nil
	}
}

func WithPollerLogger(l logger.Logger) PollerOption {
	return func(p *Poller) error {
		if l == nil {
			return fmt.Errorf("telemetry: logger is nil")
		}
		p.logger = l
		return nil
	}
}

func NewPoller(module hal.Module, publisher Publisher, opts ...PollerOption) (*Poller, error) {
	if module == nil || publisher == nil {
		return nil, fmt.Errorf("telemetry: module and publisher are required")
	}
	p := &Poller{
		module:    module,
		publisher: publisher,
		regs:      []hal.RegAddress{tmc2209.IOIN, tmc2209.DRV_STATUS},
		interval:  DefaultPollInterval,
		logger:    logger.GetLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("bus_address", module.BusAddress())
	return p, nil
}

// Run polls until ctx is done. Failed reads and publishes are logged and skipped.
func (obj *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(obj.interval)
	defer ticker.Stop()
	for {
		obj.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce reads every register once and returns how many samples were published.
func (obj *Poller) PollOnce(ctx context.Context) int {
	published := 0
	for _, reg := range obj.regs {
		if ctx.Err() != nil {
			return published
		}
		name := tmc2209.RegisterName(reg)
		value, err := obj.module.Read(ctx, reg)
		if err != nil {
			obj.logger.Warn("register poll failed", "reg", name, "error", err)
			continue
		}
		payload, err := json.Marshal(Sample{
			BusAddress: obj.module.BusAddress(),
			Register:   name,
			Address:    reg.String(),
			Value:      value,
			Hex:        fmt.Sprintf("0x%08X", value),
			Time:       obj.now().UTC(),
		})
		if err != nil {
			obj.logger.Error("failed to encode sample", "reg", name, "error", err)
			continue
		}
		if err := obj.publisher.Publish(ctx, Topic(obj.module.BusAddress(), reg), payload); err != nil {
			obj.logger.Warn("publish failed", "reg", name, "error", err)
			continue
		}
		published++
	}
	return published
}

// Topic is <bus address>/<register name>, relative to the publisher prefix.
func Topic(address uint8, reg hal.RegAddress) string {
	return fmt.Sprintf("%d/%s", address, tmc2209.RegisterName(reg))
}
