package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mbalug7/go-tmc2209/pkg/cli"
	"github.com/mbalug7/go-tmc2209/pkg/common"
	"github.com/mbalug7/go-tmc2209/pkg/logger"
	"github.com/mbalug7/go-tmc2209/pkg/telemetry"
	"github.com/mbalug7/go-tmc2209/pkg/tmc2209"
)

var (
	portName     = "/dev/ttyS0"
	baud         = common.DefaultBaud
	busAddress   uint
	logLevel     = "info"
	mqttURL      string
	mqttQoS      uint
	noEcho       bool
	pollInterval = telemetry.DefaultPollInterval
	replyTimeout = 20 * time.Millisecond
	evalOnly     bool
)

func init() {
	if val := os.Getenv("TMC_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&portName, "port", portName, "Serial port the UART line is wired to.")
	flag.IntVar(&baud, "baud", baud, "Serial baud rate.")
	flag.UintVar(&busAddress, "addr", busAddress, "Driver bus address, 0-3 (MS1/MS2 pins).")
	flag.StringVar(&logLevel, "log-level", logLevel, "Log level: debug, info, warn, error.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, registers are polled and published when set.")
	flag.UintVar(&mqttQoS, "mqtt-qos", mqttQoS, "MQTT quality of service, 0-2.")
	flag.BoolVar(&noEcho, "no-echo", noEcho, "TX and RX are separate lines, written bytes are not received back.")
	flag.DurationVar(&pollInterval, "poll", pollInterval, "Telemetry poll interval.")
	flag.DurationVar(&replyTimeout, "reply-timeout", replyTimeout, "How long to wait for a read reply.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

func main() {
	flag.Parse()
	logger.SetLevel(logger.ParseLevel(logLevel))
	if err := run(logger.GetLogger()); err != nil {
		logger.GetLogger().Fatal("tmc2209 shell failed", "error", err)
	}
}

// parseBusAddress checks the -addr flag before it is narrowed to a byte.
func parseBusAddress(addr uint) (uint8, error) {
	if addr > uint(tmc2209.MaxBusAddress) {
		return 0, fmt.Errorf("%w: %d", tmc2209.ErrInvalidAddress, addr)
	}
	return uint8(addr), nil
}

func run(log logger.Logger) error {
	address, err := parseBusAddress(busAddress)
	if err != nil {
		return err
	}
	if mqttQoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", mqttQoS)
	}

	ch, err := common.NewSerialChannel(common.SerialConfig{Name: portName, Baud: baud, NoEcho: noEcho})
	if err != nil {
		return err
	}
	defer func() {
		if err := ch.Close(); err != nil {
			log.Error("failed to close serial port", "error", err)
		}
	}()

	driver, err := tmc2209.NewDriver(tmc2209.WithReplyTimeout(replyTimeout), tmc2209.WithLogger(log))
	if err != nil {
		return err
	}
	module, err := tmc2209.NewModule(ch, address, tmc2209.WithDriver(driver))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if mqttURL != "" {
		pub, err := telemetry.NewMQTTPublisher(mqttURL, log, telemetry.WithQoS(byte(mqttQoS)))
		if err != nil {
			return err
		}
		defer pub.Close()
		poller, err := telemetry.NewPoller(module, pub, telemetry.WithInterval(pollInterval), telemetry.WithPollerLogger(log))
		if err != nil {
			return err
		}

		// the poller must be done with the channel before it is closed
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
		defer wg.Wait()
		defer cancel()
	}

	return cli.New(module, !evalOnly).Run(flag.Args()...)
}
