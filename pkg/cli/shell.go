// Package cli is the interactive register shell for one TMC2209 on a serial line.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
	"github.com/mbalug7/go-tmc2209/pkg/tmc2209"
)

const (
	shellKey = "$shell"

	// DefaultCommandTimeout bounds one shell command, USB adapters add milliseconds of latency.
	DefaultCommandTimeout = time.Second
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Module *tmc2209.Module
}

var commands = []*ishell.Cmd{
	&ReadCmd,
	&WriteCmd,
	&PingCmd,
	&DefaultsCmd,
	&RegsCmd,
	&ShadowCmd,
}

// New creates a shell bound to module.
func New(module *tmc2209.Module, interactive bool) *Shell {
	s := &Shell{
		Interactive: interactive,
		Timeout:     DefaultCommandTimeout,
		Shell:       ishell.New(),
		Module:      module,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(fmt.Sprintf("tmc2209[%d] > ", module.BusAddress()))
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Run processes args as one command, or starts the interactive loop.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return fmt.Errorf("command expected")
	}
	s.Shell.Run()
	return nil
}

func (s *Shell) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.Timeout)
}

func withModule(fn func(ctx context.Context, m *tmc2209.Module, args []string) (string, error)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		ctx, cancel := s.context()
		defer cancel()
		out, err := fn(ctx, s.Module, c.Args)
		if err != nil {
			c.Err(err)
			return
		}
		if out != "" {
			c.Println(out)
		}
	}
}

var (
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "REG",
		Func:    withModule(readRegister),
	}

	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "REG VALUE",
		Func:    withModule(writeRegister),
	}

	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "probe the driver by reading IOIN",
		Func: withModule(ping),
	}

	DefaultsCmd = ishell.Cmd{
		Name: "defaults",
		Help: "write the power-up configuration",
		Func: withModule(func(ctx context.Context, m *tmc2209.Module, _ []string) (string, error) {
			if err := m.SetupDefaults(ctx); err != nil {
				return "", err
			}
			return m.GetModuleConfiguration(), nil
		}),
	}

	RegsCmd = ishell.Cmd{
		Name: "regs",
		Help: "list known registers",
		Func: func(c *ishell.Context) {
			c.Println(registerTable())
		},
	}

	ShadowCmd = ishell.Cmd{
		Name: "shadow",
		Help: "print the last known register values",
		Func: func(c *ishell.Context) {
			c.Println(ShellFrom(c).Module.GetModuleConfiguration())
		},
	}
)

func readRegister(ctx context.Context, m *tmc2209.Module, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: read REG")
	}
	reg, err := tmc2209.LookupRegister(args[0])
	if err != nil {
		return "", err
	}
	value, err := m.Read(ctx, reg)
	if err != nil {
		return "", err
	}
	return formatValue(reg, value), nil
}

func writeRegister(ctx context.Context, m *tmc2209.Module, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("usage: write REG VALUE")
	}
	reg, err := tmc2209.LookupRegister(args[0])
	if err != nil {
		return "", err
	}
	value, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return "", fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	if err := m.Write(ctx, reg, uint32(value)); err != nil {
		return "", err
	}
	return formatValue(reg, uint32(value)), nil
}

func ping(ctx context.Context, m *tmc2209.Module, _ []string) (string, error) {
	if !m.Available(ctx) {
		return "", fmt.Errorf("no reply from address %d", m.BusAddress())
	}
	return fmt.Sprintf("address %d is alive", m.BusAddress()), nil
}

func formatValue(reg hal.RegAddress, value uint32) string {
	return fmt.Sprintf("%s [%s] 0x%08X (%d)", tmc2209.RegisterName(reg), reg, value, value)
}

func registerTable() string {
	var b strings.Builder
	for _, reg := range tmc2209.Registers() {
		access, _ := tmc2209.RegisterAccess(reg)
		fmt.Fprintf(&b, "%s %-12s %s\n", reg, tmc2209.RegisterName(reg), access)
	}
	return strings.TrimRight(b.String(), "\n")
}
