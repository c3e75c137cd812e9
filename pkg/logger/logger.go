// Package logger is the structured logging facade used by the driver packages.
//
// Drivers, modules and the telemetry poller take a Logger through their options and fall
// back to the package default, a log/slog backed logger writing JSON to stdout.
// With ENV=development the default switches to a colored console handler.
package logger

// Level is a logging severity.
type Level = int8

const (
	// DebugLevel is used for per-exchange protocol traces.
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
	// FatalLevel logs then exits the process.
	FatalLevel
)

// Logger is a leveled, key/value structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs at error severity and calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With returns a child logger carrying the given key/values.
	With(keysAndValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}

// ParseLevel maps a level name to a Level, unknown names map to InfoLevel.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	}
	return InfoLevel
}
