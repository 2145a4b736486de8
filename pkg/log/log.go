package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It discards everything until Init.
var Logger zerolog.Logger

// Level is a log level name as accepted on the command line
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	// Output defaults to stdout
	Output io.Writer
}

// Init sets the global level and replaces Logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(levels[ParseLevel(string(cfg.Level))])
	Logger = New(cfg)
}

// New builds a timestamped logger writing JSON or console lines
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a flag value onto a Level, defaulting to info
func ParseLevel(s string) Level {
	if _, ok := levels[Level(s)]; ok {
		return Level(s)
	}
	return InfoLevel
}

func with(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}

// WithComponent tags a child logger with the owning component
func WithComponent(component string) zerolog.Logger { return with("component", component) }

// WithCollector tags a child logger with a collector name
func WithCollector(name string) zerolog.Logger { return with("collector", name) }

// WithAuditID tags a child logger with an audit id
func WithAuditID(auditID string) zerolog.Logger { return with("audit_id", auditID) }

// WithStrategy tags a child logger with a strategy name
func WithStrategy(name string) zerolog.Logger { return with("strategy", name) }

// WithEndpoint tags a child logger with a notification endpoint name
func WithEndpoint(name string) zerolog.Logger { return with("endpoint", name) }
