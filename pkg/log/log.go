// Package log provides structured logging for Citadel using zerolog.
//
// Every logging component (master, allocator, hook) gets a component-scoped
// zerolog.Logger via WithComponent, so log lines can be filtered by
// component in aggregation without string parsing.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, set by Init.
var Logger zerolog.Logger

// Level is a logging severity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls global logger construction.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Must be called before any other
// package in Citadel logs, typically from cmd/citadeld's main().
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger scoped to a component name, e.g.
// "master", "allocator", "registry".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithFramework creates a child logger scoped to a framework ID.
func WithFramework(id string) zerolog.Logger {
	return Logger.With().Str("framework_id", id).Logger()
}

// WithSlave creates a child logger scoped to a slave ID.
func WithSlave(id string) zerolog.Logger {
	return Logger.With().Str("slave_id", id).Logger()
}

// WithTask creates a child logger scoped to a task ID.
func WithTask(id string) zerolog.Logger {
	return Logger.With().Str("task_id", id).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }

func init() {
	// Sensible default so early startup and tests don't log to a nil logger.
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
