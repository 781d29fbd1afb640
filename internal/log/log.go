// Package log holds the zerolog loggers shared by the builder, the chain
// backends, the UTxO index and the hose-pay command.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. The component loggers below derive from it
// and are rebuilt by Init.
var Logger zerolog.Logger

var (
	Builder   zerolog.Logger
	Backend   zerolog.Logger
	Evaluator zerolog.Logger
	Index     zerolog.Logger
	Cmd       zerolog.Logger
)

func init() {
	// Library callers get warnings only until they call Init.
	setRoot(NewConsoleLogger(os.Stderr, "warn"))
}

// Init replaces the root logger. jsonOutput selects line-delimited JSON
// instead of the console format.
func Init(level string, jsonOutput bool) {
	if jsonOutput {
		setRoot(NewJSONLogger(os.Stderr, level))
		return
	}
	setRoot(NewConsoleLogger(os.Stderr, level))
}

func setRoot(l zerolog.Logger) {
	Logger = l
	Builder = WithComponent("builder")
	Backend = WithComponent("backend")
	Evaluator = WithComponent("evaluator")
	Index = WithComponent("index")
	Cmd = WithComponent("cmd")
}

func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(ParseLevel(level)).
		With().Timestamp().Logger()
}

func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().Timestamp().Logger()
}

// ParseLevel reads a LOG_LEVEL value. "warning" and "off" are accepted as
// aliases; anything unknown is info.
func ParseLevel(level string) zerolog.Level {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "warning":
		return zerolog.WarnLevel
	case "off":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	default:
		l, err := zerolog.ParseLevel(name)
		if err != nil {
			return zerolog.InfoLevel
		}
		return l
	}
}

// WithComponent tags a child of the root logger.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// ForTx tags logger with a transaction hash.
func ForTx(logger zerolog.Logger, hash string) zerolog.Logger {
	return logger.With().Str("tx", hash).Logger()
}

// Timer starts timing op and returns the func that logs the elapsed time
// at debug level.
func Timer(logger zerolog.Logger, op string) func() {
	start := time.Now()
	return func() {
		logger.Debug().
			Str("op", op).
			Dur("elapsed", time.Since(start)).
			Msg("timing")
	}
}
