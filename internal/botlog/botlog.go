// Package botlog implements the process-wide logger.
//
// Logging System:
//   - Writes to a log file (default Debug.log) truncated on each startup
//   - Four levels: DEBUG, INFO, WARN, ERROR
//   - Microsecond timestamps for latency analysis
//   - Every line is also kept in an in-memory ring (last 1000) for the
//     control API's /logs endpoint
//   - Components get prefixed child loggers via Named
//
// Level guide:
//   - DEBUG: per-tick detail (timings, decoded state, decisions)
//   - INFO: lifecycle events (start, pause, stop, config changes)
//   - WARN: degraded operation (capture lost, repeated tick failures)
//   - ERROR: failures that stop a run (initialization)
package botlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"gamepilot/internal/game"
)

// RingSize is the number of lines kept in memory.
const RingSize = 1000

const timeFormat = "2006/01/02 15:04:05.000000"

var (
	mu   sync.RWMutex
	root = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, TimeFormat: timeFormat})
	file *os.File
	ring = NewRing(RingSize)
)

// Init points the global logger at path (truncated) plus the in-memory ring.
// An empty path logs to stderr only.
//
// Parameters:
//   - path: log file path, "" for stderr
//   - level: "debug", "info", "warn" or "error"
func Init(path, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("botlog: parse level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	var f *os.File
	if path != "" {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
		if err != nil {
			return fmt.Errorf("botlog: open %s: %w", path, err)
		}
		out = f
	}

	logger := log.NewWithOptions(io.MultiWriter(out, ring), log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           lvl,
	})

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	root = logger
	mu.Unlock()

	Info("Logger initialized (level %s, file %q)", lvl, path)
	return nil
}

// Close closes the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		root.Info("Logger closing")
		file.Close()
		file = nil
		root = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, TimeFormat: timeFormat})
	}
}

// Logger returns the current global logger.
func Logger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a child logger tagged with prefix.
func Named(prefix string) *log.Logger {
	return Logger().WithPrefix(prefix)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Recent returns the newest n buffered lines, oldest first.
func Recent(n int) []Entry {
	return ring.Last(n)
}

// Debug logs debug level messages
func Debug(format string, v ...interface{}) {
	Logger().Debugf(format, v...)
}

// Info logs info level messages
func Info(format string, v ...interface{}) {
	Logger().Infof(format, v...)
}

// Warn logs warning level messages
func Warn(format string, v ...interface{}) {
	Logger().Warnf(format, v...)
}

// Error logs error level messages
func Error(format string, v ...interface{}) {
	Logger().Errorf(format, v...)
}

// Decision logs one tick's decoded screen and chosen actions at debug level.
func Decision(l *log.Logger, state *game.GameState, actions []game.Action) {
	health := -1.0
	if state.Player != nil {
		health = state.Player.Health
	}
	l.Debug("decision",
		"screen", state.Screen,
		"health", health,
		"enemies", len(state.Enemies),
		"actions", game.Describe(actions))
}
