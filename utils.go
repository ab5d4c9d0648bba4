// Package main - utils.go
//
// Small helpers shared by the command, tray, overlay and replay code.
//
// Components:
//   - stopwatch: times one operation and logs it at debug level as key/values
//   - FormatDuration: "2h 3m 4s" style uptimes for the tray and overlay
//   - SafeGo: starts a named goroutine that logs instead of crashing on panic
//
// Every long-running goroutine in package main goes through SafeGo; the
// control loop recovers its own panics per tick.
package main

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gamepilot/internal/botlog"
)

// stopwatch returns a function that reports the time since the call to
// stopwatch and logs it under op.
func stopwatch(l *log.Logger, op string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		took := time.Since(start)
		l.Debug("timed", "op", op, "ms", float64(took.Microseconds())/1000)
		return took
	}
}

// FormatDuration renders d rounded down to whole seconds, leading zero units
// omitted. Negative durations read as "0s".
func FormatDuration(d time.Duration) string {
	secs := int64(max(d, 0) / time.Second)
	units := []struct {
		n      int64
		suffix string
	}{
		{secs / 3600, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}

	var parts []string
	for i, u := range units {
		if len(parts) == 0 && u.n == 0 && i < len(units)-1 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
	}
	return strings.Join(parts, " ")
}

// SafeGo runs fn on its own goroutine. A panic is logged with the goroutine
// name and stack and then swallowed.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				botlog.Logger().Error("goroutine panicked", "name", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
