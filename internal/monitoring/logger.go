// Package monitoring holds the diagnostic logger used by loop drivers to
// report planner fallbacks and controller failsafe transitions. The flight
// components themselves never log; they expose counters and reports.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// can be redirected or muted with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Event is a structured record of a condition worth reporting upstream.
type Event struct {
	Source string
	Kind   string
	Time   float64
	Detail string
}

// Emit formats ev through Logf.
func Emit(ev Event) {
	Logf("[%s] t=%.3f %s: %s", ev.Source, ev.Time, ev.Kind, ev.Detail)
}
