// Package monitoring holds the process-wide diagnostic log sink.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
// Reclamation paths with no caller to return an error to (finalizers) report
// through it, so tests can capture or mute those warnings via SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
