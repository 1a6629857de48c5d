package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var logger atomic.Pointer[logFunc]

func init() { SetLogger(log.Printf) }

// Logf is the package-level diagnostic logger used by the detector core. It
// defaults to log.Printf; SetLogger redirects or mutes it.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
// It is safe to call while other goroutines are logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	lf := logFunc(f)
	logger.Store(&lf)
}
