// Package logger fans structured key/value log calls out to one or more backends.
// Calls made before Init are dropped.
package logger

import "sync/atomic"

// Backend is implemented by every log sink.
type Backend interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type fanout struct {
	backends []Backend
}

var current atomic.Pointer[fanout]

// Init installs the process-wide backends, replacing any previous set.
func Init(backends ...Backend) {
	current.Store(&fanout{backends: backends})
}

func each(fn func(Backend)) {
	f := current.Load()
	if f == nil {
		return
	}
	for _, b := range f.backends {
		fn(b)
	}
}

func Debug(message string, keyvals ...any) {
	each(func(b Backend) { b.Debug(message, keyvals...) })
}

func Info(message string, keyvals ...any) {
	each(func(b Backend) { b.Info(message, keyvals...) })
}

func Warn(message string, keyvals ...any) {
	each(func(b Backend) { b.Warn(message, keyvals...) })
}

func Error(message string, keyvals ...any) {
	each(func(b Backend) { b.Error(message, keyvals...) })
}

// Fatal logs and terminates the process through the first backend that exits.
func Fatal(message string, keyvals ...any) {
	each(func(b Backend) { b.Fatal(message, keyvals...) })
}
