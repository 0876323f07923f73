package pluginloader

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// plog holds the package logger. Advisories about non-pure libraries,
// namespace collisions and refused unloads go through it, so the
// default is a visible stderr logger rather than a nop.
var plog atomic.Pointer[zerolog.Logger]

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	l := zerolog.New(os.Stderr).With().Timestamp().Str("component", "pluginloader").Logger()
	plog.Store(&l)
}

// SetLogger replaces the package logger. Loaders constructed afterwards
// inherit it unless overridden with WithLogger.
func SetLogger(l zerolog.Logger) {
	plog.Store(&l)
}

func logger() *zerolog.Logger {
	return plog.Load()
}
