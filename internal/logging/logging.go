// Package logging provides scoped loggers for audiograph packages.
package logging

import (
	"github.com/pion/logging"
)

var factory logging.LoggerFactory = logging.NewDefaultLoggerFactory()

// SetLoggerFactory replaces the factory used for all subsequently created
// loggers. Call it before constructing any engine components.
func SetLoggerFactory(f logging.LoggerFactory) {
	if f != nil {
		factory = f
	}
}

// NewLogger returns a leveled logger for the given scope.
func NewLogger(scope string) logging.LeveledLogger {
	return factory.NewLogger(scope)
}
