// Package klog provides the engine's internal diagnostic-logging seam.
//
// It is deliberately separate from the Recorder (internal/recorder): the
// Recorder is the structured, replayable system of record that the report is
// built from, while klog is operator-facing noise (connection retries,
// cache resets, rollback attempts) that a caller may or may not want to see.
// The default backend pairs go-logr/zapr with zap, the same pairing used for
// structured logging across the retrieved example pack.
package klog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds the default production logger: JSON output, info level.
func New() logr.Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewDevelopment builds a human-readable console logger, suitable for the CLI
// companion and for tests that want readable output.
func NewDevelopment() logr.Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// Discard returns a no-op logger. Used as the default when a caller does not
// supply one explicitly.
func Discard() logr.Logger {
	return logr.Discard()
}
