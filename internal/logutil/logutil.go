// Package logutil establishes the zap logger used module-wide.
package logutil

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.RWMutex
	current *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	current = l
}

// L returns the process-wide logger. Safe for concurrent use.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetLevel swaps the global logger for a development (debug-level) or
// production one, mainly used by cmd/cachectl to honour its -v flag.
func SetLevel(development bool) error {
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	mu.Lock()
	current = l
	mu.Unlock()
	return nil
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	_ = L().Sync()
}
