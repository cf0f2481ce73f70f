// Package logging wires the engine's structured logging. It exists so every
// package constructs its logger the same way instead of each reaching for
// zap.NewNop()/zap.NewProduction() independently.
package logging

import "go.uber.org/zap"

// NewNop returns a logger that discards everything, used when a caller
// constructs an engine without supplying one explicitly.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// Named returns a child logger scoped to a component, falling back to a
// no-op logger if parent is nil so callers never need a nil check.
func Named(parent *zap.Logger, component string) *zap.Logger {
	if parent == nil {
		return NewNop()
	}
	return parent.Named(component)
}
