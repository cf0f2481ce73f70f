// Package engine is the module's public surface: it wires together a log
// store, an event hierarchy, and one string pool per text container behind
// a single handle, and exposes the wire-level Export/Import a replica uses
// to exchange history with its peers.
package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/event"
	"github.com/cshekharsharma/crdtcore/internal/logging"
	"github.com/cshekharsharma/crdtcore/oplog"
	"github.com/cshekharsharma/crdtcore/pool"
	"github.com/cshekharsharma/crdtcore/text"
)

// ContainerID names a text container within an Engine, matching the
// identifier text.Container.ID() returns and oplog routes ops by.
type ContainerID = string

// Engine is one replica's handle onto its documents: a log store tracking
// their shared causal history, and the event hierarchy their subscribers
// attach to.
type Engine struct {
	mu    sync.Mutex
	store *oplog.LogStore
	hier  *event.Hierarchy
	logr  *zap.Logger
}

// New constructs an Engine. With no options, it draws a random peer
// identity, logs nothing, and GCs on export with the default interval.
func New(opts ...Option) *Engine {
	cfg := newConfig(opts)
	logr := cfg.logger
	if logr == nil {
		logr = logging.NewNop()
	}
	return &Engine{
		store: oplog.New(cfg.peerID, cfg.clock, cfg.gc, logr),
		hier:  event.NewHierarchy(),
		logr:  logging.Named(logr, "engine"),
	}
}

// Close stops the event dispatch goroutine. Safe to call once; the Engine
// must not be used afterward.
func (e *Engine) Close() {
	e.hier.Close()
}

// Text returns the named text container, creating and registering it with
// a fresh string pool on first access. Safe to call concurrently; the same
// ID always yields the same *text.Container.
func (e *Engine) Text(id ContainerID) *text.Container {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.store.Container(id); ok {
		return c
	}
	c := text.New(id, pool.New(), e.store, e.hier, e.logr)
	e.store.RegisterContainer(c)
	return c
}

// Subscribe registers cb for containerID's events, or every container's
// events if containerID is empty.
func (e *Engine) Subscribe(id ContainerID, cb event.Callback) event.SubscriptionID {
	return e.hier.Subscribe(id, cb)
}

// Unsubscribe removes a prior Subscribe registration.
func (e *Engine) Unsubscribe(id event.SubscriptionID) {
	e.hier.Unsubscribe(id)
}

// VV returns the engine's current aggregate version vector, the argument a
// peer passes back to Export to ask "what have I not seen yet."
func (e *Engine) VV() crdtid.VersionVector {
	return e.store.VV()
}

// DebugInspect renders a one-line summary of the log store's size.
func (e *Engine) DebugInspect() string {
	return e.store.DebugInspect()
}
