package engine

import (
	"encoding/binary"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cshekharsharma/crdtcore/oplog"
)

// Config holds the constructor-time dependencies every package beneath
// Engine needs: a clock, a logger, and GC policy. Built from functional
// options rather than exported fields so the zero value is never
// accidentally used half-configured.
type Config struct {
	peerID uint64
	clock  func() int64
	logger *zap.Logger
	gc     oplog.GcConfig
}

// Option configures an Engine at construction time.
type Option func(*Config)

// WithPeerID pins the engine's peer identity instead of drawing one from
// google/uuid.
func WithPeerID(id uint64) Option {
	return func(c *Config) { c.peerID = id }
}

// WithClock overrides the engine's timestamp source, used by tests that
// need deterministic Change.Timestamp values.
func WithClock(clock func() int64) Option {
	return func(c *Config) { c.clock = clock }
}

// WithLogger attaches a structured logger. Omitted, the engine logs
// nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithGC overrides the default GC policy (on, six-month snapshot cadence).
func WithGC(gc oplog.GcConfig) Option {
	return func(c *Config) { c.gc = gc }
}

func newConfig(opts []Option) Config {
	cfg := Config{
		clock: func() int64 { return 0 },
		gc:    oplog.DefaultGcConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.peerID == 0 {
		cfg.peerID = peerIDFromUUID()
	}
	return cfg
}

// peerIDFromUUID folds a random UUIDv4 down to a uint64 peer identity by
// XORing its two halves, giving every unconfigured engine a
// collision-resistant identity without asking the caller to manage one.
func peerIDFromUUID() uint64 {
	id := uuid.New()
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	v := hi ^ lo
	if v == 0 {
		v = 1 // 0 is reserved to mean "unset" by WithPeerID's zero value check
	}
	return v
}
