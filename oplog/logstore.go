package oplog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cshekharsharma/crdtcore/crdterr"
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/internal/lockcheck"
	"github.com/cshekharsharma/crdtcore/internal/logging"
	"github.com/cshekharsharma/crdtcore/optypes"
	"github.com/cshekharsharma/crdtcore/text"
)

// GcConfig mirrors log_store.rs's GcConfig: gc gates whether export splits
// dead pool bytes into Unknown placeholders, SnapshotInterval is carried
// for API completeness but the snapshot cadence itself is a no-op stub —
// snapshot wire format is out of scope.
type GcConfig struct {
	GC               bool
	SnapshotInterval time.Duration
}

// DefaultGcConfig matches the original's six-month default interval with
// gc on.
func DefaultGcConfig() GcConfig {
	return GcConfig{GC: true, SnapshotInterval: 6 * 30 * 24 * time.Hour}
}

// LogStore holds every container's causal history for one peer: the
// per-peer change log, the aggregate version vector and frontier set,
// and the container registry changes are routed through on import/export.
//
// Lock order: LogStore's mutex must be acquired before any Container's
// own mutex. Every exported method that touches a Container acquires
// mu itself before calling into the container, so callers never need to
// coordinate the two locks directly; internal/lockcheck's debug build
// tag asserts this order is never inverted under test.
type LogStore struct {
	mu sync.RWMutex

	peerID uint64
	clock  func() int64
	gc     GcConfig
	logger *zap.Logger

	changes       map[uint64][]Change
	vv            crdtid.VersionVector
	frontiers     crdtid.Frontiers
	latestLamport uint32
	// canMergeLocal is an atomic.Bool (not a plain bool guarded by mu) so
	// that Export can flip it to false while holding only the shared
	// lock, mirroring the original's choice of AtomicBool for this exact
	// field so a read-mostly export path never needs the exclusive lock.
	canMergeLocal atomic.Bool

	containers map[string]*text.Container
	pending    []Change
}

// New creates an empty LogStore for peerID. clock supplies change
// timestamps; logr may be nil.
func New(peerID uint64, clock func() int64, gc GcConfig, logr *zap.Logger) *LogStore {
	ls := &LogStore{
		peerID:     peerID,
		clock:      clock,
		gc:         gc,
		logger:     logging.Named(logr, "oplog"),
		changes:    make(map[uint64][]Change),
		vv:         crdtid.VersionVector{},
		containers: make(map[string]*text.Container),
	}
	ls.canMergeLocal.Store(true)
	return ls
}

// RegisterContainer adds c to the registry under its own ID, so Import
// and Export can route ops to and from it.
func (ls *LogStore) RegisterContainer(c *text.Container) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.containers[c.ID()] = c
}

// Container looks up a previously-registered container by ID.
func (ls *LogStore) Container(id string) (*text.Container, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	c, ok := ls.containers[id]
	return c, ok
}

// InsertText inserts text into the named container, taking the LogStore
// lock before the container's own, per the documented lock order.
func (ls *LogStore) InsertText(containerID string, pos int, text string) (crdtid.IdSpan, error) {
	lockcheck.EnterAmbient(lockcheck.StoreLock)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	defer lockcheck.ExitAmbient()

	c, ok := ls.containers[containerID]
	if !ok {
		return crdtid.IdSpan{}, crdterr.New(crdterr.ContainerTypeMismatch, "oplog: no container %q", containerID)
	}
	return c.Insert(pos, text)
}

// DeleteText deletes from the named container under the same lock order.
func (ls *LogStore) DeleteText(containerID string, pos, length int) (crdtid.IdSpan, error) {
	lockcheck.EnterAmbient(lockcheck.StoreLock)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	defer lockcheck.ExitAmbient()

	c, ok := ls.containers[containerID]
	if !ok {
		return crdtid.IdSpan{}, crdterr.New(crdterr.ContainerTypeMismatch, "oplog: no container %q", containerID)
	}
	return c.Delete(pos, length)
}

// AppendOp implements text.LogAppender. It must only be reached through
// InsertText/DeleteText (or Import's apply step), which already hold mu
// exclusively by the time a container calls back into it — it never
// takes mu itself, so it is safe to call while mu is held.
func (ls *LogStore) AppendOp(containerID string, content optypes.OpContent) (crdtid.IdSpan, uint32, error) {
	lamport := ls.latestLamport + 1
	timestamp := ls.clock()
	id := crdtid.ID{Peer: ls.peerID, Counter: ls.nextCounter(ls.peerID)}

	entry := OpEntry{ContainerID: containerID, Content: content}
	change := Change{
		ID:        id,
		Deps:      ls.frontiers.Clone(),
		Ops:       []OpEntry{entry},
		Lamport:   lamport,
		Timestamp: timestamp,
	}

	ls.frontiers = crdtid.Frontiers{change.idLast()}
	ls.latestLamport = lamport + uint32(change.contentLen()) - 1
	ls.vv.Extend(change.idSpan())

	peerChanges := ls.changes[ls.peerID]
	if ls.canMergeLocal.Load() && len(peerChanges) > 0 && peerChanges[len(peerChanges)-1].canMergeRight(change) {
		last := &peerChanges[len(peerChanges)-1]
		last.Ops = append(last.Ops, entry)
	} else {
		ls.changes[ls.peerID] = append(peerChanges, change)
		ls.canMergeLocal.Store(true)
	}

	return change.idSpan(), lamport, nil
}

func (ls *LogStore) nextCounter(peer uint64) int32 {
	changes := ls.changes[peer]
	if len(changes) == 0 {
		return 0
	}
	return changes[len(changes)-1].idLast().Counter + 1
}

// ContainsID reports whether id has already been recorded.
func (ls *LogStore) ContainsID(id crdtid.ID) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	changes := ls.changes[id.Peer]
	if len(changes) == 0 {
		return false
	}
	return changes[len(changes)-1].idLast().Counter >= id.Counter
}

// LookupChange returns the Change containing id, if any.
func (ls *LogStore) LookupChange(id crdtid.ID) (Change, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, c := range ls.changes[id.Peer] {
		if c.idSpan().Contains(id) {
			return c, true
		}
	}
	return Change{}, false
}

// FrontierOrder classifies how a frontier set relates to the store's own.
type FrontierOrder int

const (
	FrontierEqual FrontierOrder = iota
	FrontierAhead
	FrontierBehindOrConcurrent
)

// CmpFrontiers compares frontiers against the store's current frontier
// set: Equal if identical, Ahead if the store includes every ID named by
// frontiers (the store is causally ahead), BehindOrConcurrent otherwise.
func (ls *LogStore) CmpFrontiers(frontiers crdtid.Frontiers) FrontierOrder {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if ls.frontiers.Equal(frontiers) {
		return FrontierEqual
	}
	for _, id := range frontiers {
		if !ls.includesIDLocked(id) {
			return FrontierBehindOrConcurrent
		}
	}
	return FrontierAhead
}

func (ls *LogStore) includesIDLocked(id crdtid.ID) bool {
	changes := ls.changes[id.Peer]
	if len(changes) == 0 {
		return false
	}
	return changes[len(changes)-1].idLast().Counter >= id.Counter
}

// VV returns a copy of the store's aggregate version vector.
func (ls *LogStore) VV() crdtid.VersionVector {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.vv.Clone()
}

// DebugInspect renders a one-line summary of the store's size, mirroring
// log_store.rs's debug_inspect (built unconditionally here as a plain
// exported method rather than behind a test-only feature flag, since Go
// has no analogue to Rust's #[cfg(feature = ...)]).
func (ls *LogStore) DebugInspect() string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	peers := 0
	changeCount := 0
	atomCount := 0
	for _, cs := range ls.changes {
		peers++
		changeCount += len(cs)
		for _, c := range cs {
			atomCount += c.contentLen()
		}
	}
	return fmt.Sprintf("LogStore: peers=%d changes=%d atoms=%d vv=%v", peers, changeCount, atomCount, ls.vv)
}
