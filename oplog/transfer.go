package oplog

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cshekharsharma/crdtcore/crdterr"
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/internal/lockcheck"
	"github.com/cshekharsharma/crdtcore/optypes"
	"github.com/cshekharsharma/crdtcore/tracker"
)

// WireOp is one op's wire-form content, tagged with the container it
// targets.
type WireOp struct {
	ContainerID string
	Content     optypes.WireOpContent
}

// WireChange is a Change's export/import wire shape: ops already
// translated to wire form by the target container's ToExport/ToImport.
type WireChange struct {
	Peer      uint64
	Counter   int32
	Deps      []crdtid.ID
	Lamport   uint32
	Timestamp int64
	Ops       []WireOp
}

// Export returns, for every peer the store is ahead of remoteVV on, the
// changes the caller is missing. Takes the shared lock: flipping
// canMergeLocal (so a future local op can no longer fuse into a change
// that may already be in flight to a peer) is the only state change, and
// it happens through an atomic rather than needing an exclusive lock.
//
// Because of that flag, a change a peer has already received is never
// extended by later local ops. A stored change is exported only when it
// lies wholly inside a span of vv.Sub(remoteVV): a remoteVV that ends
// inside a change (for example one holding several merged local edits)
// finds that change omitted entirely rather than partially sliced.
func (ls *LogStore) Export(remoteVV crdtid.VersionVector) (map[uint64][]WireChange, error) {
	lockcheck.EnterAmbient(lockcheck.StoreLock)
	defer lockcheck.ExitAmbient()
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	ls.canMergeLocal.Store(false)

	if ls.gc.GC {
		for _, c := range ls.containers {
			c.MaybeGC()
		}
	}

	out := make(map[uint64][]WireChange)
	for _, span := range ls.vv.Sub(remoteVV) {
		for _, c := range ls.changesInSpanLocked(span) {
			wc, err := ls.toWireChangeLocked(c)
			if err != nil {
				return nil, err
			}
			out[c.ID.Peer] = append(out[c.ID.Peer], wc)
		}
	}
	return out, nil
}

func (ls *LogStore) changesInSpanLocked(span crdtid.IdSpan) []Change {
	var out []Change
	for _, c := range ls.changes[span.Peer] {
		cs := c.idSpan()
		if cs.CtrStart >= span.CtrStart && cs.CtrEnd <= span.CtrEnd {
			out = append(out, c)
		}
	}
	return out
}

func (ls *LogStore) toWireChangeLocked(c Change) (WireChange, error) {
	wc := WireChange{
		Peer:      c.ID.Peer,
		Counter:   c.ID.Counter,
		Deps:      append([]crdtid.ID(nil), c.Deps...),
		Lamport:   c.Lamport,
		Timestamp: c.Timestamp,
	}
	for _, e := range c.Ops {
		cont, ok := ls.containers[e.ContainerID]
		if !ok {
			return WireChange{}, crdterr.New(crdterr.ContainerTypeMismatch, "oplog: export: unknown container %q", e.ContainerID)
		}
		for _, w := range cont.ToExport(e.Content, ls.gc.GC) {
			wc.Ops = append(wc.Ops, WireOp{ContainerID: e.ContainerID, Content: w})
		}
	}
	return wc, nil
}

// Import ingests a batch of remote changes. Changes whose deps are not
// yet satisfied are buffered in pending and retried on a future Import;
// everything else is applied atomically under the store's exclusive
// lock — either the whole now-appliable set becomes visible, or (on a
// conversion error from a container) none of this call's changes do.
//
// Before taking the exclusive lock, Import fans out a read-only
// dependency-readiness scan across peers: since no peer's buffered
// changes depend on the store-state read of another peer's scan, this
// first-round check (is each candidate's deps already satisfied by the
// vv as of the moment the batch arrived) parallelizes cleanly. Only the
// mutating apply step — which can itself unlock further rounds as
// changes land — stays single-threaded under the write lock.
func (ls *LogStore) Import(batch map[uint64][]WireChange) error {
	lockcheck.EnterAmbient(lockcheck.StoreLock)
	defer lockcheck.ExitAmbient()

	candidates, err := ls.convertBatch(batch)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	ls.mu.RLock()
	vvSnapshot := ls.vv.Clone()
	ls.mu.RUnlock()
	ready := scanReadiness(candidates, vvSnapshot)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.pending = append(ls.pending, candidates...)

	effectsByContainer := make(map[string][]tracker.Effect)

	for {
		var round []Change
		var rest []Change
		for _, c := range ls.pending {
			satisfied := ready[c.ID]
			if !satisfied {
				satisfied = c.depsSatisfied(ls.vv)
			}
			if satisfied {
				round = append(round, c)
			} else {
				rest = append(rest, c)
			}
		}
		ls.pending = rest
		if len(round) == 0 {
			break
		}
		sort.Slice(round, func(i, j int) bool {
			if round[i].ID.Peer != round[j].ID.Peer {
				return round[i].ID.Peer < round[j].ID.Peer
			}
			return round[i].ID.Counter < round[j].ID.Counter
		})
		for _, c := range round {
			if err := ls.applyChangeLocked(c, effectsByContainer); err != nil {
				return err
			}
		}
		ready = nil
	}

	if len(ls.pending) > 0 {
		return crdterr.New(crdterr.UnresolvedDependency, "oplog: %d changes still pending missing dependencies", len(ls.pending))
	}

	for cid, effects := range effectsByContainer {
		cont, ok := ls.containers[cid]
		if !ok {
			continue
		}
		diff := cont.BuildDiff(effects)
		if len(diff.Text.Ops) > 0 {
			cont.Notify(diff)
		}
	}
	return nil
}

// scanReadiness computes, concurrently per peer, whether each
// candidate's deps are already included in vv. Read-only: touches
// nothing but its own inputs.
func scanReadiness(candidates []Change, vv crdtid.VersionVector) map[crdtid.ID]bool {
	byPeer := make(map[uint64][]Change)
	for _, c := range candidates {
		byPeer[c.ID.Peer] = append(byPeer[c.ID.Peer], c)
	}

	var mu sync.Mutex
	result := make(map[crdtid.ID]bool, len(candidates))
	g, _ := errgroup.WithContext(context.Background())
	for _, changes := range byPeer {
		changes := changes
		g.Go(func() error {
			local := make(map[crdtid.ID]bool, len(changes))
			for _, c := range changes {
				local[c.ID] = c.depsSatisfied(vv)
			}
			mu.Lock()
			for id, ok := range local {
				result[id] = ok
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // the scan body never returns an error
	return result
}

func (ls *LogStore) convertBatch(batch map[uint64][]WireChange) ([]Change, error) {
	ls.mu.RLock()
	containers := ls.containers
	vv := ls.vv.Clone()
	ls.mu.RUnlock()

	var out []Change
	for _, wcs := range batch {
		for _, wc := range wcs {
			id := crdtid.ID{Peer: wc.Peer, Counter: wc.Counter}
			if vv.Includes(id) {
				continue
			}
			deps := append(crdtid.Frontiers(nil), wc.Deps...)
			var ops []OpEntry
			for _, wop := range wc.Ops {
				cont, ok := containers[wop.ContainerID]
				if !ok {
					return nil, crdterr.New(crdterr.ContainerTypeMismatch, "oplog: import: unknown container %q", wop.ContainerID)
				}
				content, err := cont.ToImport(wop.Content)
				if err != nil {
					return nil, err
				}
				ops = append(ops, OpEntry{ContainerID: wop.ContainerID, Content: content})
			}
			out = append(out, Change{ID: id, Deps: deps, Ops: ops, Lamport: wc.Lamport, Timestamp: wc.Timestamp})
		}
	}
	return out, nil
}

// applyChangeLocked commits c: extends vv/frontiers/latestLamport,
// stores it in the per-peer log, and — per container it touches —
// seeds a fresh tracker from that container's current tree, tracks c's
// ops against it, and materializes the resulting effects. Retreating
// then forwarding the very spans just tracked is a deliberate reuse of
// the checkout machinery: TrackInsert/TrackDelete mark their atoms
// applied immediately without emitting an Effect, so toggling them off
// and back on is what turns "just tracked" into "the Effects a Container
// needs to apply" (only the forward half's Effects are kept). Every container's effects from this change are
// appended to effectsByContainer rather than delivered here, so Import
// can coalesce a whole batch's effects into one Diff per container.
func (ls *LogStore) applyChangeLocked(c Change, effectsByContainer map[string][]tracker.Effect) error {
	ls.changes[c.ID.Peer] = append(ls.changes[c.ID.Peer], c)
	ls.vv.Extend(c.idSpan())
	ls.frontiers = crdtid.Frontiers{c.idLast()}
	if end := c.Lamport + uint32(c.contentLen()) - 1; end > ls.latestLamport {
		ls.latestLamport = end
	}

	byContainer := make(map[string][]OpEntry)
	var order []string
	for _, e := range c.Ops {
		if _, seen := byContainer[e.ContainerID]; !seen {
			order = append(order, e.ContainerID)
		}
		byContainer[e.ContainerID] = append(byContainer[e.ContainerID], e)
	}

	for _, cid := range order {
		cont, ok := ls.containers[cid]
		if !ok {
			return crdterr.New(crdterr.ContainerTypeMismatch, "oplog: import: unknown container %q", cid)
		}
		effects, err := ls.applyOpsToContainer(cont, c, byContainer[cid])
		if err != nil {
			return err
		}
		effectsByContainer[cid] = append(effectsByContainer[cid], effects...)
	}
	return nil
}

type containerApplier interface {
	SeedTracker() *tracker.Tracker
	ApplyEffects([]tracker.Effect)
}

func (ls *LogStore) applyOpsToContainer(cont containerApplier, c Change, entries []OpEntry) ([]tracker.Effect, error) {
	tr := cont.SeedTracker()
	var spans []tracker.VersionSpan
	ctr := c.ID.Counter

	for _, e := range entries {
		switch op := e.Content.(type) {
		case optypes.ListInsert:
			n := int32(op.Slice.AtomLen())
			span := crdtid.IdSpan{Peer: c.ID.Peer, CtrStart: ctr, CtrEnd: ctr + n}
			tr.TrackInsert(tracker.InsertOp{
				ID:         span,
				OriginLeft: tr.OriginLeftAt(op.Pos),
				Lamport:    c.Lamport,
				Content:    op.Slice,
			})
			spans = append(spans, tracker.VersionSpan{Span: span, Kind: tracker.SpanInsert})
			ctr += n
		case optypes.ListDelete:
			length := op.Len
			if length < 0 {
				length = -length
			}
			id := crdtid.ID{Peer: c.ID.Peer, Counter: ctr}
			if err := tr.TrackDelete(tracker.DeleteOp{ID: id, Pos: op.Pos, Len: length}); err != nil {
				return nil, err
			}
			spans = append(spans, tracker.VersionSpan{
				Span: crdtid.IdSpan{Peer: c.ID.Peer, CtrStart: ctr, CtrEnd: ctr + 1},
				Kind: tracker.SpanDelete,
			})
			ctr++
		}
	}

	// The ops just tracked already marked their atoms applied in current_vv
	// (TrackInsert/TrackDelete do that without emitting an Effect), while
	// the container does not hold them yet. Retreating off those spans puts
	// the tracker's view back to the container's current content; that
	// half's Effects would undo content the container never held, so they
	// are dropped. Forwarding straight back onto the same spans then yields
	// exactly the Effects the Container must apply.
	tr.Retreat(spans)
	effects := tr.Forward(spans)
	cont.ApplyEffects(effects)
	return effects, nil
}
