// Package tracker implements the version-scoped yata/woot-style list CRDT
// that turns an import batch of remote ops into the positional effects a
// container applies to its own content tree.
//
// It is grounded on the same algorithm as the content tree in the rle
// package, but deliberately does not reuse rle.Tree: tracker items need a
// second axis of "currently in view" visibility (toggled by Retreat and
// Forward independently of the tombstone flag used by deletes), which
// would force zero-atom-length leaf items into a tree built around the
// invariant that every leaf item has positive length. A tracker's
// positional queries are bounded by one change batch rather than full
// document length, so the plain ordered list this package uses trades
// sub-linear lookup (which rle.Tree provides text.Container, where it
// matters) for a simpler, invariant-compatible implementation. See
// DESIGN.md.
package tracker

import (
	"github.com/cshekharsharma/crdtcore/crdterr"
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/pool"
)

// SpanKind distinguishes an IdSpan of insert-op atoms from one belonging
// to a delete op, which Retreat/Forward must handle differently. Only the
// log store, which holds the originating Change records, can classify a
// span this way, so it is supplied by the caller rather than inferred.
type SpanKind int

const (
	SpanInsert SpanKind = iota
	SpanDelete
)

// VersionSpan is one causally-contiguous run to retreat or forward across.
type VersionSpan struct {
	Span crdtid.IdSpan
	Kind SpanKind
}

// EffectKind distinguishes the two positional effects a tracker can emit.
type EffectKind int

const (
	EffectInsert EffectKind = iota
	EffectDelete
)

// Effect is one positional change a container must apply to its own
// content tree to materialize the tracker's current view.
type Effect struct {
	Kind    EffectKind
	Pos     int
	Content pool.SliceRange // set for EffectInsert
	ID      crdtid.IdSpan   // set for EffectInsert; the content's originating op span
	Len     int             // set for EffectDelete
}

// InsertOp is the tracker-facing shape of a ListInsert op: an ID-spanned
// run of new atoms, the atom they were inserted immediately after
// (nil for document start), and the Lamport clock of its first atom.
type InsertOp struct {
	ID         crdtid.IdSpan
	OriginLeft *crdtid.ID
	Lamport    uint32
	Content    pool.SliceRange
}

// DeleteOp is the tracker-facing shape of a ListDelete op: its own
// identity (used to key retreat/forward of its effect later) and the
// position/length it covered in the view current when it was tracked.
type DeleteOp struct {
	ID  crdtid.ID
	Pos int
	Len int
}

// Tracker holds a causally-ordered list of insert-op atoms plus the set of
// deletes tombstoning sub-ranges of them, and a moving current_vv that can
// slide between start_vv and all_vv without re-running integration.
type Tracker struct {
	items   []descriptor
	deletes map[crdtid.ID][]crdtid.IdSpan

	startVV   crdtid.VersionVector
	allVV     crdtid.VersionVector
	currentVV crdtid.VersionVector
}

// New creates a tracker whose start_vv (and initial all_vv/current_vv) is
// startVV, with no ops tracked yet.
func New(startVV crdtid.VersionVector) *Tracker {
	return &Tracker{
		deletes:   make(map[crdtid.ID][]crdtid.IdSpan),
		startVV:   startVV.Clone(),
		allVV:     startVV.Clone(),
		currentVV: startVV.Clone(),
	}
}

// StartVV, AllVV, CurrentVV report the tracker's three version-vector
// bookmarks; start_vv <= current_vv <= all_vv always holds.
func (t *Tracker) StartVV() crdtid.VersionVector   { return t.startVV }
func (t *Tracker) AllVV() crdtid.VersionVector     { return t.allVV }
func (t *Tracker) CurrentVV() crdtid.VersionVector { return t.currentVV }

// InRange reports whether vv falls within [start_vv, all_vv], the
// condition under which Checkout can slide to it via retreat/forward
// instead of requiring a fresh tracker.
func (t *Tracker) InRange(vv crdtid.VersionVector) bool {
	return t.startVV.LessOrEqual(vv) && vv.LessOrEqual(t.allVV)
}

// TrackInsert ingests a newly-seen ListInsert op, integrating its atoms
// at the position YATA's (OriginLeft, then Lamport/peer tie-break among
// siblings sharing it) rule determines, and marks them applied
// (within current_vv) immediately: tracked ops join the tip of all_vv,
// and Retreat/Forward subsequently slide current_vv without
// re-integrating.
func (t *Tracker) TrackInsert(op InsertOp) {
	cursor := 0
	if op.OriginLeft != nil {
		t.ensureBoundary(op.OriginLeft.Peer, op.OriginLeft.Counter+1)
		cursor = len(t.items)
		for i, it := range t.items {
			if it.ID.Peer == op.OriginLeft.Peer && it.ID.CtrEnd == op.OriginLeft.Counter+1 {
				cursor = i + 1
				break
			}
		}
	}
	nd := descriptor{ID: op.ID, OriginLeft: op.OriginLeft, Lamport: op.Lamport, Content: op.Content, Applied: true}
	for cursor < len(t.items) {
		c := t.items[cursor]
		if !sameOrigin(c.OriginLeft, op.OriginLeft) || !precedes(c, nd) {
			break
		}
		cursor++
	}
	t.items = insertSliceAt(t.items, cursor, nd)
	t.items = coalesceAll(t.items)
	t.allVV.Extend(op.ID)
	t.currentVV.Extend(op.ID)
}

// TrackDelete ingests a newly-seen ListDelete op: tombstones the live
// atoms currently occupying [op.Pos, op.Pos+op.Len) and records exactly
// which atom spans it covered, so later Retreat/Forward of this op's own
// span can toggle precisely those atoms regardless of how the document
// has otherwise changed around them.
func (t *Tracker) TrackDelete(op DeleteOp) error {
	targets, err := t.spliceVisible(op.Pos, op.Pos+op.Len, func(d descriptor) descriptor {
		d.Deleted = true
		return d
	})
	if err != nil {
		return err
	}
	t.deletes[op.ID] = targets
	t.allVV.SetEnd(op.ID)
	t.currentVV.SetEnd(op.ID)
	return nil
}

// Retreat undoes each span's effect on the current view: insert-span
// atoms are hidden, delete-span targets are un-tombstoned. current_vv
// drops to reflect the spans no longer in view.
func (t *Tracker) Retreat(spans []VersionSpan) []Effect {
	var all []Effect
	for _, vs := range spans {
		if vs.Kind == SpanInsert {
			all = append(all, t.retreatInsertSpan(vs.Span)...)
		} else {
			all = append(all, t.retreatDeleteSpan(vs.Span)...)
		}
		t.currentVV[vs.Span.Peer] = vs.Span.CtrStart
	}
	return all
}

// Forward redoes each span's effect: the symmetric inverse of Retreat.
func (t *Tracker) Forward(spans []VersionSpan) []Effect {
	var all []Effect
	for _, vs := range spans {
		if vs.Kind == SpanInsert {
			all = append(all, t.forwardInsertSpan(vs.Span)...)
		} else {
			all = append(all, t.forwardDeleteSpan(vs.Span)...)
		}
		if vs.Span.CtrEnd > t.currentVV[vs.Span.Peer] {
			t.currentVV[vs.Span.Peer] = vs.Span.CtrEnd
		}
	}
	return all
}

// Checkout slides current_vv by first retreating retreatSpans then
// forwarding forwardSpans, both precomputed and classified by the caller
// (only the log store knows whether a given span is an insert or a
// delete). Callers must first confirm InRange for the target version;
// Checkout itself does not validate range membership.
func (t *Tracker) Checkout(retreatSpans, forwardSpans []VersionSpan) []Effect {
	effects := t.Retreat(retreatSpans)
	effects = append(effects, t.Forward(forwardSpans)...)
	return effects
}

// IterEffects computes the effects Forward(spans) would produce without
// permanently committing them: current_vv and tracked state are restored
// once the effects are collected. Used when a caller wants to preview an
// import's effects before deciding to apply them.
func (t *Tracker) IterEffects(spans []VersionSpan) []Effect {
	savedVV := t.currentVV.Clone()
	savedItems := append([]descriptor(nil), t.items...)
	savedDeletes := make(map[crdtid.ID][]crdtid.IdSpan, len(t.deletes))
	for k, v := range t.deletes {
		savedDeletes[k] = append([]crdtid.IdSpan(nil), v...)
	}

	effects := t.Forward(spans)

	t.currentVV = savedVV
	t.items = savedItems
	t.deletes = savedDeletes
	return effects
}

// SeedVisible appends an already-applied baseline atom — content a
// container held before the current tracking session began — directly to
// the end of the tracked sequence, in the order the caller supplies it
// (assumed already correct, since it reflects previously-resolved state
// rather than a new op needing YATA integration). start_vv, all_vv and
// current_vv all extend to include it.
func (t *Tracker) SeedVisible(id crdtid.IdSpan, originLeft *crdtid.ID, lamport uint32, content pool.SliceRange) {
	t.items = append(t.items, descriptor{ID: id, OriginLeft: originLeft, Lamport: lamport, Content: content, Applied: true})
	t.items = coalesceAll(t.items)
	t.startVV.Extend(id)
	t.allVV.Extend(id)
	t.currentVV.Extend(id)
}

func (t *Tracker) retreatInsertSpan(span crdtid.IdSpan) []Effect {
	var effects []Effect
	for _, i := range t.itemsInSpan(span) {
		wasVisible := t.items[i].visible()
		t.items[i].Applied = false
		if wasVisible {
			effects = append(effects, Effect{Kind: EffectDelete, Pos: t.visiblePosOf(i), Len: t.items[i].Len()})
		}
	}
	return effects
}

func (t *Tracker) forwardInsertSpan(span crdtid.IdSpan) []Effect {
	var effects []Effect
	for _, i := range t.itemsInSpan(span) {
		wasVisible := t.items[i].visible()
		t.items[i].Applied = true
		if !wasVisible && t.items[i].visible() {
			effects = append(effects, Effect{Kind: EffectInsert, Pos: t.visiblePosOf(i), Content: t.items[i].Content, ID: t.items[i].ID})
		}
	}
	return effects
}

func (t *Tracker) retreatDeleteSpan(span crdtid.IdSpan) []Effect {
	var effects []Effect
	for ctr := span.CtrStart; ctr < span.CtrEnd; ctr++ {
		id := crdtid.ID{Peer: span.Peer, Counter: ctr}
		for _, ts := range t.deletes[id] {
			for _, i := range t.itemsInSpan(ts) {
				if !t.items[i].Deleted {
					continue
				}
				t.items[i].Deleted = false
				if t.items[i].visible() {
					effects = append(effects, Effect{Kind: EffectInsert, Pos: t.visiblePosOf(i), Content: t.items[i].Content, ID: t.items[i].ID})
				}
			}
		}
	}
	return effects
}

func (t *Tracker) forwardDeleteSpan(span crdtid.IdSpan) []Effect {
	var effects []Effect
	for ctr := span.CtrStart; ctr < span.CtrEnd; ctr++ {
		id := crdtid.ID{Peer: span.Peer, Counter: ctr}
		for _, ts := range t.deletes[id] {
			for _, i := range t.itemsInSpan(ts) {
				if t.items[i].Deleted {
					continue
				}
				wasVisible := t.items[i].visible()
				t.items[i].Deleted = true
				if wasVisible {
					effects = append(effects, Effect{Kind: EffectDelete, Pos: t.visiblePosOf(i), Len: t.items[i].Len()})
				}
			}
		}
	}
	return effects
}

// OriginLeftAt returns the ID of the atom immediately before visible
// position pos (nil if pos is 0, i.e. document start). An imported
// ListInsert only carries a positional pos, not an explicit origin
// reference, so the caller resolves it to an OriginLeft by calling this
// against the tracker's current view at the time of integration — not
// the dependency-frontier-correct historical view a fully faithful yata
// implementation would replay to. See DESIGN.md for the known gap this
// leaves for cases other than inserts at a shared, unambiguous boundary.
func (t *Tracker) OriginLeftAt(pos int) *crdtid.ID {
	if pos <= 0 {
		return nil
	}
	cursor := 0
	for i := range t.items {
		if !t.items[i].visible() {
			continue
		}
		l := t.items[i].Len()
		if pos <= cursor+l {
			offset := pos - cursor - 1
			id := crdtid.ID{Peer: t.items[i].ID.Peer, Counter: t.items[i].ID.CtrStart + int32(offset)}
			return &id
		}
		cursor += l
	}
	return nil
}

// visiblePosOf returns the current visible position of item idx, summing
// the visible length of every preceding item. Independent of idx's own
// Applied/Deleted flags, so it is safe to call either before or after
// toggling them.
func (t *Tracker) visiblePosOf(idx int) int {
	pos := 0
	for i := 0; i < idx; i++ {
		if t.items[i].visible() {
			pos += t.items[i].Len()
		}
	}
	return pos
}

// ensureBoundary splits whichever item straddles counter ctr on peer's
// yarn so that an item boundary exists exactly there, and returns the
// index at which an item with ID.CtrStart == ctr now begins (or
// len(items) if ctr is past everything tracked for that peer).
func (t *Tracker) ensureBoundary(peer uint64, ctr int32) int {
	for i := 0; i < len(t.items); i++ {
		it := t.items[i]
		if it.ID.Peer != peer {
			continue
		}
		if ctr == it.ID.CtrStart {
			return i
		}
		if ctr > it.ID.CtrStart && ctr < it.ID.CtrEnd {
			off := int(ctr - it.ID.CtrStart)
			left := it.slice(0, off)
			right := it.slice(off, it.Len())
			t.items = insertSliceAt(t.items, i, left)
			t.items[i+1] = right
			return i + 1
		}
	}
	return len(t.items)
}

// itemsInSpan ensures boundaries exist at span's endpoints and returns
// the indices of every item now falling exactly within it.
func (t *Tracker) itemsInSpan(span crdtid.IdSpan) []int {
	t.ensureBoundary(span.Peer, span.CtrStart)
	t.ensureBoundary(span.Peer, span.CtrEnd)
	var idxs []int
	for i, it := range t.items {
		if it.ID.Peer == span.Peer && it.ID.CtrStart >= span.CtrStart && it.ID.CtrEnd <= span.CtrEnd {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// spliceVisible replaces the descriptors covering visible positions
// [from, to) with transform applied to each, splitting items at the
// boundaries as needed, and reports the resulting atom spans so a delete
// op can later retreat/forward precisely.
func (t *Tracker) spliceVisible(from, to int, transform func(descriptor) descriptor) ([]crdtid.IdSpan, error) {
	var targets []crdtid.IdSpan
	var out []descriptor
	pos := 0
	covered := 0
	for _, it := range t.items {
		if !it.visible() {
			out = append(out, it)
			continue
		}
		l := it.Len()
		itemFrom, itemTo := pos, pos+l
		switch {
		case to <= itemFrom || from >= itemTo:
			out = append(out, it)
		default:
			s, e := 0, l
			if from > itemFrom {
				s = from - itemFrom
			}
			if to < itemTo {
				e = to - itemFrom
			}
			if s > 0 {
				out = append(out, it.slice(0, s))
			}
			mid := transform(it.slice(s, e))
			out = append(out, mid)
			targets = append(targets, mid.ID)
			covered += e - s
			if e < l {
				out = append(out, it.slice(e, l))
			}
		}
		pos += l
	}
	if covered < to-from {
		return nil, crdterr.New(crdterr.InvalidPosition, "tracker: delete range exceeds visible length")
	}
	t.items = coalesceAll(out)
	return targets, nil
}
