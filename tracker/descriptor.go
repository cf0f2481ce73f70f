package tracker

import (
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/pool"
)

// descriptor is one contiguous run of insert-op atoms in the tracker's
// causally-ordered list. Deletes never create descriptors of their own:
// a ListDelete op tombstones atoms that already belong to some insert's
// descriptor, recorded by setting Deleted on the covered sub-range.
type descriptor struct {
	ID         crdtid.IdSpan
	OriginLeft *crdtid.ID // nil means "inserted at document start"
	Lamport    uint32
	Content    pool.SliceRange

	Applied bool // within current_vv
	Deleted bool // tombstoned by an observed ListDelete
}

// Len is the raw atom count of the run, independent of visibility.
func (d descriptor) Len() int { return int(d.ID.CtrEnd - d.ID.CtrStart) }

// visible reports whether this run currently contributes to the
// document's positional length.
func (d descriptor) visible() bool { return d.Applied && !d.Deleted }

func (d descriptor) slice(from, to int) descriptor {
	nd := d
	nd.ID = crdtid.IdSpan{Peer: d.ID.Peer, CtrStart: d.ID.CtrStart + int32(from), CtrEnd: d.ID.CtrStart + int32(to)}
	nd.Content = d.Content.Slice(from, to)
	nd.Lamport = d.Lamport + uint32(from)
	if from > 0 {
		last := d.ID.CtrStart + int32(from) - 1
		id := crdtid.ID{Peer: d.ID.Peer, Counter: last}
		nd.OriginLeft = &id
	}
	return nd
}

func mergeable(a, b descriptor) bool {
	return a.Applied == b.Applied &&
		a.Deleted == b.Deleted &&
		a.ID.Peer == b.ID.Peer &&
		a.ID.CtrEnd == b.ID.CtrStart &&
		a.Lamport+uint32(a.Len()) == b.Lamport &&
		a.Content.IsMergeable(b.Content)
}

func merge(a, b descriptor) descriptor {
	a.ID.CtrEnd = b.ID.CtrEnd
	a.Content = a.Content.Merge(b.Content)
	return a
}

// sameOrigin reports whether two insertions were made at the same gap
// (same OriginLeft), the condition under which their relative order must
// be resolved by the (Lamport, peer) tie-break rather than causality.
func sameOrigin(a, b *crdtid.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// precedes reports whether c, a sibling insertion at the same gap as nd,
// must be ordered before nd: lower Lamport first, then lower peer id.
func precedes(c, nd descriptor) bool {
	if c.Lamport != nd.Lamport {
		return c.Lamport < nd.Lamport
	}
	return c.ID.Peer < nd.ID.Peer
}

func coalesceAll(items []descriptor) []descriptor {
	out := make([]descriptor, 0, len(items))
	for _, it := range items {
		if n := len(out); n > 0 && mergeable(out[n-1], it) {
			out[n-1] = merge(out[n-1], it)
			continue
		}
		out = append(out, it)
	}
	return out
}

func insertSliceAt(items []descriptor, at int, v descriptor) []descriptor {
	items = append(items, descriptor{})
	copy(items[at+1:], items[at:])
	items[at] = v
	return items
}
