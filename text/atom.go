package text

import (
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/pool"
)

// atom is one run-length item in a Container's content tree: a span of
// pool-backed bytes plus the ID of the op that inserted it. Carrying the
// ID alongside the content (rather than a bare pool.SliceRange, as a pure
// reading of spec.md's "tree of SliceRange" would have it) is what lets
// SeedTracker hand an import-time tracker enough history to resolve
// OriginLeft references into already-applied content; see DESIGN.md.
type atom struct {
	ID    crdtid.IdSpan
	Range pool.SliceRange
}

func (a atom) AtomLen() int { return a.Range.AtomLen() }

func (a atom) Slice(from, to int) atom {
	return atom{
		ID:    crdtid.IdSpan{Peer: a.ID.Peer, CtrStart: a.ID.CtrStart + int32(from), CtrEnd: a.ID.CtrStart + int32(to)},
		Range: a.Range.Slice(from, to),
	}
}

func (a atom) IsMergeable(other atom) bool {
	return a.ID.Peer == other.ID.Peer && a.ID.CtrEnd == other.ID.CtrStart && a.Range.IsMergeable(other.Range)
}

func (a atom) Merge(other atom) atom {
	a.ID.CtrEnd = other.ID.CtrEnd
	a.Range = a.Range.Merge(other.Range)
	return a
}
