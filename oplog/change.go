// Package oplog implements the causal DAG of Changes every peer
// exchanges: a per-peer history of local edits, merged eagerly where
// contiguous, exported as the span-diff of two version vectors, and
// imported with dependency-ordered, atomic-per-batch visibility.
package oplog

import (
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/optypes"
)

// OpEntry pairs an op's content with the container it targets, mirroring
// the wire RemoteOp's container identifier.
type OpEntry struct {
	ContainerID string
	Content     optypes.OpContent
}

// Change is one causally-dependent batch of ops committed by a single
// peer: Deps names the frontier it was built on top of, ID names its
// first op's identity, and Ops spans ID.Counter forward contiguously.
//
// The original groups ops within a Change behind a second RLE layer
// (RleVec<Op>), merging same-shape adjacent ops. That second layer is not
// reproduced here: ops here are few enough per Change (usually one, from
// a single container mutation) that a plain slice costs nothing a
// generic RLE merge would meaningfully recover, and Op's variants don't
// share a uniform shape rle.Item could merge across. See DESIGN.md.
type Change struct {
	ID        crdtid.ID
	Deps      crdtid.Frontiers
	Ops       []OpEntry
	Lamport   uint32
	Timestamp int64
}

// contentLen returns the number of counter slots this change occupies,
// the sum of its ops' atom lengths (1 for non-insert ops).
func (c Change) contentLen() int {
	n := 0
	for _, e := range c.Ops {
		if ins, ok := e.Content.(optypes.ListInsert); ok {
			n += ins.Slice.AtomLen()
			continue
		}
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// idLast returns the ID of this change's final counter slot.
func (c Change) idLast() crdtid.ID {
	return crdtid.ID{Peer: c.ID.Peer, Counter: c.ID.Counter + int32(c.contentLen()) - 1}
}

// idSpan returns the half-open IdSpan this change covers.
func (c Change) idSpan() crdtid.IdSpan {
	return crdtid.IdSpan{Peer: c.ID.Peer, CtrStart: c.ID.Counter, CtrEnd: c.ID.Counter + int32(c.contentLen())}
}

// depsSatisfied reports whether every dependency of c is already
// included in vv, the condition under which c can leave the pending
// buffer and be applied.
func (c Change) depsSatisfied(vv crdtid.VersionVector) bool {
	for _, dep := range c.Deps {
		if !vv.Includes(dep) {
			return false
		}
	}
	return true
}

// canMergeRight reports whether next can be fused onto the end of c:
// contiguous counters on the same peer, and next's sole dependency is
// exactly c's own last ID (i.e. next was built directly on top of c with
// no intervening causal history).
func (c Change) canMergeRight(next Change) bool {
	if c.ID.Peer != next.ID.Peer {
		return false
	}
	if next.ID.Counter != c.idLast().Counter+1 {
		return false
	}
	return crdtid.Frontiers{c.idLast()}.Equal(next.Deps)
}
