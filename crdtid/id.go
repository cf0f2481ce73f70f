// Package crdtid provides the identity and causality primitives shared by
// every layer of the engine: operation IDs, ID spans, version vectors and
// frontiers.
package crdtid

import "fmt"

// ID globally identifies a single operation. IDs are monotone per peer:
// the counter of the Nth operation emitted by a peer is N-1.
type ID struct {
	Peer    uint64
	Counter int32
}

// String renders an ID as "peer@counter", used in debug logs.
func (id ID) String() string {
	return fmt.Sprintf("%d@%d", id.Peer, id.Counter)
}

// Next returns the ID immediately following id on the same peer's yarn.
func (id ID) Next() ID {
	return ID{Peer: id.Peer, Counter: id.Counter + 1}
}

// IdSpan is a contiguous run of counters emitted by one peer,
// [CtrStart, CtrEnd).
type IdSpan struct {
	Peer     uint64
	CtrStart int32
	CtrEnd   int32
}

// Len returns the number of IDs covered by the span.
func (s IdSpan) Len() int {
	if s.CtrEnd <= s.CtrStart {
		return 0
	}
	return int(s.CtrEnd - s.CtrStart)
}

// Contains reports whether id falls within the span.
func (s IdSpan) Contains(id ID) bool {
	return id.Peer == s.Peer && id.Counter >= s.CtrStart && id.Counter < s.CtrEnd
}

// First returns the first ID in the span.
func (s IdSpan) First() ID { return ID{Peer: s.Peer, Counter: s.CtrStart} }

// Last returns the last ID in the span (CtrEnd - 1).
func (s IdSpan) Last() ID { return ID{Peer: s.Peer, Counter: s.CtrEnd - 1} }

// Lamport is a monotone per-op counter that respects causality: if A is
// causally before B then Lamport(A) < Lamport(B).
type Lamport = uint32
