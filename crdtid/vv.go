package crdtid

// VersionVector maps a peer to its next-unused counter. A version V
// includes ID(p,c) iff V[p] > c.
type VersionVector map[uint64]int32

// Clone returns an independent copy of the version vector.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	for p, c := range vv {
		out[p] = c
	}
	return out
}

// Includes reports whether the version vector has already seen id.
func (vv VersionVector) Includes(id ID) bool {
	return vv[id.Peer] > id.Counter
}

// Get returns the next-unused counter for peer, 0 if unseen.
func (vv VersionVector) Get(peer uint64) int32 {
	return vv[peer]
}

// SetEnd extends the vector so that it includes id and everything before it
// on id's peer, i.e. vv[id.Peer] = max(vv[id.Peer], id.Counter+1).
func (vv VersionVector) SetEnd(id ID) {
	if id.Counter+1 > vv[id.Peer] {
		vv[id.Peer] = id.Counter + 1
	}
}

// Extend grows vv to include the span's end, preserving any later value.
func (vv VersionVector) Extend(span IdSpan) {
	if span.CtrEnd > vv[span.Peer] {
		vv[span.Peer] = span.CtrEnd
	}
}

// LessOrEqual reports whether vv is dominated by other: vv[p] <= other[p]
// for every peer, treating an absent peer as counter 0.
func (vv VersionVector) LessOrEqual(other VersionVector) bool {
	for p, c := range vv {
		if c > other[p] {
			return false
		}
	}
	return true
}

// Equal reports whether the two vectors agree on every peer mentioned by
// either side.
func (vv VersionVector) Equal(other VersionVector) bool {
	return vv.LessOrEqual(other) && other.LessOrEqual(vv)
}

// Sub returns the set of IdSpans present in vv but not in other: for every
// peer where vv[p] > other[p], the half-open span [other[p], vv[p]).
func (vv VersionVector) Sub(other VersionVector) []IdSpan {
	var spans []IdSpan
	for p, c := range vv {
		start := other[p]
		if c > start {
			spans = append(spans, IdSpan{Peer: p, CtrStart: start, CtrEnd: c})
		}
	}
	return spans
}
