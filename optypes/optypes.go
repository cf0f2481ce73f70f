// Package optypes holds the op-content tagged union shared by every layer
// that needs to name an operation's shape without depending on whichever
// concrete container interprets it: the log store stores these as Change
// payloads, containers translate them to and from wire form.
package optypes

import "github.com/cshekharsharma/crdtcore/pool"

// OpContent is implemented by every internal operation payload.
type OpContent interface {
	isOpContent()
}

// ListInsert is the internal (pool-backed) form of a text/list insertion.
type ListInsert struct {
	Slice pool.SliceRange
	Pos   int
}

func (ListInsert) isOpContent() {}

// ListDelete removes Len atoms starting at Pos. Signed preserves the
// source's reverse-direction deletion marker bit-for-bit through the
// codec; the tracker treats abs(Len) as the applied length regardless of
// sign, per the open question in DESIGN.md.
type ListDelete struct {
	Pos    int
	Len    int
	Signed bool
}

func (ListDelete) isOpContent() {}

// MapSet is kept so the tagged union is complete and a future Map
// container has a home for it; no container implements Map in this
// module.
type MapSet struct {
	Key   string
	Value any
}

func (MapSet) isOpContent() {}

// WireOpContent is the wire-form counterpart of OpContent: ListInsert's
// pool range becomes either literal text or an Unknown(n) placeholder.
type WireOpContent interface {
	isWireOpContent()
}

// WireListInsert carries literal text, or (Unknown true) an opaque
// placeholder of Len atoms standing in for content a GC'ing sender chose
// not to forward.
type WireListInsert struct {
	Text    string
	Unknown bool
	Len     int
	Pos     int
}

func (WireListInsert) isWireOpContent() {}

// WireListDelete mirrors ListDelete; no content encoding is needed since
// deletes carry only positional information.
type WireListDelete struct {
	Pos    int
	Len    int
	Signed bool
}

func (WireListDelete) isWireOpContent() {}

// WireMapSet mirrors MapSet.
type WireMapSet struct {
	Key   string
	Value any
}

func (WireMapSet) isWireOpContent() {}
