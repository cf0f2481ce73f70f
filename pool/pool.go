// Package pool implements the append-only byte arena backing every text
// container: allocation returns stable [start,end) ranges that are never
// reused, and an optional run-length liveness bitmap supports GC-mode
// export without ever physically reclaiming bytes.
package pool

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/cshekharsharma/crdtcore/crdterr"
)

// SliceRange is either a half-open [Start,End) view into a StringPool, or
// an opaque Unknown(n) placeholder standing in for content a peer has
// chosen not to forward (GC'd dead text). It implements rle.Item so text
// containers can store it directly in an RLE tree.
type SliceRange struct {
	Start, End int
	Unknown    bool
	UnknownLen int
}

// Raw constructs a concrete [start,end) range.
func Raw(start, end int) SliceRange {
	return SliceRange{Start: start, End: end}
}

// PlaceholderOf constructs an Unknown(n) range standing in for n atoms of
// content the sender did not have, or chose not to send.
func PlaceholderOf(n int) SliceRange {
	return SliceRange{Unknown: true, UnknownLen: n}
}

// AtomLen implements rle.Item.
func (r SliceRange) AtomLen() int {
	if r.Unknown {
		return r.UnknownLen
	}
	return r.End - r.Start
}

// Slice implements rle.Item.
func (r SliceRange) Slice(from, to int) SliceRange {
	if r.Unknown {
		return SliceRange{Unknown: true, UnknownLen: to - from}
	}
	return SliceRange{Start: r.Start + from, End: r.Start + to}
}

// IsMergeable implements rle.Item: two concrete ranges merge when
// contiguous in the pool; two placeholders always merge into one larger
// placeholder, since neither carries positional meaning beyond its length.
func (r SliceRange) IsMergeable(other SliceRange) bool {
	if r.Unknown || other.Unknown {
		return r.Unknown && other.Unknown
	}
	return r.End == other.Start
}

// Merge implements rle.Item.
func (r SliceRange) Merge(other SliceRange) SliceRange {
	if r.Unknown {
		return SliceRange{Unknown: true, UnknownLen: r.UnknownLen + other.UnknownLen}
	}
	return SliceRange{Start: r.Start, End: other.End}
}

// Alive is one run of a liveness bitmap: N consecutive pool bytes that are
// either all live or all dead.
type Alive struct {
	Live bool
	N    int
}

type run struct {
	start, end int
	alive      bool
}

// StringPool is an append-only byte arena. Offsets handed out by Alloc
// remain valid for the pool's entire lifetime; GC never reclaims bytes,
// it only tracks which ranges are still referenced so export can omit
// their content.
type StringPool struct {
	mu      sync.RWMutex
	buf     []byte
	runs    []run // sorted, disjoint, covers [0,len(buf)) once GC has run
	liveLen int   // sum of live-range lengths as of the last GC
}

// New returns an empty pool.
func New() *StringPool {
	return &StringPool{}
}

// Alloc appends s to the pool and returns the range it now occupies.
func (p *StringPool) Alloc(s string) SliceRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := len(p.buf)
	p.buf = append(p.buf, s...)
	return SliceRange{Start: start, End: len(p.buf)}
}

// GetStr returns the bytes a concrete range refers to, decoded as a
// string. Calling it on an Unknown range is a programmer error: local
// state must never retain placeholders, only exported wire data does.
func (p *StringPool) GetStr(r SliceRange) string {
	if r.Unknown {
		panic(errors.WithStack(crdterr.New(crdterr.Corruption, "pool: GetStr on placeholder range")))
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return string(p.buf[r.Start:r.End])
}

// Len reports the pool's total byte length, including dead (but never
// reclaimed) bytes.
func (p *StringPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.buf)
}

// NeedsGC reports whether the pool has grown enough relative to a
// caller-supplied live length to warrant recomputing liveness: total
// length more than twice the live length.
func (p *StringPool) NeedsGC(liveLen int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.buf) > 2*liveLen
}

// GC recomputes the liveness bitmap from the given set of currently-live
// ranges (as read off a container's tree by the caller; Unknown ranges in
// that set are skipped, since they carry no pool coverage of their own).
// No bytes are freed; this only updates what GetAliveness will report.
// Peers may disagree about which bytes are dead: a peer that receives an
// Unknown(n) placeholder for bytes it never held keeps the placeholder,
// and nothing recovers those bytes later.
func (p *StringPool) GC(live []SliceRange) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var bounds []boundary
	liveLen := 0
	for _, r := range live {
		if r.Unknown || r.Start == r.End {
			continue
		}
		bounds = append(bounds, boundary{r.Start, 1}, boundary{r.End, -1})
		liveLen += r.End - r.Start
	}
	p.liveLen = liveLen

	if len(p.buf) == 0 {
		p.runs = nil
		return
	}
	// Sweep-line over range boundaries to build disjoint alive/dead runs
	// covering the whole buffer.
	sortBounds(bounds)
	var runs []run
	cursor, depth, bi := 0, 0, 0
	for cursor < len(p.buf) {
		next := len(p.buf)
		for bi < len(bounds) && bounds[bi].pos <= cursor {
			depth += bounds[bi].delta
			bi++
		}
		if bi < len(bounds) {
			next = bounds[bi].pos
		}
		if next > cursor {
			runs = append(runs, run{start: cursor, end: next, alive: depth > 0})
		}
		cursor = next
	}
	p.runs = coalesceRuns(runs)
}

type boundary struct {
	pos   int
	delta int
}

func sortBounds(b []boundary) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j].pos < b[j-1].pos; j-- {
			b[j], b[j-1] = b[j-1], b[j]
		}
	}
}

func coalesceRuns(runs []run) []run {
	var out []run
	for _, r := range runs {
		if n := len(out); n > 0 && out[n-1].alive == r.alive && out[n-1].end == r.start {
			out[n-1].end = r.end
			continue
		}
		out = append(out, r)
	}
	return out
}

// GetAliveness splits a concrete range into alternating alive/dead spans
// per the bitmap built by the last GC. If GC has never run, the whole
// range is reported alive: nothing has been classified dead yet.
func (p *StringPool) GetAliveness(r SliceRange) []Alive {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if r.Unknown {
		return []Alive{{Live: false, N: r.UnknownLen}}
	}
	if len(p.runs) == 0 {
		return []Alive{{Live: true, N: r.End - r.Start}}
	}
	var out []Alive
	pos := r.Start
	for pos < r.End {
		ri := findRun(p.runs, pos)
		end := r.End
		alive := true
		if ri >= 0 {
			alive = p.runs[ri].alive
			if p.runs[ri].end < end {
				end = p.runs[ri].end
			}
		}
		n := end - pos
		if len(out) > 0 && out[len(out)-1].Live == alive {
			out[len(out)-1].N += n
		} else {
			out = append(out, Alive{Live: alive, N: n})
		}
		pos = end
	}
	return out
}

func findRun(runs []run, pos int) int {
	lo, hi := 0, len(runs)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case pos < runs[mid].start:
			hi = mid - 1
		case pos >= runs[mid].end:
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}
