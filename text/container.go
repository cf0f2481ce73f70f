package text

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cshekharsharma/crdtcore/crdterr"
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/event"
	"github.com/cshekharsharma/crdtcore/internal/lockcheck"
	"github.com/cshekharsharma/crdtcore/internal/logging"
	"github.com/cshekharsharma/crdtcore/optypes"
	"github.com/cshekharsharma/crdtcore/pool"
	"github.com/cshekharsharma/crdtcore/rle"
	"github.com/cshekharsharma/crdtcore/tracker"
)

// LogAppender is the narrow slice of the log store a Container needs: a
// place to record a local op and learn the ID/Lamport the store assigned
// it. Kept here rather than imported from oplog so text has no import-time
// dependency on the log layer; oplog.LogStore satisfies it.
type LogAppender interface {
	AppendOp(containerID string, content optypes.OpContent) (crdtid.IdSpan, uint32, error)
}

// Container is a single text document: a run-length tree of pool-backed
// atoms giving O(log n) reads and writes, plus the plumbing to translate
// local edits into ops and remote ops into content-tree effects.
type Container struct {
	mu sync.Mutex

	id   string
	tree *rle.Tree[atom]
	sp   *pool.StringPool
	log  LogAppender
	hier *event.Hierarchy
	logr *zap.Logger
}

// New builds an empty text container. hier may be nil if no subscriber
// ever needs events for it.
func New(id string, sp *pool.StringPool, log LogAppender, hier *event.Hierarchy, logr *zap.Logger) *Container {
	c := &Container{id: id, sp: sp, log: log, hier: hier, logr: logging.Named(logr, "text")}
	c.tree = rle.New[atom](nil)
	return c
}

// ID returns the container's identity, as used by the log store and the
// wire envelope.
func (c *Container) ID() string { return c.id }

// Len returns the current visible length in atoms (UTF-8 bytes).
func (c *Container) Len() int {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Len()
}

// Insert appends an insert op for text at pos to the log, places the text
// into the tree at pos under the ID the log assigned, and (if subscribed)
// notifies observers, in that order.
func (c *Container) Insert(pos int, text string) (crdtid.IdSpan, error) {
	if text == "" {
		return crdtid.IdSpan{}, nil
	}
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	if pos < 0 || pos > c.tree.Len() {
		return crdtid.IdSpan{}, crdterr.New(crdterr.InvalidPosition, "text %s: insert at %d, len %d", c.id, pos, c.tree.Len())
	}

	slice := c.sp.Alloc(text)
	id, lamport, err := c.log.AppendOp(c.id, optypes.ListInsert{Slice: slice, Pos: pos})
	if err != nil {
		return crdtid.IdSpan{}, err
	}
	_ = lamport
	c.tree.Insert(pos, atom{ID: id, Range: slice})

	c.logr.Debug("text insert", zap.String("container", c.id), zap.Int("pos", pos), zap.Int("len", len(text)))
	c.notify(event.Diff{Kind: event.DiffText, Text: event.Delta{}.RetainOp(pos).InsertOp(text)})
	return id, nil
}

// Delete removes length atoms starting at pos. The op is appended to the
// log before the tree is mutated, matching the order a remote peer must
// observe it in (a delete's dependency is whatever inserted the content,
// never the reverse).
func (c *Container) Delete(pos, length int) (crdtid.IdSpan, error) {
	if length <= 0 {
		return crdtid.IdSpan{}, nil
	}
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	if pos < 0 || length < 0 || pos+length > c.tree.Len() {
		return crdtid.IdSpan{}, crdterr.New(crdterr.InvalidPosition, "text %s: delete [%d,%d), len %d", c.id, pos, pos+length, c.tree.Len())
	}

	id, _, err := c.log.AppendOp(c.id, optypes.ListDelete{Pos: pos, Len: length})
	if err != nil {
		return crdtid.IdSpan{}, err
	}
	c.tree.DeleteRange(pos, pos+length)

	c.logr.Debug("text delete", zap.String("container", c.id), zap.Int("pos", pos), zap.Int("len", length))
	c.notify(event.Diff{Kind: event.DiffText, Text: event.Delta{}.RetainOp(pos).DeleteOp(length)})
	return id, nil
}

// GetValue concatenates the container's current visible content. Any
// Unknown range encountered is a Corruption: local state must never carry
// a GC placeholder, those only ever appear in wire-form exports.
func (c *Container) GetValue() (string, error) {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for cur := c.tree.Iter(); cur.Next(); {
		a := cur.Item()
		if a.Range.Unknown {
			return "", crdterr.New(crdterr.Corruption, "text %s: unknown range in local state", c.id)
		}
		b.WriteString(c.sp.GetStr(a.Range))
	}
	return b.String(), nil
}

// ToExport renders one stored op's content as wire form. gc controls
// whether dead bytes behind a ListInsert's range are forwarded as literal
// text (gc=false) or collapsed into Unknown placeholders (gc=true),
// splitting the run on every alive/dead boundary GetAliveness reports.
func (c *Container) ToExport(content optypes.OpContent, gc bool) []optypes.WireOpContent {
	switch op := content.(type) {
	case optypes.ListInsert:
		return c.exportListInsert(op, gc)
	case optypes.ListDelete:
		return []optypes.WireOpContent{optypes.WireListDelete{Pos: op.Pos, Len: op.Len, Signed: op.Signed}}
	default:
		return nil
	}
}

func (c *Container) exportListInsert(op optypes.ListInsert, gc bool) []optypes.WireOpContent {
	if op.Slice.Unknown {
		return []optypes.WireOpContent{optypes.WireListInsert{Unknown: true, Len: op.Slice.UnknownLen, Pos: op.Pos}}
	}
	if !gc {
		return []optypes.WireOpContent{optypes.WireListInsert{Text: c.sp.GetStr(op.Slice), Pos: op.Pos}}
	}

	runs := c.sp.GetAliveness(op.Slice)
	out := make([]optypes.WireOpContent, 0, len(runs))
	byteOff := op.Slice.Start
	pos := op.Pos
	for _, r := range runs {
		sub := pool.Raw(byteOff, byteOff+r.N)
		if r.Live {
			out = append(out, optypes.WireListInsert{Text: c.sp.GetStr(sub), Pos: pos})
		} else {
			out = append(out, optypes.WireListInsert{Unknown: true, Len: r.N, Pos: pos})
		}
		byteOff += r.N
		pos += r.N
	}
	return out
}

// ToImport turns a wire op back into internal form, allocating pool bytes
// for literal text or constructing a placeholder for an Unknown run.
func (c *Container) ToImport(w optypes.WireOpContent) (optypes.OpContent, error) {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch op := w.(type) {
	case optypes.WireListInsert:
		if op.Unknown {
			return optypes.ListInsert{Slice: pool.PlaceholderOf(op.Len), Pos: op.Pos}, nil
		}
		return optypes.ListInsert{Slice: c.sp.Alloc(op.Text), Pos: op.Pos}, nil
	case optypes.WireListDelete:
		return optypes.ListDelete{Pos: op.Pos, Len: op.Len, Signed: op.Signed}, nil
	default:
		return nil, crdterr.New(crdterr.ContainerTypeMismatch, "text %s: unsupported wire content %T", c.id, w)
	}
}

// MaybeGC recomputes the backing pool's liveness bitmap from this
// container's current tree if the pool has grown enough relative to live
// content to warrant it (per StringPool.NeedsGC). A no-op otherwise.
// Called before a gc-mode export so ToExport's alive/dead split reflects
// the document's current state rather than whatever the last GC saw.
func (c *Container) MaybeGC() {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	var live []pool.SliceRange
	liveLen := 0
	for cur := c.tree.Iter(); cur.Next(); {
		a := cur.Item()
		if a.Range.Unknown {
			continue
		}
		live = append(live, a.Range)
		liveLen += a.Range.AtomLen()
	}
	if c.sp.NeedsGC(liveLen) {
		c.sp.GC(live)
	}
}

// SeedTracker builds a fresh tracker whose tracked sequence is exactly
// this container's current content, each atom already marked Applied via
// SeedVisible (no YATA integration needed: the container's own tree order
// is already correct). An import batch seeds one of these, tracks the
// batch's remote ops on top of it, then applies the resulting effects via
// ApplyEffects.
func (c *Container) SeedTracker() *tracker.Tracker {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := tracker.New(crdtid.VersionVector{})
	for cur := c.tree.Iter(); cur.Next(); {
		a := cur.Item()
		tr.SeedVisible(a.ID, nil, 0, a.Range)
	}
	return tr
}

// ApplyEffects materializes a tracker's positional effects onto the
// content tree, after an import batch has tracked its remote ops.
func (c *Container) ApplyEffects(effects []tracker.Effect) {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range effects {
		switch e.Kind {
		case tracker.EffectInsert:
			c.tree.Insert(e.Pos, atom{ID: e.ID, Range: e.Content})
		case tracker.EffectDelete:
			c.tree.DeleteRange(e.Pos, e.Pos+e.Len)
		}
	}
}

// BuildDiff composes effects — already materialized onto the tree by one
// or more ApplyEffects calls, in the order applied — into a single
// coalesced Diff expressed in the position space of the content as it
// stood before the first effect. Letting a caller accumulate effects
// across an entire import batch before calling this once is what turns
// several changes' worth of edits into one event per import call instead
// of one per underlying change.
func (c *Container) BuildDiff(effects []tracker.Effect) event.Diff {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	var d event.Delta
	origCursor, netShift := 0, 0
	for _, e := range effects {
		origPos := e.Pos - netShift
		switch e.Kind {
		case tracker.EffectInsert:
			d = d.RetainOp(origPos - origCursor).InsertOp(c.effectText(e.Content))
			origCursor = origPos
			netShift += e.Content.AtomLen()
		case tracker.EffectDelete:
			d = d.RetainOp(origPos - origCursor).DeleteOp(e.Len)
			origCursor = origPos + e.Len
			netShift -= e.Len
		}
	}
	return event.Diff{Kind: event.DiffText, Text: d}
}

// effectText renders an inserted effect's content as text for delivery to
// subscribers. A range arriving Unknown means the sending peer GC'd those
// bytes before this peer ever saw them live — there is no real text to
// report, so a same-length placeholder keeps downstream cursor math
// correct at the cost of delivering content no subscriber should trust.
func (c *Container) effectText(r pool.SliceRange) string {
	if r.Unknown {
		return strings.Repeat("\x00", r.AtomLen())
	}
	return c.sp.GetStr(r)
}

// Notify delivers d to this container's subscribers, if any are
// registered. Exported so a caller outside this package — an import batch
// aggregating effects across several changes — can deliver one coalesced
// event per batch instead of one per underlying change.
func (c *Container) Notify(d event.Diff) {
	c.notify(d)
}

// DebugInspect renders a one-line summary of the container's tree shape,
// mirroring LogStore.DebugInspect's naming.
func (c *Container) DebugInspect() string {
	lockcheck.EnterAmbient(lockcheck.ContainerLock)
	defer lockcheck.ExitAmbient()
	c.mu.Lock()
	defer c.mu.Unlock()

	items := 0
	for cur := c.tree.Iter(); cur.Next(); {
		items++
	}
	return fmt.Sprintf("Container %s: atoms=%d items=%d", c.id, c.tree.Len(), items)
}

func (c *Container) notify(d event.Diff) {
	if c.hier == nil {
		return
	}
	c.hier.Notify(c.id, d)
}
