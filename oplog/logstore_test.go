package oplog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/oplog"
	"github.com/cshekharsharma/crdtcore/optypes"
	"github.com/cshekharsharma/crdtcore/pool"
	"github.com/cshekharsharma/crdtcore/text"
)

// changeAtomLen sums the atom length a Change's ops occupy, the same way
// Change.contentLen does internally, using only exported fields so tests
// outside the package can assert on it.
func changeAtomLen(c oplog.Change) int {
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

func newStore(peer uint64) *oplog.LogStore {
	return oplog.New(peer, func() int64 { return 0 }, oplog.DefaultGcConfig(), nil)
}

func newDoc(ls *oplog.LogStore, id string) *text.Container {
	c := text.New(id, pool.New(), ls, nil, nil)
	ls.RegisterContainer(c)
	return c
}

func TestInsertTextAppendsChangeAndExtendsVV(t *testing.T) {
	ls := newStore(1)
	newDoc(ls, "doc")

	_, err := ls.InsertText("doc", 0, "hello")
	require.NoError(t, err)

	require.Equal(t, int32(5), ls.VV().Get(1))
}

func TestInsertTextUnknownContainerErrors(t *testing.T) {
	ls := newStore(1)
	_, err := ls.InsertText("missing", 0, "x")
	require.Error(t, err)
}

func TestContiguousLocalInsertsMergeIntoOneChange(t *testing.T) {
	ls := newStore(1)
	newDoc(ls, "doc")

	_, err := ls.InsertText("doc", 0, "ab")
	require.NoError(t, err)
	_, err = ls.InsertText("doc", 2, "cd")
	require.NoError(t, err)

	change, ok := ls.LookupChange(crdtid.ID{Peer: 1, Counter: 0})
	require.True(t, ok)
	require.Equal(t, crdtid.ID{Peer: 1, Counter: 0}, change.ID)
	require.Equal(t, 4, changeAtomLen(change))

	// Counter 2 (the first atom of the second insert) falls inside the
	// same merged change.
	same, ok := ls.LookupChange(crdtid.ID{Peer: 1, Counter: 2})
	require.True(t, ok)
	require.Equal(t, change.ID, same.ID)
}

func TestExportResetsMergeabilitySoFollowingInsertStartsNewChange(t *testing.T) {
	ls := newStore(1)
	newDoc(ls, "doc")

	_, err := ls.InsertText("doc", 0, "ab")
	require.NoError(t, err)

	_, err = ls.Export(crdtid.VersionVector{})
	require.NoError(t, err)

	_, err = ls.InsertText("doc", 2, "cd")
	require.NoError(t, err)

	first, ok := ls.LookupChange(crdtid.ID{Peer: 1, Counter: 0})
	require.True(t, ok)
	require.Equal(t, 2, changeAtomLen(first))

	second, ok := ls.LookupChange(crdtid.ID{Peer: 1, Counter: 2})
	require.True(t, ok)
	require.Equal(t, 2, changeAtomLen(second))
	require.NotEqual(t, first.ID, second.ID)
}

func TestContainsIDAndCmpFrontiers(t *testing.T) {
	ls := newStore(1)
	newDoc(ls, "doc")
	_, err := ls.InsertText("doc", 0, "abc")
	require.NoError(t, err)

	require.True(t, ls.ContainsID(crdtid.ID{Peer: 1, Counter: 2}))
	require.False(t, ls.ContainsID(crdtid.ID{Peer: 1, Counter: 3}))

	require.Equal(t, oplog.FrontierAhead, ls.CmpFrontiers(crdtid.Frontiers{{Peer: 1, Counter: 0}}))
	require.Equal(t, oplog.FrontierBehindOrConcurrent, ls.CmpFrontiers(crdtid.Frontiers{{Peer: 1, Counter: 99}}))
}

func TestDebugInspectReportsCounts(t *testing.T) {
	ls := newStore(1)
	newDoc(ls, "doc")
	_, err := ls.InsertText("doc", 0, "abc")
	require.NoError(t, err)

	require.Contains(t, ls.DebugInspect(), "changes=1")
}
