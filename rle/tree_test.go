package rle_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cshekharsharma/crdtcore/rle"
)

// span is a minimal Item: a contiguous integer run [Start, Start+N), used
// so these tests exercise coalescence/splitting without depending on a
// real container's atom type.
type span struct {
	Start, N int
}

func (s span) AtomLen() int { return s.N }

func (s span) Slice(from, to int) span {
	return span{Start: s.Start + from, N: to - from}
}

func (s span) IsMergeable(other span) bool {
	return s.Start+s.N == other.Start
}

func (s span) Merge(other span) span {
	return span{Start: s.Start, N: s.N + other.N}
}

func collect(t *rle.Tree[span]) []span {
	var out []span
	for c := t.Iter(); c.Next(); {
		out = append(out, c.Item())
	}
	return out
}

func totalLen(items []span) int {
	n := 0
	for _, it := range items {
		n += it.AtomLen()
	}
	return n
}

func TestInsertCoalescesAdjacentRuns(t *testing.T) {
	tree := rle.New[span](nil)
	tree.Insert(0, span{Start: 0, N: 5})
	tree.Insert(5, span{Start: 5, N: 3})

	items := collect(tree)
	require.Equal(t, []span{{Start: 0, N: 8}}, items)
	require.Equal(t, 8, tree.Len())
}

func TestInsertMiddleSplitsCoveringItem(t *testing.T) {
	tree := rle.New[span](nil)
	tree.Insert(0, span{Start: 0, N: 10})
	// A non-contiguous run inserted in the middle must split the run
	// rather than merge into it.
	tree.Insert(5, span{Start: 100, N: 1})

	items := collect(tree)
	require.Equal(t, []span{{Start: 0, N: 5}, {Start: 100, N: 1}, {Start: 5, N: 5}}, items)
	require.Equal(t, 11, tree.Len())
}

func TestInsertTriggersLeafSplit(t *testing.T) {
	tree := rle.New[span](nil)
	// Each insertion uses a disjoint Start so nothing coalesces, forcing
	// the leaf past MaxChildren and into a split.
	for i := 0; i < rle.MaxChildren+3; i++ {
		tree.Insert(tree.Len(), span{Start: i * 100, N: 1})
	}
	require.Equal(t, rle.MaxChildren+3, tree.Len())
	require.Len(t, collect(tree), rle.MaxChildren+3)
}

func TestNotifyFiresOnInsertAndRelocatesOnSplit(t *testing.T) {
	var calls []struct {
		item span
		leaf *rle.Leaf[span]
	}
	tree := rle.New[span](func(item span, leaf *rle.Leaf[span]) {
		calls = append(calls, struct {
			item span
			leaf *rle.Leaf[span]
		}{item, leaf})
	})

	for i := 0; i < rle.MaxChildren+3; i++ {
		tree.Insert(tree.Len(), span{Start: i * 100, N: 1})
	}
	require.NotEmpty(t, calls)
	// Each split re-reports the items it moves to the new leaf, so there
	// are more notifications than inserts.
	require.Greater(t, len(calls), rle.MaxChildren+3)
	last := calls[len(calls)-1]
	require.Equal(t, span{Start: (rle.MaxChildren + 2) * 100, N: 1}, last.item)
	require.NotNil(t, last.leaf)
}

func TestDeleteRangeDropsFullyCoveredAndTrimsPartial(t *testing.T) {
	tree := rle.New[span](nil)
	tree.Insert(0, span{Start: 0, N: 20})
	tree.DeleteRange(5, 15)

	items := collect(tree)
	require.Equal(t, []span{{Start: 0, N: 5}, {Start: 15, N: 5}}, items)
	require.Equal(t, 10, tree.Len())
}

func TestDeleteRangeAcrossLeaves(t *testing.T) {
	tree := rle.New[span](nil)
	for i := 0; i < rle.MaxChildren+5; i++ {
		tree.Insert(tree.Len(), span{Start: i * 10, N: 1})
	}
	total := tree.Len()
	tree.DeleteRange(2, total-2)

	items := collect(tree)
	require.Equal(t, []span{
		{Start: 0, N: 1},
		{Start: 10, N: 1},
		{Start: (rle.MaxChildren + 3) * 10, N: 1},
		{Start: (rle.MaxChildren + 4) * 10, N: 1},
	}, items)
}

func TestFindPosBoundaries(t *testing.T) {
	tree := rle.New[span](nil)
	tree.Insert(0, span{Start: 0, N: 10})

	_, _, _, pos := tree.FindPos(0)
	require.Equal(t, rle.Before, pos)

	_, _, offset, pos := tree.FindPos(5)
	require.Equal(t, rle.Middle, pos)
	require.Equal(t, 5, offset)

	_, _, _, pos = tree.FindPos(10)
	require.Equal(t, rle.After, pos)
}

func TestIterFromStartsAtIndex(t *testing.T) {
	tree := rle.New[span](nil)
	tree.Insert(0, span{Start: 0, N: 5})
	tree.Insert(5, span{Start: 50, N: 5})

	c := tree.IterFrom(5)
	require.True(t, c.Next())
	require.Equal(t, span{Start: 50, N: 5}, c.Item())
}

func TestUpdateAtTransformsInPlaceRange(t *testing.T) {
	tree := rle.New[span](nil)
	tree.Insert(0, span{Start: 0, N: 10})

	delta := tree.UpdateAt(2, 3, func(s span) span {
		return span{Start: s.Start + 1000, N: s.N}
	})
	require.Equal(t, 0, delta)

	items := collect(tree)
	require.Equal(t, []span{{Start: 0, N: 2}, {Start: 1002, N: 3}, {Start: 5, N: 5}}, items)
}

// TestPropertyLengthInvariant checks that after an arbitrary sequence of
// inserts and deletes, Len() always equals the sum of the atom lengths of
// the items actually reachable by iteration.
func TestPropertyLengthInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tree := rle.New[span](nil)
		nextID := 0
		ops := rapid.SliceOfN(rapid.IntRange(0, 1), 1, 40).Draw(rt, "ops")
		for _, op := range ops {
			length := tree.Len()
			if op == 0 || length == 0 {
				idx := 0
				if length > 0 {
					idx = rapid.IntRange(0, length).Draw(rt, "insertAt")
				}
				tree.Insert(idx, span{Start: nextID * 1000, N: 1})
				nextID++
				continue
			}
			from := rapid.IntRange(0, length-1).Draw(rt, "delFrom")
			to := rapid.IntRange(from+1, length).Draw(rt, "delTo")
			tree.DeleteRange(from, to)
		}
		items := collect(tree)
		require.Equal(t, tree.Len(), totalLen(items))
	})
}
