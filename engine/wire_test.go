package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/oplog"
	"github.com/cshekharsharma/crdtcore/optypes"
)

func genWireChange(rt *rapid.T) oplog.WireChange {
	numDeps := rapid.IntRange(0, 3).Draw(rt, "numDeps")
	deps := make([]crdtid.ID, numDeps)
	for i := range deps {
		deps[i] = crdtid.ID{
			Peer:    rapid.Uint64Range(1, 5).Draw(rt, "depPeer"),
			Counter: rapid.Int32Range(0, 100).Draw(rt, "depCounter"),
		}
	}

	numOps := rapid.IntRange(1, 3).Draw(rt, "numOps")
	ops := make([]oplog.WireOp, numOps)
	for i := range ops {
		if rapid.Bool().Draw(rt, "isInsert") {
			ops[i] = oplog.WireOp{
				ContainerID: rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "containerID"),
				Content: optypes.WireListInsert{
					Text:    rapid.StringMatching(`[a-zA-Z ]{0,10}`).Draw(rt, "text"),
					Unknown: rapid.Bool().Draw(rt, "unknown"),
					Len:     rapid.IntRange(0, 10).Draw(rt, "len"),
					Pos:     rapid.IntRange(0, 100).Draw(rt, "pos"),
				},
			}
		} else {
			ops[i] = oplog.WireOp{
				ContainerID: rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "containerID"),
				Content: optypes.WireListDelete{
					Pos:    rapid.IntRange(0, 100).Draw(rt, "delPos"),
					Len:    rapid.IntRange(0, 100).Draw(rt, "delLen"),
					Signed: rapid.Bool().Draw(rt, "signed"),
				},
			}
		}
	}

	return oplog.WireChange{
		Peer:      rapid.Uint64Range(1, 5).Draw(rt, "peer"),
		Counter:   rapid.Int32Range(0, 1000).Draw(rt, "counter"),
		Deps:      deps,
		Lamport:   rapid.Uint32Range(0, 1000).Draw(rt, "lamport"),
		Timestamp: rapid.Int64Range(0, 1<<40).Draw(rt, "timestamp"),
		Ops:       ops,
	}
}

// TestPropertyEnvelopeRoundTripsWireChanges checks that toEnvelope followed
// by fromEnvelope reconstructs an arbitrary batch of WireChanges exactly,
// including the tagged-union encoding of insert vs delete op content.
func TestPropertyEnvelopeRoundTripsWireChanges(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numPeers := rapid.IntRange(1, 3).Draw(rt, "numPeers")
		batch := make(map[uint64][]oplog.WireChange, numPeers)
		for i := 0; i < numPeers; i++ {
			peer := uint64(i + 1)
			numChanges := rapid.IntRange(0, 3).Draw(rt, "numChanges")
			changes := make([]oplog.WireChange, numChanges)
			for j := range changes {
				changes[j] = genWireChange(rt)
			}
			batch[peer] = changes
		}

		env := toEnvelope(batch)
		back, err := fromEnvelope(env)
		require.NoError(t, err)
		require.Equal(t, batch, back)
	})
}
