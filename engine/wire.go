package engine

import (
	"encoding/json"

	"github.com/cshekharsharma/crdtcore/crdterr"
	"github.com/cshekharsharma/crdtcore/crdtid"
	"github.com/cshekharsharma/crdtcore/oplog"
	"github.com/cshekharsharma/crdtcore/optypes"
)

// The wire format is a concrete JSON envelope over oplog's Change/RemoteOp
// shapes, explicitly not guaranteed stable across versions: it exists to
// exercise export/import round-trips, not as a durable interchange
// contract. encoding/json cannot marshal optypes.WireOpContent's interface
// field directly, so jsonOp tags each op with a kind string and carries
// exactly one of Insert/Delete.

type jsonEnvelope struct {
	Changes map[uint64][]jsonChange `json:"changes"`
}

type jsonID struct {
	Peer    uint64 `json:"peer"`
	Counter int32  `json:"counter"`
}

type jsonChange struct {
	Peer      uint64    `json:"peer"`
	Counter   int32     `json:"counter"`
	Deps      []jsonID  `json:"deps"`
	Lamport   uint32    `json:"lamport"`
	Timestamp int64     `json:"timestamp"`
	Ops       []jsonOp  `json:"ops"`
}

type jsonOp struct {
	ContainerID string          `json:"containerId"`
	Kind        string          `json:"kind"`
	Insert      *jsonListInsert `json:"insert,omitempty"`
	Delete      *jsonListDelete `json:"delete,omitempty"`
}

type jsonListInsert struct {
	Text    string `json:"text,omitempty"`
	Unknown bool   `json:"unknown,omitempty"`
	Len     int    `json:"len,omitempty"`
	Pos     int    `json:"pos"`
}

type jsonListDelete struct {
	Pos    int  `json:"pos"`
	Len    int  `json:"len"`
	Signed bool `json:"signed,omitempty"`
}

// Export returns the JSON-encoded set of changes the caller (holding
// remoteVV) has not yet seen.
func (e *Engine) Export(remoteVV crdtid.VersionVector) ([]byte, error) {
	batch, err := e.store.Export(remoteVV)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toEnvelope(batch))
}

// Import ingests a JSON-encoded batch produced by another Engine's Export.
func (e *Engine) Import(data []byte) error {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return crdterr.Wrap(crdterr.Corruption, err, "engine: malformed import envelope")
	}
	batch, err := fromEnvelope(env)
	if err != nil {
		return err
	}
	return e.store.Import(batch)
}

func toEnvelope(batch map[uint64][]oplog.WireChange) jsonEnvelope {
	env := jsonEnvelope{Changes: make(map[uint64][]jsonChange, len(batch))}
	for peer, changes := range batch {
		out := make([]jsonChange, 0, len(changes))
		for _, c := range changes {
			out = append(out, jsonChange{
				Peer:      c.Peer,
				Counter:   c.Counter,
				Deps:      toJSONIDs(c.Deps),
				Lamport:   c.Lamport,
				Timestamp: c.Timestamp,
				Ops:       toJSONOps(c.Ops),
			})
		}
		env.Changes[peer] = out
	}
	return env
}

func fromEnvelope(env jsonEnvelope) (map[uint64][]oplog.WireChange, error) {
	batch := make(map[uint64][]oplog.WireChange, len(env.Changes))
	for peer, changes := range env.Changes {
		out := make([]oplog.WireChange, 0, len(changes))
		for _, c := range changes {
			ops, err := fromJSONOps(c.Ops)
			if err != nil {
				return nil, err
			}
			out = append(out, oplog.WireChange{
				Peer:      c.Peer,
				Counter:   c.Counter,
				Deps:      fromJSONIDs(c.Deps),
				Lamport:   c.Lamport,
				Timestamp: c.Timestamp,
				Ops:       ops,
			})
		}
		batch[peer] = out
	}
	return batch, nil
}

func toJSONIDs(ids []crdtid.ID) []jsonID {
	out := make([]jsonID, 0, len(ids))
	for _, id := range ids {
		out = append(out, jsonID{Peer: id.Peer, Counter: id.Counter})
	}
	return out
}

func fromJSONIDs(ids []jsonID) []crdtid.ID {
	out := make([]crdtid.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, crdtid.ID{Peer: id.Peer, Counter: id.Counter})
	}
	return out
}

func toJSONOps(ops []oplog.WireOp) []jsonOp {
	out := make([]jsonOp, 0, len(ops))
	for _, op := range ops {
		j := jsonOp{ContainerID: op.ContainerID}
		switch content := op.Content.(type) {
		case optypes.WireListInsert:
			j.Kind = "insert"
			j.Insert = &jsonListInsert{Text: content.Text, Unknown: content.Unknown, Len: content.Len, Pos: content.Pos}
		case optypes.WireListDelete:
			j.Kind = "delete"
			j.Delete = &jsonListDelete{Pos: content.Pos, Len: content.Len, Signed: content.Signed}
		}
		out = append(out, j)
	}
	return out
}

func fromJSONOps(ops []jsonOp) ([]oplog.WireOp, error) {
	out := make([]oplog.WireOp, 0, len(ops))
	for _, j := range ops {
		var content optypes.WireOpContent
		switch j.Kind {
		case "insert":
			if j.Insert == nil {
				return nil, crdterr.New(crdterr.Corruption, "engine: insert op missing its payload")
			}
			content = optypes.WireListInsert{Text: j.Insert.Text, Unknown: j.Insert.Unknown, Len: j.Insert.Len, Pos: j.Insert.Pos}
		case "delete":
			if j.Delete == nil {
				return nil, crdterr.New(crdterr.Corruption, "engine: delete op missing its payload")
			}
			content = optypes.WireListDelete{Pos: j.Delete.Pos, Len: j.Delete.Len, Signed: j.Delete.Signed}
		default:
			return nil, crdterr.New(crdterr.Corruption, "engine: unknown op kind %q", j.Kind)
		}
		out = append(out, oplog.WireOp{ContainerID: j.ContainerID, Content: content})
	}
	return out, nil
}
