package redotest

import (
	"fmt"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
)

// Call is one builder invocation captured by Recorder.
type Call struct {
	Method string
	Table  string
	XID    redo.XID
	SCN    redo.SCN
	Slot   uint16
	System bool
	SQL    string
	Before []opcode.Column
	After  []opcode.Column
	Offset uint64
	Seq    uint32
	Redo   bool
}

// Recorder is a builder that records every call.
type Recorder struct {
	Calls []Call
	Err   error
}

func tableName(obj *catalog.Object, dataObj uint32) string {
	if obj == nil {
		return fmt.Sprintf("OBJ_%d", dataObj)
	}
	return obj.FullName()
}

func (r *Recorder) record(c Call) error {
	r.Calls = append(r.Calls, c)
	return r.Err
}

// Methods returns the sequence of method names, for ordering checks.
func (r *Recorder) Methods() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Method
	}
	return out
}

func (r *Recorder) ProcessBegin(scn redo.SCN, tm redo.Time, xid redo.XID) error {
	return r.record(Call{Method: "begin", SCN: scn, XID: xid})
}

func (r *Recorder) ProcessInsert(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, after []opcode.Column) error {
	return r.record(Call{Method: "insert", Table: tableName(obj, dataObj), XID: xid, Slot: slot, After: after})
}

func (r *Recorder) ProcessUpdate(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, before, after []opcode.Column) error {
	return r.record(Call{Method: "update", Table: tableName(obj, dataObj), XID: xid, Slot: slot, Before: before, After: after})
}

func (r *Recorder) ProcessDelete(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, before []opcode.Column) error {
	return r.record(Call{Method: "delete", Table: tableName(obj, dataObj), XID: xid, Slot: slot, Before: before})
}

func (r *Recorder) ProcessDDL(obj *catalog.Object, dataObj uint32, ddlType, seq uint16, operation, sql string) error {
	return r.record(Call{Method: "ddl", Table: tableName(obj, dataObj), SQL: sql})
}

func (r *Recorder) ProcessCommit(system bool) error {
	return r.record(Call{Method: "commit", System: system})
}

func (r *Recorder) ProcessCheckpoint(scn redo.SCN, tm redo.Time, sequence uint32, offset uint64, isRedo bool) error {
	return r.record(Call{Method: "checkpoint", SCN: scn, Seq: sequence, Offset: offset, Redo: isRedo})
}

func (r *Recorder) Flush() error {
	return nil
}
