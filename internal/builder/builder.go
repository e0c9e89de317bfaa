package builder

import (
	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
)

// Builder receives the logical changes of committed transactions.
//
// For every transaction that is not rolled back the calls arrive as
// ProcessBegin, zero or more row or DDL calls, then exactly one
// ProcessCommit. Transactions are delivered in non-decreasing commit SCN
// order. ProcessCheckpoint may be called between transactions.
//
// obj is nil when the table is not known to the catalog.
type Builder interface {
	ProcessBegin(scn redo.SCN, tm redo.Time, xid redo.XID) error
	ProcessInsert(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, after []opcode.Column) error
	ProcessUpdate(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, before, after []opcode.Column) error
	ProcessDelete(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, before []opcode.Column) error
	ProcessDDL(obj *catalog.Object, dataObj uint32, ddlType, seq uint16, operation, sql string) error
	ProcessCommit(system bool) error
	ProcessCheckpoint(scn redo.SCN, tm redo.Time, sequence uint32, offset uint64, redo bool) error
	Flush() error
}

// Sink accepts finished messages. *ringbuf.Buffer is the usual sink.
type Sink interface {
	Write(msg []byte) error
}
