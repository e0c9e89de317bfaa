package txn

import (
	"errors"
	"fmt"

	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
)

type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpUpdate
	OpDelete
	OpDDL
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpDDL:
		return "ddl"
	}
	return fmt.Sprintf("opkind(%d)", k)
}

// Operation is one logical row change assembled from an undo/redo pair.
type Operation struct {
	Kind    OpKind
	Obj     uint32
	DataObj uint32
	BDBA    uint32
	Slot    uint16
	// UBA of the undo record, used to match rollback markers.
	UBA    redo.UBA
	Before []opcode.Column
	After  []opcode.Column
	DDL    *opcode.DDL
}

func (o *Operation) RowID() redo.RowID {
	return redo.RowID{DataObj: o.DataObj, DBA: o.BDBA, Slot: o.Slot}
}

// Transaction buffers the operations of one open transaction.
type Transaction struct {
	XID      redo.XID
	Begin    bool // begin record seen
	FirstSCN redo.SCN
	Ops      []*Operation

	CommitSCN  redo.SCN
	CommitTime redo.Time
	seq        uint64
}

// rollbackTo drops every operation whose undo address is at or after uba.
func (t *Transaction) rollbackTo(uba redo.UBA) int {
	kept := t.Ops[:0]
	removed := 0
	for _, op := range t.Ops {
		if op.UBA.Compare(uba) >= 0 {
			removed++
			continue
		}
		kept = append(kept, op)
	}
	for i := len(kept); i < len(t.Ops); i++ {
		t.Ops[i] = nil
	}
	t.Ops = kept
	return removed
}

// undoApplied drops the operation with exactly uba.
func (t *Transaction) undoApplied(uba redo.UBA) bool {
	for i, op := range t.Ops {
		if op.UBA == uba {
			copy(t.Ops[i:], t.Ops[i+1:])
			t.Ops[len(t.Ops)-1] = nil
			t.Ops = t.Ops[:len(t.Ops)-1]
			return true
		}
	}
	return false
}

// ResourceExhaustedError is returned when the number of open transactions
// exceeds the configured ceiling.
type ResourceExhaustedError struct {
	Limit int
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("too many open transactions (limit %d)", e.Limit)
}

func NewResourceExhaustedError(limit int) *ResourceExhaustedError {
	return &ResourceExhaustedError{Limit: limit}
}

func IsResourceExhaustedError(err error) bool {
	var re *ResourceExhaustedError
	return errors.As(err, &re)
}
