package engine

import (
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/txn"
)

// pairer matches the undo and redo halves of row changes within one
// record. Either half may come first.
type pairer struct {
	undo *opcode.Undo
	row  *opcode.Row
}

// linked reports whether the redo half refers to the undo record. A KTB
// without an undo address matches positionally.
func linked(u *opcode.Undo, r *opcode.Row) bool {
	if r.KTB == nil || r.KTB.UBA == 0 {
		return true
	}
	return r.KTB.UBA == u.UBA
}

// addUndo returns a completed pair, if any, and the undo record it
// displaced.
func (p *pairer) addUndo(u *opcode.Undo) (pair *rowPair, dropped opcode.Op) {
	if u.KDO == nil {
		return nil, nil
	}
	if p.row != nil && linked(u, p.row) {
		pair = &rowPair{undo: u, row: p.row}
		p.row = nil
		return pair, nil
	}
	if p.undo != nil {
		dropped = p.undo
	}
	p.undo = u
	return nil, dropped
}

func (p *pairer) addRow(r *opcode.Row) (pair *rowPair, dropped opcode.Op) {
	if p.undo != nil && linked(p.undo, r) {
		pair = &rowPair{undo: p.undo, row: r}
		p.undo = nil
		return pair, nil
	}
	if p.row != nil {
		dropped = p.row
	}
	p.row = r
	return nil, dropped
}

// leftover returns the unmatched halves at the end of a record.
func (p *pairer) leftover() []opcode.Op {
	var out []opcode.Op
	if p.undo != nil {
		out = append(out, p.undo)
	}
	if p.row != nil {
		out = append(out, p.row)
	}
	p.undo, p.row = nil, nil
	return out
}

type rowPair struct {
	undo *opcode.Undo
	row  *opcode.Row
}

func (p *rowPair) xid() redo.XID {
	if p.undo.XID != 0 {
		return p.undo.XID
	}
	return p.row.KTB.XID
}

// operation turns the pair into a logical change. Redo IRP undone by DRP
// is an insert, redo DRP undone by IRP a delete and URP undone by URP an
// update. Other combinations (locks, row migration, rollback records)
// carry no logical change and yield nil.
func (p *rowPair) operation() *txn.Operation {
	if p.row.KDO.XType == opcode.XTypeRollback {
		return nil
	}

	op := &txn.Operation{
		Obj:     p.undo.KTUB.Obj,
		DataObj: p.undo.KTUB.DataObj,
		BDBA:    p.row.KDO.BDBA,
		Slot:    p.row.KDO.Slot,
		UBA:     p.undo.UBA,
	}

	switch {
	case p.row.KDO.Op == opcode.KDOIRP && p.undo.KDO.Op == opcode.KDODRP:
		op.Kind = txn.OpInsert
		op.After = p.row.KDO.Columns
	case p.row.KDO.Op == opcode.KDODRP && p.undo.KDO.Op == opcode.KDOIRP:
		op.Kind = txn.OpDelete
		op.Before = p.undo.KDO.Columns
	case p.row.KDO.Op == opcode.KDOURP && p.undo.KDO.Op == opcode.KDOURP:
		op.Kind = txn.OpUpdate
		op.Before = p.undo.KDO.Columns
		op.After = p.row.KDO.Columns
	default:
		return nil
	}
	return op
}
