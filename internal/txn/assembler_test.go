package txn

import (
	"testing"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/redotest"
	"github.com/redocdc/redocdc/internal/systxn"
	"github.com/redocdc/redocdc/internal/value"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	cat *catalog.Catalog
	rec *redotest.Recorder
	asm *Assembler
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	c, err := redotest.SeededCatalog()
	require.NoError(t, err)
	require.NoError(t, redotest.UserTable(c, "HR", 100, 55, 56, "T1", "ID", "NAME"))

	rec := &redotest.Recorder{}
	return &env{
		cat: c,
		rec: rec,
		asm: NewAssembler(c, systxn.NewHandler(c, nil), rec, opts),
	}
}

func insertOp(rec uint8, id int64) *Operation {
	return &Operation{
		Kind:    OpInsert,
		Obj:     55,
		DataObj: 56,
		BDBA:    0x01000080,
		Slot:    uint16(id),
		UBA:     redo.NewUBA(0x00C00010, 5, rec),
		After: []opcode.Column{
			{Index: 0, Data: value.EncodeNumber(decimal.NewFromInt(id))},
			{Index: 1, Data: []byte("row")},
		},
	}
}

func TestInsertCommit(t *testing.T) {
	e := newEnv(t, Options{})
	xid := redo.NewXID(1, 2, 100)
	other := redo.NewXID(3, 4, 5)

	require.NoError(t, e.asm.Begin(xid, 490))
	require.NoError(t, e.asm.Begin(other, 491))
	require.NoError(t, e.asm.Append(xid, 495, insertOp(1, 1)))
	e.asm.Commit(xid, 500, 0)
	require.NoError(t, e.asm.FlushAll())

	assert.Equal(t, []string{"begin", "insert", "commit"}, e.rec.Methods())
	assert.Equal(t, redo.SCN(500), e.rec.Calls[0].SCN)
	assert.Equal(t, xid, e.rec.Calls[0].XID)
	assert.Equal(t, "HR.T1", e.rec.Calls[1].Table)
	assert.Equal(t, xid, e.rec.Calls[1].XID)
	assert.False(t, e.rec.Calls[2].System)

	assert.Equal(t, 1, e.asm.Open())
	assert.Equal(t, redo.SCN(491), e.asm.OldestSCN())
}

func TestRollbackToSavepoint(t *testing.T) {
	e := newEnv(t, Options{})
	xid := redo.NewXID(1, 2, 100)

	for i := uint8(1); i <= 4; i++ {
		require.NoError(t, e.asm.Append(xid, 100, insertOp(i, int64(i))))
	}
	e.asm.RollbackTo(xid, redo.NewUBA(0x00C00010, 5, 3))

	tx, ok := e.asm.Get(xid)
	require.True(t, ok)
	require.Len(t, tx.Ops, 2)

	e.asm.Commit(xid, 200, 0)
	require.NoError(t, e.asm.FlushAll())
	assert.Equal(t, []string{"begin", "insert", "insert", "commit"}, e.rec.Methods())
	assert.Equal(t, uint16(1), e.rec.Calls[1].Slot)
	assert.Equal(t, uint16(2), e.rec.Calls[2].Slot)
}

func TestUndoApplied(t *testing.T) {
	e := newEnv(t, Options{})
	xid := redo.NewXID(1, 2, 100)

	for i := uint8(1); i <= 3; i++ {
		require.NoError(t, e.asm.Append(xid, 100, insertOp(i, int64(i))))
	}
	e.asm.UndoApplied(xid, redo.NewUBA(0x00C00010, 5, 2))
	e.asm.UndoApplied(xid, redo.NewUBA(0x00C00010, 5, 9))

	tx, _ := e.asm.Get(xid)
	require.Len(t, tx.Ops, 2)
	assert.Equal(t, uint16(1), tx.Ops[0].Slot)
	assert.Equal(t, uint16(3), tx.Ops[1].Slot)
}

func TestFullRollback(t *testing.T) {
	e := newEnv(t, Options{})
	xid := redo.NewXID(1, 2, 100)

	require.NoError(t, e.asm.Begin(xid, 10))
	require.NoError(t, e.asm.Append(xid, 11, insertOp(1, 1)))
	e.asm.Rollback(xid)
	e.asm.Commit(xid, 12, 0)
	require.NoError(t, e.asm.FlushAll())

	assert.Empty(t, e.rec.Calls)
	assert.Equal(t, 0, e.asm.Open())
}

func TestCommitOrderBySCN(t *testing.T) {
	e := newEnv(t, Options{})
	a := redo.NewXID(1, 1, 1)
	b := redo.NewXID(2, 2, 2)
	c := redo.NewXID(3, 3, 3)

	for _, x := range []redo.XID{a, b, c} {
		require.NoError(t, e.asm.Append(x, 10, insertOp(1, 1)))
	}
	e.asm.Commit(b, 300, 0)
	e.asm.Commit(a, 200, 0)
	e.asm.Commit(c, 300, 0)

	require.NoError(t, e.asm.Flush(250))
	require.Len(t, e.rec.Calls, 3)
	assert.Equal(t, a, e.rec.Calls[0].XID)
	assert.Equal(t, 2, e.asm.Queued())

	require.NoError(t, e.asm.FlushAll())
	var order []redo.XID
	for _, call := range e.rec.Calls {
		if call.Method == "begin" {
			order = append(order, call.XID)
		}
	}
	assert.Equal(t, []redo.XID{a, b, c}, order)
	assert.Equal(t, 0, e.asm.Queued())
}

func TestResourceExhausted(t *testing.T) {
	e := newEnv(t, Options{MaxTransactions: 2})

	require.NoError(t, e.asm.Begin(redo.NewXID(1, 1, 1), 1))
	require.NoError(t, e.asm.Begin(redo.NewXID(1, 1, 2), 1))
	require.NoError(t, e.asm.Append(redo.NewXID(1, 1, 2), 1, insertOp(1, 1)))

	err := e.asm.Begin(redo.NewXID(1, 1, 3), 1)
	require.Error(t, err)
	assert.True(t, IsResourceExhaustedError(err))
	assert.Equal(t, 2, e.asm.Open())
}

func TestUnknownObject(t *testing.T) {
	e := newEnv(t, Options{})
	xid := redo.NewXID(1, 2, 100)

	op := insertOp(1, 1)
	op.Obj, op.DataObj = 999, 998
	require.NoError(t, e.asm.Append(xid, 1, op))
	e.asm.Commit(xid, 2, 0)
	require.NoError(t, e.asm.FlushAll())

	assert.Equal(t, "OBJ_998", e.rec.Calls[1].Table)
}

func TestFilter(t *testing.T) {
	e := newEnv(t, Options{
		Filter: func(obj *catalog.Object, dataObj uint32) bool {
			return obj != nil && obj.Owner == "APP"
		},
	})
	xid := redo.NewXID(1, 2, 100)

	require.NoError(t, e.asm.Append(xid, 1, insertOp(1, 1)))
	e.asm.Commit(xid, 2, 0)
	require.NoError(t, e.asm.FlushAll())

	assert.Equal(t, []string{"begin", "commit"}, e.rec.Methods())
}

func TestSystemTransaction(t *testing.T) {
	e := newEnv(t, Options{})
	xid := redo.NewXID(9, 9, 9)

	// CREATE TABLE HR.T2: OBJ$ row then DDL text
	num := func(n int64) []byte { return value.EncodeNumber(decimal.NewFromInt(n)) }
	require.NoError(t, e.asm.Append(xid, 1, &Operation{
		Kind:    OpInsert,
		Obj:     catalog.ObjOBJ,
		DataObj: catalog.ObjOBJ,
		BDBA:    0x00400400,
		Slot:    1,
		After: []opcode.Column{
			{Index: 0, Data: num(60)},
			{Index: 1, Data: num(60)},
			{Index: 2, Data: num(100)},
			{Index: 3, Data: []byte("T2")},
			{Index: 4, Data: num(2)},
		},
	}))
	require.NoError(t, e.asm.Append(xid, 1, &Operation{
		Kind: OpDDL,
		Obj:  60,
		DDL:  &opcode.DDL{Type: 1, Obj: 60, SQL: "create table t2 (id number)"},
	}))
	e.asm.Commit(xid, 3, 0)
	require.NoError(t, e.asm.FlushAll())

	assert.Equal(t, []string{"begin", "ddl", "commit"}, e.rec.Methods())
	assert.True(t, e.rec.Calls[2].System)
	assert.Equal(t, "create table t2 (id number)", e.rec.Calls[1].SQL)

	o, ok := e.cat.Object(60)
	require.True(t, ok)
	assert.Equal(t, "HR.T2", o.FullName())
	assert.False(t, e.cat.Touched)
}

func TestDDLOperation(t *testing.T) {
	assert.Equal(t, "CREATE TABLE", DDLOperation(1))
	assert.Equal(t, "TRUNCATE TABLE", DDLOperation(85))
	assert.Equal(t, "DDL 200", DDLOperation(200))
}
