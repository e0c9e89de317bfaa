package builder

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/ringbuf"
	"github.com/redocdc/redocdc/internal/value"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSink struct {
	msgs [][]byte
	err  error
}

func (s *sliceSink) Write(msg []byte) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, append([]byte(nil), msg...))
	return nil
}

func (s *sliceSink) decode(t *testing.T, i int) Message {
	t.Helper()
	require.Greater(t, len(s.msgs), i)
	var m Message
	require.NoError(t, json.Unmarshal(s.msgs[i], &m))
	return m
}

func testObject() *catalog.Object {
	return &catalog.Object{
		Obj:   55,
		Owner: "HR",
		Name:  "EMP",
		Columns: []*catalog.Column{
			{Name: "ID", TypeNo: value.TypeNumber, SegCol: 1},
			{Name: "NAME", TypeNo: value.TypeVarchar2, SegCol: 2, CharsetID: value.CharsetAL32UTF8},
		},
	}
}

func cols(id int64, name string) []opcode.Column {
	return []opcode.Column{
		{Index: 0, Data: value.EncodeNumber(decimal.NewFromInt(id))},
		{Index: 1, Data: []byte(name)},
	}
}

var (
	xid = redo.NewXID(1, 2, 100)
	tm  = redo.NewTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
)

func TestTransactionMessage(t *testing.T) {
	sink := &sliceSink{}
	b := NewJSONBuilder(sink, JSONOptions{})

	require.NoError(t, b.ProcessBegin(500, tm, xid))
	require.NoError(t, b.ProcessInsert(testObject(), 56, 0x01000010, 3, xid, cols(1, "alice")))
	require.NoError(t, b.ProcessUpdate(testObject(), 56, 0x01000010, 3, xid,
		cols(1, "alice"), []opcode.Column{{Index: 1, Null: true}}))
	require.NoError(t, b.ProcessDelete(testObject(), 56, 0x01000010, 3, xid, cols(1, "")))
	assert.Empty(t, sink.msgs)
	require.NoError(t, b.ProcessCommit(false))

	require.Len(t, sink.msgs, 1)
	m := sink.decode(t, 0)
	assert.Equal(t, uint64(500), m.SCN)
	assert.Equal(t, xid.String(), m.XID)
	assert.Equal(t, tm.ToTime().UnixMilli(), m.Time)
	require.Len(t, m.Payload, 3)

	ins := m.Payload[0]
	assert.Equal(t, OpInsert, ins.Op)
	assert.Equal(t, &Schema{Owner: "HR", Table: "EMP", Obj: 55}, ins.Schema)
	assert.Equal(t, redo.RowID{DataObj: 56, DBA: 0x01000010, Slot: 3}.String(), ins.RowID)
	assert.Equal(t, map[string]any{"ID": "1", "NAME": "alice"}, ins.After)

	upd := m.Payload[1]
	assert.Equal(t, OpUpdate, upd.Op)
	assert.Equal(t, map[string]any{"NAME": nil}, upd.After)

	del := m.Payload[2]
	assert.Equal(t, OpDelete, del.Op)
	assert.Equal(t, map[string]any{"ID": "1", "NAME": nil}, del.Before)
	assert.Nil(t, del.After)
	assert.Equal(t, uint64(1), b.Messages())
}

func TestPerOperationMessages(t *testing.T) {
	sink := &sliceSink{}
	b := NewJSONBuilder(sink, JSONOptions{PerOperation: true})

	require.NoError(t, b.ProcessBegin(500, tm, xid))
	require.NoError(t, b.ProcessInsert(testObject(), 56, 0x01000010, 3, xid, cols(7, "bob")))
	require.NoError(t, b.ProcessCommit(false))

	require.Len(t, sink.msgs, 3)
	ops := []string{}
	for i := range sink.msgs {
		ops = append(ops, sink.decode(t, i).Payload[0].Op)
	}
	assert.Equal(t, []string{OpBegin, OpInsert, OpCommit}, ops)
}

func TestEmptyTransactionSkipped(t *testing.T) {
	for _, perOp := range []bool{false, true} {
		sink := &sliceSink{}
		b := NewJSONBuilder(sink, JSONOptions{PerOperation: perOp})
		require.NoError(t, b.ProcessBegin(10, tm, xid))
		require.NoError(t, b.ProcessCommit(false))
		assert.Empty(t, sink.msgs)
	}
}

func TestSystemTransactionHidden(t *testing.T) {
	sink := &sliceSink{}
	b := NewJSONBuilder(sink, JSONOptions{})
	require.NoError(t, b.ProcessBegin(10, tm, xid))
	require.NoError(t, b.ProcessDDL(testObject(), 56, 1, 1, "CREATE", "create table emp (id number)"))
	require.NoError(t, b.ProcessCommit(true))
	assert.Empty(t, sink.msgs)

	b = NewJSONBuilder(sink, JSONOptions{ShowSystem: true})
	require.NoError(t, b.ProcessBegin(10, tm, xid))
	require.NoError(t, b.ProcessDDL(testObject(), 56, 1, 1, "CREATE", "create table emp (id number)"))
	require.NoError(t, b.ProcessCommit(true))
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, "create table emp (id number)", sink.decode(t, 0).Payload[0].DDL)
}

func TestUnknownObject(t *testing.T) {
	sink := &sliceSink{}
	b := NewJSONBuilder(sink, JSONOptions{})
	require.NoError(t, b.ProcessBegin(10, tm, xid))
	require.NoError(t, b.ProcessInsert(nil, 77, 0x01000010, 0, xid, []opcode.Column{
		{Index: 0, Data: []byte{0xAB, 0x01}},
		{Index: 1, Null: true},
	}))
	require.NoError(t, b.ProcessCommit(false))

	p := sink.decode(t, 0).Payload[0]
	assert.Equal(t, "OBJ_77", p.Schema.Table)
	assert.Equal(t, map[string]any{"COL_0": "AB01", "COL_1": nil}, p.After)
}

func TestCheckpoint(t *testing.T) {
	sink := &sliceSink{}
	b := NewJSONBuilder(sink, JSONOptions{})
	require.NoError(t, b.ProcessCheckpoint(900, tm, 12, 4096, true))

	m := sink.decode(t, 0)
	assert.Equal(t, uint64(900), m.SCN)
	assert.Empty(t, m.XID)
	assert.Equal(t, Payload{Op: OpCheckpoint, Seq: 12, Offset: 4096, Redo: true}, m.Payload[0])

	hidden := &sliceSink{}
	b = NewJSONBuilder(hidden, JSONOptions{HideCheckpoint: true})
	require.NoError(t, b.ProcessCheckpoint(900, tm, 12, 4096, true))
	assert.Empty(t, hidden.msgs)
}

func TestSinkError(t *testing.T) {
	sink := &sliceSink{err: errors.New("closed")}
	b := NewJSONBuilder(sink, JSONOptions{})
	require.NoError(t, b.ProcessBegin(10, tm, xid))
	require.NoError(t, b.ProcessInsert(testObject(), 56, 1, 1, xid, cols(1, "x")))
	err := b.ProcessCommit(false)
	assert.ErrorIs(t, err, sink.err)
}

func TestRingBufferSink(t *testing.T) {
	buf := ringbuf.New(4096)
	b := NewJSONBuilder(buf, JSONOptions{})
	require.NoError(t, b.ProcessCheckpoint(1, tm, 1, 0, false))

	data, err := buf.Next()
	require.NoError(t, err)
	var m Message
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, OpCheckpoint, m.Payload[0].Op)
}
