package builder

import (
	"encoding/json"
	"fmt"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/value"
	"github.com/sirupsen/logrus"
)

const (
	OpBegin      = "begin"
	OpInsert     = "c"
	OpUpdate     = "u"
	OpDelete     = "d"
	OpDDL        = "ddl"
	OpCommit     = "commit"
	OpCheckpoint = "chkpt"
)

type Schema struct {
	Owner string `json:"owner,omitempty"`
	Table string `json:"table"`
	Obj   uint32 `json:"obj,omitempty"`
}

type Payload struct {
	Op     string         `json:"op"`
	Schema *Schema        `json:"schema,omitempty"`
	RowID  string         `json:"rid,omitempty"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
	DDL    string         `json:"ddl,omitempty"`
	Seq    uint32         `json:"seq,omitempty"`
	Offset uint64         `json:"offset,omitempty"`
	Redo   bool           `json:"redo,omitempty"`
}

// Message is one output record.
type Message struct {
	SCN     uint64    `json:"scn"`
	Time    int64     `json:"tm"`
	XID     string    `json:"xid,omitempty"`
	Payload []Payload `json:"payload"`
}

type JSONOptions struct {
	// PerOperation emits every change as its own message instead of one
	// message per transaction.
	PerOperation bool
	// ShowSystem includes transactions that only changed the catalog.
	ShowSystem     bool
	HideCheckpoint bool
}

// JSONBuilder serialises changes as JSON messages into a Sink.
type JSONBuilder struct {
	sink Sink
	opts JSONOptions
	log  *logrus.Entry

	scn redo.SCN
	tm  redo.Time
	xid redo.XID

	msg     *Message
	pending bool // begin seen, no change emitted yet
	count   uint64
}

func NewJSONBuilder(sink Sink, opts JSONOptions) *JSONBuilder {
	return &JSONBuilder{
		sink: sink,
		opts: opts,
		log:  logger.WithComponent("builder"),
	}
}

// Messages returns the number of messages written.
func (b *JSONBuilder) Messages() uint64 {
	return b.count
}

func (b *JSONBuilder) header() *Message {
	return &Message{
		SCN:  uint64(b.scn),
		Time: b.tm.ToTime().UnixMilli(),
		XID:  b.xid.String(),
	}
}

func (b *JSONBuilder) ProcessBegin(scn redo.SCN, tm redo.Time, xid redo.XID) error {
	b.scn, b.tm, b.xid = scn, tm, xid
	b.msg = nil
	b.pending = true
	return nil
}

// begin opens the transaction message on its first change. Empty
// transactions produce no output.
func (b *JSONBuilder) begin() error {
	if !b.pending {
		return nil
	}
	b.pending = false
	if !b.opts.PerOperation {
		b.msg = b.header()
		return nil
	}
	m := b.header()
	m.Payload = []Payload{{Op: OpBegin}}
	return b.emit(m)
}

func (b *JSONBuilder) add(p Payload) error {
	if err := b.begin(); err != nil {
		return err
	}
	if !b.opts.PerOperation {
		if b.msg == nil {
			b.msg = b.header()
		}
		b.msg.Payload = append(b.msg.Payload, p)
		return nil
	}
	m := b.header()
	m.Payload = []Payload{p}
	return b.emit(m)
}

func (b *JSONBuilder) ProcessInsert(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, after []opcode.Column) error {
	return b.add(Payload{
		Op:     OpInsert,
		Schema: schema(obj, dataObj),
		RowID:  rowID(dataObj, bdba, slot),
		After:  b.columns(obj, after),
	})
}

func (b *JSONBuilder) ProcessUpdate(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, before, after []opcode.Column) error {
	return b.add(Payload{
		Op:     OpUpdate,
		Schema: schema(obj, dataObj),
		RowID:  rowID(dataObj, bdba, slot),
		Before: b.columns(obj, before),
		After:  b.columns(obj, after),
	})
}

func (b *JSONBuilder) ProcessDelete(obj *catalog.Object, dataObj, bdba uint32, slot uint16, xid redo.XID, before []opcode.Column) error {
	return b.add(Payload{
		Op:     OpDelete,
		Schema: schema(obj, dataObj),
		RowID:  rowID(dataObj, bdba, slot),
		Before: b.columns(obj, before),
	})
}

func (b *JSONBuilder) ProcessDDL(obj *catalog.Object, dataObj uint32, ddlType, seq uint16, operation, sql string) error {
	return b.add(Payload{
		Op:     OpDDL,
		Schema: schema(obj, dataObj),
		DDL:    sql,
	})
}

func (b *JSONBuilder) ProcessCommit(system bool) error {
	defer func() {
		b.msg = nil
		b.pending = false
	}()

	if system && !b.opts.ShowSystem {
		return nil
	}
	if b.pending {
		return nil
	}

	if !b.opts.PerOperation {
		if b.msg == nil {
			return nil
		}
		return b.emit(b.msg)
	}
	m := b.header()
	m.Payload = []Payload{{Op: OpCommit}}
	return b.emit(m)
}

func (b *JSONBuilder) ProcessCheckpoint(scn redo.SCN, tm redo.Time, sequence uint32, offset uint64, isRedo bool) error {
	if b.opts.HideCheckpoint {
		return nil
	}
	return b.emit(&Message{
		SCN:  uint64(scn),
		Time: tm.ToTime().UnixMilli(),
		Payload: []Payload{{
			Op:     OpCheckpoint,
			Seq:    sequence,
			Offset: offset,
			Redo:   isRedo,
		}},
	})
}

func (b *JSONBuilder) Flush() error {
	if f, ok := b.sink.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (b *JSONBuilder) emit(m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.sink.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	b.count++
	return nil
}

func schema(obj *catalog.Object, dataObj uint32) *Schema {
	if obj == nil {
		return &Schema{Table: fmt.Sprintf("OBJ_%d", dataObj)}
	}
	return &Schema{Owner: obj.Owner, Table: obj.Name, Obj: obj.Obj}
}

func rowID(dataObj, bdba uint32, slot uint16) string {
	return redo.RowID{DataObj: dataObj, DBA: bdba, Slot: slot}.String()
}

// columns renders an image keyed by column name. Columns of unknown tables
// are named by position and written as hex.
func (b *JSONBuilder) columns(obj *catalog.Object, cols []opcode.Column) map[string]any {
	if len(cols) == 0 {
		return nil
	}
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		var col *catalog.Column
		if obj != nil {
			col, _ = obj.Column(int(c.Index))
		}
		if col == nil {
			name := fmt.Sprintf("COL_%d", c.Index)
			if c.Null {
				out[name] = nil
			} else {
				out[name] = value.Raw(c.Data)
			}
			continue
		}

		if c.Null || len(c.Data) == 0 {
			out[col.Name] = nil
			continue
		}
		v, err := value.Format(col.TypeNo, col.CharsetID, c.Data)
		if err != nil {
			b.log.WithFields(logrus.Fields{"column": col.Name, "type": col.TypeNo}).
				Warnf("failed to format value: %v", err)
			v = value.Raw(c.Data)
		}
		out[col.Name] = v
	}
	return out
}
