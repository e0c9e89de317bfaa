package opcode

import (
	"fmt"
	"io"

	"github.com/redocdc/redocdc/internal/redo"
)

// Row is a data layer change (11.x): the redo half of a row operation.
type Row struct {
	Code uint16
	AFN  uint16
	DBA  uint32
	KTB  *KTBRedo
	KDO  *KDO
}

func (o *Row) OpCode() uint16 { return o.Code }

func (o *Row) Name() string {
	return fmt.Sprintf("11.%d %s", o.Code&0xFF, o.KDO.Name())
}

func decodeRow(r redo.Reader, v *redo.Vector) (Op, error) {
	ktbField, err := field(v, 1, "ktb redo")
	if err != nil {
		return nil, err
	}
	ktb, err := decodeKTB(r, ktbField)
	if err != nil {
		return nil, err
	}

	kdoField, err := field(v, 2, "kdo opcode")
	if err != nil {
		return nil, err
	}
	kdo, err := decodeKDO(r, kdoField)
	if err != nil {
		return nil, err
	}
	if err := kdo.readColumns(r, v, 3); err != nil {
		return nil, err
	}

	return &Row{
		Code: v.OpCode(),
		AFN:  v.AFN,
		DBA:  v.DBA,
		KTB:  ktb,
		KDO:  kdo,
	}, nil
}

func (o *Row) Dump(w io.Writer) {
	fmt.Fprintf(w, "CHANGE #1 AFN:%d DBA:0x%08x OP:%s\n", o.AFN, o.DBA, o.Name())
	o.KTB.Dump(w)
	o.KDO.Dump(w)
}

// DDL carries the statement text of a schema change (24.1).
type DDL struct {
	XID  redo.XID
	Type uint16
	Seq  uint16
	Obj  uint32

	Owner string
	Table string
	SQL   string
}

func (d *DDL) OpCode() uint16 { return CodeDDL }
func (d *DDL) Name() string   { return "24.1" }

func decodeDDL(r redo.Reader, v *redo.Vector) (Op, error) {
	hdr, err := field(v, 1, "ddl header")
	if err != nil {
		return nil, err
	}
	if err := r.Check(hdr, 24, "ddl header"); err != nil {
		return nil, err
	}
	d := &DDL{
		XID:  r.XID(hdr, 4),
		Type: r.Uint16(hdr, 12),
		Seq:  r.Uint16(hdr, 18),
		Obj:  r.Uint32(hdr, 20),
	}
	if f, ok := v.Field(2); ok {
		d.Owner = trimText(f)
	}
	if f, ok := v.Field(3); ok {
		d.Table = trimText(f)
	}
	if f, ok := v.Field(4); ok {
		d.SQL = trimText(f)
	}
	return d, nil
}

func trimText(b []byte) string {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func (d *DDL) Dump(w io.Writer) {
	fmt.Fprintf(w, "DDL xid: %s type: %d seq: %d obj: %d\n", d.XID, d.Type, d.Seq, d.Obj)
	fmt.Fprintf(w, "    %s.%s: %s\n", d.Owner, d.Table, d.SQL)
}
