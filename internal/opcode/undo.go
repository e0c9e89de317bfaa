package opcode

import (
	"fmt"
	"io"

	"github.com/redocdc/redocdc/internal/redo"
)

// KTUB is the undo block header describing the operation being undone.
type KTUB struct {
	Obj     uint32
	DataObj uint32
	TSN     uint32
	Undo    uint32
	OpCode  uint16
	Slt     uint8
	Rci     uint8
	Flg     uint8
}

// Begin reports whether the header is the long form written for the first
// undo record of a transaction.
func (k *KTUB) Begin() bool { return k.Flg&0x08 != 0 }

func (k *KTUB) Kind() string {
	if k.Begin() {
		return "KTUBL"
	}
	return "KTUBU"
}

func decodeKTUB(r redo.Reader, b []byte) (*KTUB, error) {
	if err := r.Check(b, 24, "ktub"); err != nil {
		return nil, err
	}
	return &KTUB{
		Obj:     r.Uint32(b, 0),
		DataObj: r.Uint32(b, 4),
		TSN:     r.Uint32(b, 8),
		Undo:    r.Uint32(b, 12),
		OpCode:  uint16(b[16])<<8 | uint16(b[17]),
		Slt:     b[18],
		Rci:     b[19],
		Flg:     b[20],
	}, nil
}

func (k *KTUB) Dump(w io.Writer) {
	fmt.Fprintf(w, "%s redo: slt: %d rci: %d opc: %d.%d objn: %d objd: %d tsn: %d\n",
		k.Kind(), k.Slt, k.Rci, k.OpCode>>8, k.OpCode&0xFF, k.Obj, k.DataObj, k.TSN)
	fmt.Fprintf(w, "Undo type:  Regular undo        Begin trans    %s\n", yesNo(k.Begin()))
}

// Undo is an undo record (5.1). For row operations it carries the before
// image as KTB and KDO sub-records.
type Undo struct {
	XID  redo.XID
	UBA  redo.UBA
	Size uint16
	Spc  uint16
	Flg  uint16
	KTUB *KTUB
	KTB  *KTBRedo
	KDO  *KDO
}

func (u *Undo) OpCode() uint16 { return CodeUndo }
func (u *Undo) Name() string   { return "5.1" }

func decodeUndo(r redo.Reader, v *redo.Vector) (Op, error) {
	ktudb, err := field(v, 1, "ktudb")
	if err != nil {
		return nil, err
	}
	if err := r.Check(ktudb, 20, "ktudb"); err != nil {
		return nil, err
	}
	u := &Undo{
		Size: r.Uint16(ktudb, 0),
		Spc:  r.Uint16(ktudb, 2),
		Flg:  r.Uint16(ktudb, 4),
		XID:  r.XID(ktudb, 8),
		UBA:  redo.NewUBA(v.DBA, r.Uint16(ktudb, 16), ktudb[18]),
	}

	ktubField, err := field(v, 2, "ktub")
	if err != nil {
		return nil, err
	}
	if u.KTUB, err = decodeKTUB(r, ktubField); err != nil {
		return nil, err
	}

	if u.KTUB.OpCode>>8 != uint16(LayerRow) || v.FieldCount() < 4 {
		return u, nil
	}

	ktbField, _ := v.Field(3)
	if u.KTB, err = decodeKTB(r, ktbField); err != nil {
		return nil, err
	}
	kdoField, _ := v.Field(4)
	if u.KDO, err = decodeKDO(r, kdoField); err != nil {
		return nil, err
	}
	if err := u.KDO.readColumns(r, v, 5); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Undo) Dump(w io.Writer) {
	fmt.Fprintf(w, "ktudb redo: siz: %d spc: %d flg: 0x%04x seq: 0x%04x rec: 0x%02x\n",
		u.Size, u.Spc, u.Flg, u.UBA.Sequence(), u.UBA.Record())
	fmt.Fprintf(w, "            xid:  %s\n", u.XID)
	u.KTUB.Dump(w)
	if u.KTB != nil {
		u.KTB.Dump(w)
	}
	if u.KDO != nil {
		u.KDO.Dump(w)
	}
}

// Begin is the transaction start record (5.2).
type Begin struct {
	XID  redo.XID
	UBA  redo.UBA
	Flg  uint16
	Siz  uint16
	PXID redo.XID
}

func (b *Begin) OpCode() uint16 { return CodeBegin }
func (b *Begin) Name() string   { return "5.2" }

func decodeBegin(r redo.Reader, v *redo.Vector) (Op, error) {
	f, err := field(v, 1, "ktudh")
	if err != nil {
		return nil, err
	}
	if err := r.Check(f, 32, "ktudh"); err != nil {
		return nil, err
	}
	return &Begin{
		XID:  redo.NewXID(v.USN(), r.Uint16(f, 0), r.Uint32(f, 4)),
		UBA:  r.UBA(f, 8),
		Flg:  r.Uint16(f, 16),
		Siz:  r.Uint16(f, 18),
		PXID: r.XID(f, 24),
	}, nil
}

func (b *Begin) Dump(w io.Writer) {
	fmt.Fprintf(w, "ktudh redo: slt: 0x%04x sqn: 0x%08x flg: 0x%04x siz: %d uba: %s\n",
		b.XID.Slot(), b.XID.Seq(), b.Flg, b.Siz, b.UBA)
	fmt.Fprintf(w, "            xid:  %s pxid:  %s\n", b.XID, b.PXID)
}

const commitRollback = 0x04

// Commit ends a transaction (5.4), either committing or rolling it back.
type Commit struct {
	XID redo.XID
	Srt uint16
	Sta uint8
	Flg uint8
}

func (c *Commit) OpCode() uint16 { return CodeCommit }
func (c *Commit) Name() string   { return "5.4" }

func (c *Commit) Rollback() bool { return c.Flg&commitRollback != 0 }

func decodeCommit(r redo.Reader, v *redo.Vector) (Op, error) {
	f, err := field(v, 1, "ktucm")
	if err != nil {
		return nil, err
	}
	if err := r.Check(f, 20, "ktucm"); err != nil {
		return nil, err
	}
	return &Commit{
		XID: redo.NewXID(v.USN(), r.Uint16(f, 0), r.Uint32(f, 4)),
		Srt: r.Uint16(f, 8),
		Sta: f[12],
		Flg: f[16],
	}, nil
}

func (c *Commit) Dump(w io.Writer) {
	fmt.Fprintf(w, "ktucm redo: slt: 0x%04x sqn: 0x%08x srt: %d sta: %d flg: 0x%x\n",
		c.XID.Slot(), c.XID.Seq(), c.Srt, c.Sta, c.Flg)
	fmt.Fprintf(w, "            xid:  %s rollback: %s\n", c.XID, yesNo(c.Rollback()))
}

// RollbackTo marks a rollback to a savepoint (5.6): all changes of the
// transaction recorded at or after UBA are undone.
type RollbackTo struct {
	XID redo.XID
	UBA redo.UBA
}

func (o *RollbackTo) OpCode() uint16 { return CodeRollbackTo }
func (o *RollbackTo) Name() string   { return "5.6" }

func decodeRollbackTo(r redo.Reader, v *redo.Vector) (Op, error) {
	xid, uba, err := decodeXIDUBA(r, v, "rollback to savepoint")
	if err != nil {
		return nil, err
	}
	return &RollbackTo{XID: xid, UBA: uba}, nil
}

func (o *RollbackTo) Dump(w io.Writer) {
	fmt.Fprintf(w, "rollback to savepoint xid: %s uba: %s\n", o.XID, o.UBA)
}

// UndoApplied records that a single undo record was applied (5.11).
type UndoApplied struct {
	XID redo.XID
	UBA redo.UBA
}

func (o *UndoApplied) OpCode() uint16 { return CodeUndoApplied }
func (o *UndoApplied) Name() string   { return "5.11" }

func decodeUndoApplied(r redo.Reader, v *redo.Vector) (Op, error) {
	xid, uba, err := decodeXIDUBA(r, v, "undo applied")
	if err != nil {
		return nil, err
	}
	return &UndoApplied{XID: xid, UBA: uba}, nil
}

func (o *UndoApplied) Dump(w io.Writer) {
	fmt.Fprintf(w, "undo record applied xid: %s uba: %s\n", o.XID, o.UBA)
}

func decodeXIDUBA(r redo.Reader, v *redo.Vector, context string) (redo.XID, redo.UBA, error) {
	f, err := field(v, 1, context)
	if err != nil {
		return 0, 0, err
	}
	if err := r.Check(f, 16, context); err != nil {
		return 0, 0, err
	}
	return r.XID(f, 0), r.UBA(f, 8), nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
