// Package redotest builds change vectors for tests.
package redotest

import (
	"github.com/redocdc/redocdc/internal/redo"
)

// R is the field layout used by every builder in this package.
var R = redo.LittleEndian

// Row operation subtypes, mirrored here so tests can describe changes
// without importing the decoder.
const (
	IRP uint8 = 0x02
	DRP uint8 = 0x03
	LKR uint8 = 0x04
	URP uint8 = 0x05
)

// Change describes the KDO part of a row vector. A nil entry in Cols is a
// NULL column. ColNums is only used by URP.
type Change struct {
	Op      uint8
	BDBA    uint32
	Slot    uint16
	Cols    [][]byte
	ColNums []uint16
	XType   uint8
}

func ClassFor(usn uint16) uint16 {
	return 15 + 2*usn
}

func KTBF(xid redo.XID, uba redo.UBA) []byte {
	b := make([]byte, 24)
	b[0] = 0x01
	R.PutXID(b, 8, xid)
	R.PutUint56(b, 16, uint64(uba))
	return b
}

func KTBC(uba redo.UBA) []byte {
	b := make([]byte, 16)
	b[0] = 0x02
	R.PutUint56(b, 8, uint64(uba))
	return b
}

func kdoHeader(size int, c Change) []byte {
	b := make([]byte, size)
	R.PutUint32(b, 0, c.BDBA)
	R.PutUint32(b, 4, c.BDBA)
	b[10] = c.Op
	b[11] = c.XType
	if b[11] == 0 {
		b[11] = 1
	}
	return b
}

func setNulls(b []byte, off int, cols [][]byte) {
	for i, c := range cols {
		if c == nil {
			b[off+i/8] |= 1 << (uint(i) % 8)
		}
	}
}

// KDO lays out the KDO field for c.
func KDO(c Change) []byte {
	cc := len(c.Cols)
	nullSize := (cc + 7) / 8
	switch c.Op {
	case IRP:
		b := kdoHeader(max(48, 45+nullSize), c)
		b[16] = 0x2C
		b[18] = byte(cc)
		R.PutUint16(b, 42, c.Slot)
		setNulls(b, 45, c.Cols)
		return b
	case URP:
		b := kdoHeader(max(28, 26+nullSize), c)
		b[16] = 0x2C
		R.PutUint16(b, 20, c.Slot)
		b[22] = byte(cc)
		b[23] = byte(cc)
		setNulls(b, 26, c.Cols)
		return b
	default:
		b := kdoHeader(20, c)
		R.PutUint16(b, 16, c.Slot)
		return b
	}
}

func columnFields(c Change) [][]byte {
	var out [][]byte
	if c.Op == URP && len(c.Cols) > 0 {
		nums := make([]byte, 2*len(c.ColNums))
		for i, n := range c.ColNums {
			R.PutUint16(nums, 2*i, n)
		}
		out = append(out, nums)
	}
	for _, col := range c.Cols {
		if col == nil {
			col = []byte{}
		}
		out = append(out, col)
	}
	return out
}

// KTUB lays out an undo block header for an undo of the given opcode.
func KTUB(obj, dataObj uint32, opc uint16, begin bool) []byte {
	b := make([]byte, 24)
	R.PutUint32(b, 0, obj)
	R.PutUint32(b, 4, dataObj)
	b[16] = byte(opc >> 8)
	b[17] = byte(opc)
	if begin {
		b[20] = 0x08
	}
	return b
}

// UndoVector builds a 5.1 undo record whose UBA is uba.
func UndoVector(xid redo.XID, uba redo.UBA, obj, dataObj uint32, undo Change) *redo.Vector {
	ktudb := make([]byte, 20)
	R.PutXID(ktudb, 8, xid)
	R.PutUint16(ktudb, 16, uba.Sequence())
	ktudb[18] = uba.Record()

	fields := [][]byte{
		ktudb,
		KTUB(obj, dataObj, 0x0B00|uint16(undo.Op), false),
		KTBC(uba),
		KDO(undo),
	}
	fields = append(fields, columnFields(undo)...)
	return &redo.Vector{Layer: 5, Code: 1, Class: ClassFor(xid.USN()), DBA: uba.Block(), Fields: fields}
}

// RowVector builds an 11.x redo vector linked to the undo record at uba.
func RowVector(xid redo.XID, uba redo.UBA, c Change) *redo.Vector {
	fields := [][]byte{KTBF(xid, uba), KDO(c)}
	fields = append(fields, columnFields(c)...)
	return &redo.Vector{Layer: 11, Code: c.Op, Class: 1, AFN: 4, DBA: c.BDBA, Fields: fields}
}

func BeginVector(xid redo.XID) *redo.Vector {
	f := make([]byte, 32)
	R.PutUint16(f, 0, xid.Slot())
	R.PutUint32(f, 4, xid.Seq())
	return &redo.Vector{Layer: 5, Code: 2, Class: ClassFor(xid.USN()), Fields: [][]byte{f}}
}

func CommitVector(xid redo.XID, rollback bool) *redo.Vector {
	f := make([]byte, 20)
	R.PutUint16(f, 0, xid.Slot())
	R.PutUint32(f, 4, xid.Seq())
	if rollback {
		f[16] = 0x04
	} else {
		f[16] = 0x02
	}
	return &redo.Vector{Layer: 5, Code: 4, Class: ClassFor(xid.USN()), Fields: [][]byte{f}}
}

func xidUBAField(xid redo.XID, uba redo.UBA) []byte {
	f := make([]byte, 16)
	R.PutXID(f, 0, xid)
	R.PutUint56(f, 8, uint64(uba))
	return f
}

func RollbackToVector(xid redo.XID, uba redo.UBA) *redo.Vector {
	return &redo.Vector{Layer: 5, Code: 6, Class: ClassFor(xid.USN()), Fields: [][]byte{xidUBAField(xid, uba)}}
}

func UndoAppliedVector(xid redo.XID, uba redo.UBA) *redo.Vector {
	return &redo.Vector{Layer: 5, Code: 11, Class: ClassFor(xid.USN()), Fields: [][]byte{xidUBAField(xid, uba)}}
}

func DDLVector(xid redo.XID, obj uint32, ddlType, seq uint16, owner, name, sql string) *redo.Vector {
	hdr := make([]byte, 24)
	R.PutXID(hdr, 4, xid)
	R.PutUint16(hdr, 12, ddlType)
	R.PutUint16(hdr, 18, seq)
	R.PutUint32(hdr, 20, obj)
	return &redo.Vector{
		Layer:  24,
		Code:   1,
		Fields: [][]byte{hdr, []byte(owner), []byte(name), []byte(sql)},
	}
}

// Encode round-trips v through its binary layout, as a decoder would see it.
func Encode(v *redo.Vector) *redo.Vector {
	parsed, err := redo.ParseVector(R, v.Encode(R))
	if err != nil {
		panic(err)
	}
	return parsed
}
