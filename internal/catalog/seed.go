package catalog

import (
	"fmt"

	"github.com/redocdc/redocdc/internal/redo"
)

const (
	SysUserID uint32 = 0

	typeVarchar2 uint16 = 1
	typeNumber   uint16 = 2
	typeDate     uint16 = 12

	charsetAL32UTF8 uint64 = 873
)

// Object numbers of the dictionary tables tracked by the catalog.
const (
	ObjTAB         uint32 = 4
	ObjSEG         uint32 = 14
	ObjOBJ         uint32 = 18
	ObjCOL         uint32 = 21
	ObjUSER        uint32 = 22
	ObjCDEF        uint32 = 31
	ObjCCOL        uint32 = 32
	ObjDEFERREDSTG uint32 = 136
	ObjECOL        uint32 = 150
	ObjTABPART     uint32 = 568
	ObjTABCOMPART  uint32 = 574
	ObjTABSUBPART  uint32 = 578
)

type seedColumn struct {
	name   string
	typeNo uint16
}

type seedTable struct {
	obj  uint32
	name string
	cols []seedColumn
}

func num(name string) seedColumn { return seedColumn{name: name, typeNo: typeNumber} }
func str(name string) seedColumn { return seedColumn{name: name, typeNo: typeVarchar2} }

var dictionaryTables = []seedTable{
	{ObjOBJ, "OBJ$", []seedColumn{num("OBJ#"), num("DATAOBJ#"), num("OWNER#"), str("NAME"), num("TYPE#"), {"CTIME", typeDate}, num("FLAGS")}},
	{ObjTAB, "TAB$", []seedColumn{num("OBJ#"), num("DATAOBJ#"), num("TS#"), num("FILE#"), num("BLOCK#"), num("CLUCOLS"), num("FLAGS"), num("PROPERTY")}},
	{ObjCOL, "COL$", []seedColumn{num("OBJ#"), num("COL#"), num("SEGCOL#"), str("NAME"), num("TYPE#"), num("LENGTH"), num("PRECISION#"), num("SCALE"), num("NULL$"), num("INTCOL#"), num("PROPERTY"), num("CHARSETID"), num("CHARSETFORM")}},
	{ObjUSER, "USER$", []seedColumn{num("USER#"), str("NAME"), num("SPARE1")}},
	{ObjSEG, "SEG$", []seedColumn{num("FILE#"), num("BLOCK#"), num("TS#"), num("SPARE1")}},
	{ObjCDEF, "CDEF$", []seedColumn{num("CON#"), num("OBJ#"), num("TYPE#")}},
	{ObjCCOL, "CCOL$", []seedColumn{num("CON#"), num("OBJ#"), num("INTCOL#"), num("SPARE1")}},
	{ObjECOL, "ECOL$", []seedColumn{num("TABOBJ#"), num("COLNUM"), num("GUARD_ID")}},
	{ObjDEFERREDSTG, "DEFERRED_STG$", []seedColumn{num("OBJ#"), num("FLAGS_STG")}},
	{ObjTABPART, "TABPART$", []seedColumn{num("OBJ#"), num("DATAOBJ#"), num("BO#")}},
	{ObjTABCOMPART, "TABCOMPART$", []seedColumn{num("OBJ#"), num("DATAOBJ#"), num("BO#")}},
	{ObjTABSUBPART, "TABSUBPART$", []seedColumn{num("OBJ#"), num("DATAOBJ#"), num("POBJ#")}},
}

// Seed registers the SYS user and the definitions of the dictionary tables
// so that their changes can be decoded. The seeded rows are written as if
// they had been read from the log and leave the catalog touched.
func Seed(c *Catalog) error {
	slots := make(map[uint32]uint16)
	rowID := func(table uint32) redo.RowID {
		slot := slots[table]
		slots[table] = slot + 1
		return redo.RowID{DataObj: table, DBA: 1<<22 | table, Slot: slot}
	}

	sys := &SysUser{RowMeta: RowMeta{RowID: rowID(ObjUSER)}, User: SysUserID, Name: "SYS"}
	if _, err := c.User.Insert(sys); err != nil {
		return fmt.Errorf("failed to seed SYS user: %w", err)
	}
	c.MarkChanged(c.User, sys)
	c.TouchUser(SysUserID)

	for _, t := range dictionaryTables {
		obj := &SysObj{
			RowMeta: RowMeta{RowID: rowID(ObjOBJ)},
			Owner:   SysUserID,
			Obj:     t.obj,
			DataObj: t.obj,
			Name:    t.name,
			Type:    ObjTypeTable,
		}
		if _, err := c.Obj.Insert(obj); err != nil {
			return fmt.Errorf("failed to seed %s: %w", t.name, err)
		}
		c.MarkChanged(c.Obj, obj)

		tab := &SysTab{
			RowMeta: RowMeta{RowID: rowID(ObjTAB)},
			Obj:     t.obj,
			DataObj: t.obj,
			TS:      0,
			File:    1,
			Block:   t.obj * 8,
		}
		if _, err := c.Tab.Insert(tab); err != nil {
			return fmt.Errorf("failed to seed %s: %w", t.name, err)
		}
		c.MarkChanged(c.Tab, tab)

		for i, sc := range t.cols {
			col := &SysCol{
				RowMeta: RowMeta{RowID: rowID(ObjCOL)},
				Obj:     t.obj,
				Col:     int16(i + 1),
				SegCol:  int16(i + 1),
				IntCol:  int16(i + 1),
				Name:    sc.name,
				Type:    sc.typeNo,
				Null:    0,
			}
			switch sc.typeNo {
			case typeVarchar2:
				col.Length = 128
				col.CharsetID = charsetAL32UTF8
				col.CharsetForm = 1
			case typeNumber:
				col.Length = 22
			case typeDate:
				col.Length = 7
			}
			if _, err := c.Col.Insert(col); err != nil {
				return fmt.Errorf("failed to seed %s.%s: %w", t.name, sc.name, err)
			}
			c.MarkChanged(c.Col, col)
		}
		c.TouchObj(t.obj)
	}

	c.buildIndexes(true)
	return nil
}
