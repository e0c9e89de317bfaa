package redotest

import (
	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/value"
)

// SeededCatalog returns a catalog holding only the dictionary tables.
func SeededCatalog() (*catalog.Catalog, error) {
	c := catalog.New()
	if err := catalog.Seed(c); err != nil {
		return nil, err
	}
	c.MarkSaved(1)
	c.RebuildMaps()
	return c, nil
}

// UserTable registers owner (when missing) and a table with the given
// columns. The first column is a NUMBER, the others VARCHAR2.
func UserTable(c *catalog.Catalog, owner string, userID, obj, dataObj uint32, name string, cols ...string) error {
	dba := uint32(0x00800000) | obj
	if _, ok := c.UserByName(owner); !ok {
		u := &catalog.SysUser{
			RowMeta: catalog.RowMeta{RowID: redo.RowID{DataObj: catalog.ObjUSER, DBA: dba, Slot: 0}},
			User:    userID,
			Name:    owner,
		}
		if _, err := c.User.Insert(u); err != nil {
			return err
		}
		c.MarkChanged(c.User, u)
		c.TouchUser(userID)
	}

	o := &catalog.SysObj{
		RowMeta: catalog.RowMeta{RowID: redo.RowID{DataObj: catalog.ObjOBJ, DBA: dba, Slot: 0}},
		Owner:   userID,
		Obj:     obj,
		DataObj: dataObj,
		Name:    name,
		Type:    catalog.ObjTypeTable,
	}
	if _, err := c.Obj.Insert(o); err != nil {
		return err
	}
	c.MarkChanged(c.Obj, o)

	for i, colName := range cols {
		col := &catalog.SysCol{
			RowMeta: catalog.RowMeta{RowID: redo.RowID{DataObj: catalog.ObjCOL, DBA: dba, Slot: uint16(i)}},
			Obj:     obj,
			Col:     int16(i + 1),
			SegCol:  int16(i + 1),
			IntCol:  int16(i + 1),
			Name:    colName,
			Type:    value.TypeVarchar2,
			Length:  100,
		}
		if i == 0 {
			col.Type = value.TypeNumber
			col.Length = 22
		} else {
			col.CharsetID = value.CharsetAL32UTF8
		}
		if _, err := c.Col.Insert(col); err != nil {
			return err
		}
		c.MarkChanged(c.Col, col)
	}

	c.TouchObj(obj)
	c.RefreshIndexes()
	c.RebuildMaps()
	return nil
}
