package catalog

import (
	"testing"

	"github.com/redocdc/redocdc/internal/redo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rid(dataObj uint32, slot uint16) redo.RowID {
	return redo.RowID{DataObj: dataObj, DBA: 0x01000100, Slot: slot}
}

func seeded(t *testing.T) *Catalog {
	t.Helper()
	c := New()
	require.NoError(t, Seed(c))
	c.MarkSaved(1)
	c.RebuildMaps()
	return c
}

func TestTableArena(t *testing.T) {
	tbl := NewTable[*SysUser]("USER$")

	h1, err := tbl.Insert(&SysUser{RowMeta: RowMeta{RowID: rid(22, 1)}, User: 100, Name: "HR"})
	require.NoError(t, err)
	_, err = tbl.Insert(&SysUser{RowMeta: RowMeta{RowID: rid(22, 1)}, User: 101, Name: "DUP"})
	assert.ErrorIs(t, err, ErrDuplicateRow)

	h2, err := tbl.Insert(&SysUser{RowMeta: RowMeta{RowID: rid(22, 2)}, User: 101, Name: "APP"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, tbl.Len())

	removed, ok := tbl.Delete(rid(22, 1))
	require.True(t, ok)
	assert.Equal(t, "HR", removed.Name)
	_, ok = tbl.At(h1)
	assert.False(t, ok)

	// freed handle is reused
	h3, err := tbl.Insert(&SysUser{RowMeta: RowMeta{RowID: rid(22, 3)}, User: 102, Name: "OPS"})
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	names := []string{}
	tbl.Each(func(u *SysUser) bool {
		names = append(names, u.Name)
		return true
	})
	assert.Equal(t, []string{"OPS", "APP"}, names)

	_, ok = tbl.Delete(rid(22, 9))
	assert.False(t, ok)
}

func TestSeedRegistersDictionaryTables(t *testing.T) {
	c := seeded(t)

	obj, ok := c.Object(ObjOBJ)
	require.True(t, ok)
	assert.Equal(t, "SYS", obj.Owner)
	assert.Equal(t, "OBJ$", obj.Name)
	assert.Equal(t, TableObj, obj.System)

	col, ok := obj.ColumnByName("NAME")
	require.True(t, ok)
	assert.Equal(t, uint16(1), col.TypeNo)
	assert.Equal(t, uint64(873), col.CharsetID)

	first, ok := obj.Column(0)
	require.True(t, ok)
	assert.Equal(t, "OBJ#", first.Name)

	for _, id := range []uint32{ObjTAB, ObjSEG, ObjCOL, ObjUSER, ObjCDEF, ObjCCOL, ObjECOL, ObjDEFERREDSTG, ObjTABPART, ObjTABCOMPART, ObjTABSUBPART} {
		o, ok := c.Object(id)
		require.True(t, ok, "object %d", id)
		assert.NotEqual(t, TableNone, o.System, o.Name)
	}

	assert.False(t, c.Touched)
	assert.Empty(t, c.TouchedObjs())
}

func TestUserTableDerivation(t *testing.T) {
	c := seeded(t)

	user := &SysUser{RowMeta: RowMeta{RowID: rid(22, 50)}, User: 100, Name: "HR"}
	_, err := c.User.Insert(user)
	require.NoError(t, err)
	c.MarkChanged(c.User, user)

	obj := &SysObj{RowMeta: RowMeta{RowID: rid(18, 50)}, Owner: 100, Obj: 55, DataObj: 56, Name: "T1", Type: ObjTypeTable}
	_, err = c.Obj.Insert(obj)
	require.NoError(t, err)
	c.MarkChanged(c.Obj, obj)

	for i, name := range []string{"ID", "NAME"} {
		col := &SysCol{RowMeta: RowMeta{RowID: rid(21, uint16(100+i))}, Obj: 55, Col: int16(i + 1), SegCol: int16(2 - i), IntCol: int16(i + 1), Name: name, Type: 2}
		_, err = c.Col.Insert(col)
		require.NoError(t, err)
		c.MarkChanged(c.Col, col)
	}
	c.TouchObj(55)

	assert.True(t, c.Touched)
	assert.True(t, c.RefreshIndexes())
	c.RebuildMaps()
	assert.False(t, c.Touched)
	assert.False(t, c.Obj.Touched())
	assert.False(t, obj.Touched)

	o, ok := c.Object(55)
	require.True(t, ok)
	assert.Equal(t, "HR.T1", o.FullName())
	require.Len(t, o.Columns, 2)
	assert.Equal(t, "NAME", o.Columns[0].Name)
	assert.Equal(t, "ID", o.Columns[1].Name)
	assert.Equal(t, TableNone, o.System)

	byData, ok := c.Resolve(0, 56)
	require.True(t, ok)
	assert.Equal(t, uint32(55), byData.Obj)

	assert.Len(t, c.Objects("HR"), 1)
}

func TestDerivedObjectInvalidation(t *testing.T) {
	c := seeded(t)

	obj := &SysObj{RowMeta: RowMeta{RowID: rid(18, 60)}, Owner: 0, Obj: 70, Name: "OLD", Type: ObjTypeTable}
	_, err := c.Obj.Insert(obj)
	require.NoError(t, err)
	c.MarkChanged(c.Obj, obj)
	c.TouchObj(70)
	c.RebuildMaps()

	o, ok := c.Object(70)
	require.True(t, ok)
	assert.Equal(t, "OLD", o.Name)

	obj.Name = "NEW"
	c.MarkChanged(c.Obj, obj)
	c.TouchObj(70)
	assert.True(t, c.IsObjTouched(70))
	c.RebuildMaps()

	o, ok = c.Object(70)
	require.True(t, ok)
	assert.Equal(t, "NEW", o.Name)
}

func TestRefreshIndexesWithoutChanges(t *testing.T) {
	c := seeded(t)
	assert.False(t, c.RefreshIndexes())
}

func TestSnapshotRestore(t *testing.T) {
	c := seeded(t)
	snap := c.Snapshot(42)
	assert.Equal(t, redo.SCN(42), snap.SCN)
	assert.Greater(t, snap.RowCount(), 12)

	restored, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, redo.SCN(42), restored.SCN)
	assert.Equal(t, c.Obj.Len(), restored.Obj.Len())

	row, ok := restored.Obj.Get(snap.Obj[0].RowID)
	require.True(t, ok)
	assert.True(t, row.Saved)

	o, ok := restored.Object(ObjTAB)
	require.True(t, ok)
	assert.Equal(t, TableTab, o.System)
}

func TestParseUintX(t *testing.T) {
	x, err := ParseUintX("18446744073709551617")
	require.NoError(t, err)
	assert.Equal(t, UintX{Lo: 1, Hi: 1}, x)
	assert.Equal(t, "18446744073709551617", x.String())

	x, err = ParseUintX("128")
	require.NoError(t, err)
	assert.True(t, x.IsSet64(ObjFlagsDropped))

	_, err = ParseUintX("-1")
	assert.Error(t, err)
	_, err = ParseUintX("1.5")
	assert.Error(t, err)
	_, err = ParseUintX("x")
	assert.Error(t, err)
}
