package systxn

import (
	"errors"
	"testing"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/value"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved []*catalog.Snapshot
	err   error
}

func (s *fakeStore) SaveSchema(snap *catalog.Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, snap)
	return nil
}

func newHandler(t *testing.T) (*Handler, *fakeStore) {
	t.Helper()
	c := catalog.New()
	require.NoError(t, catalog.Seed(c))
	c.MarkSaved(1)
	c.RebuildMaps()
	store := &fakeStore{}
	return NewHandler(c, store), store
}

func object(t *testing.T, h *Handler, obj uint32) *catalog.Object {
	t.Helper()
	o, ok := h.Catalog().Object(obj)
	require.True(t, ok)
	return o
}

func num(idx uint16, n int64) opcode.Column {
	return opcode.Column{Index: idx, Data: value.EncodeNumber(decimal.NewFromInt(n))}
}

func str(idx uint16, s string) opcode.Column {
	return opcode.Column{Index: idx, Data: []byte(s)}
}

func null(idx uint16) opcode.Column {
	return opcode.Column{Index: idx, Null: true}
}

func objRow(slot uint16) redo.RowID {
	return redo.RowID{DataObj: catalog.ObjOBJ, DBA: 0x00400100, Slot: slot}
}

// OBJ$ segment positions: OBJ# 0, DATAOBJ# 1, OWNER# 2, NAME 3, TYPE# 4.
func objInsert(obj uint32, name string) []opcode.Column {
	return []opcode.Column{
		num(0, int64(obj)),
		num(1, int64(obj)),
		num(2, 0),
		str(3, name),
		num(4, int64(catalog.ObjTypeTable)),
	}
}

func TestInsertObj(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()

	require.NoError(t, h.Insert(object(t, h, catalog.ObjOBJ), objRow(100), objInsert(55, "T1")))

	assert.True(t, c.Touched)
	assert.True(t, c.Obj.Touched())
	assert.Contains(t, c.TouchedObjs(), uint32(55))

	row, ok := c.Obj.Get(objRow(100))
	require.True(t, ok)
	assert.Equal(t, uint32(55), row.Obj)
	assert.Equal(t, "T1", row.Name)
	assert.Equal(t, catalog.ObjTypeTable, row.Type)
	assert.True(t, row.Touched)
}

func TestInsertDuplicate(t *testing.T) {
	h, _ := newHandler(t)
	objDef := object(t, h, catalog.ObjOBJ)

	require.NoError(t, h.Insert(objDef, objRow(100), objInsert(55, "T1")))
	err := h.Insert(objDef, objRow(100), objInsert(56, "T2"))
	require.Error(t, err)
	assert.True(t, IsDDLInconsistencyError(err))
}

func TestInsertWrongType(t *testing.T) {
	h, _ := newHandler(t)

	// OBJ# declared as VARCHAR2 must not accept the numeric field
	objDef := object(t, h, catalog.ObjOBJ)
	bad := *objDef
	bad.Columns = nil
	for _, col := range objDef.Columns {
		cp := *col
		if cp.Name == "OBJ#" {
			cp.TypeNo = value.TypeVarchar2
		}
		bad.Columns = append(bad.Columns, &cp)
	}

	err := h.Insert(&bad, objRow(100), objInsert(55, "T1"))
	require.Error(t, err)
	de := AsDDLInconsistencyError(err)
	require.NotNil(t, de)
	assert.Equal(t, "OBJ$", de.Table)
	assert.Equal(t, "OBJ#", de.Column)
	assert.Equal(t, 0, countRows(h.Catalog().Obj, objRow(100)))
}

func TestInsertNegativeUnsigned(t *testing.T) {
	h, _ := newHandler(t)

	err := h.Insert(object(t, h, catalog.ObjOBJ), objRow(100), []opcode.Column{num(0, -5)})
	require.Error(t, err)
	assert.True(t, IsDDLInconsistencyError(err))
}

func TestUpdateNoChange(t *testing.T) {
	h, store := newHandler(t)
	c := h.Catalog()
	objDef := object(t, h, catalog.ObjOBJ)

	require.NoError(t, h.Insert(objDef, objRow(100), objInsert(55, "T1")))
	require.NoError(t, h.Commit(10))
	require.Len(t, store.saved, 1)
	assert.False(t, c.Touched)

	require.NoError(t, h.Update(objDef, objRow(100),
		[]opcode.Column{str(3, "T1")}, []opcode.Column{str(3, "T1")}))
	assert.False(t, c.Touched)
	assert.Empty(t, c.TouchedObjs())

	require.NoError(t, h.Commit(11))
	assert.Len(t, store.saved, 1)
}

func TestUpdateRename(t *testing.T) {
	h, store := newHandler(t)
	c := h.Catalog()
	objDef := object(t, h, catalog.ObjOBJ)

	require.NoError(t, h.Insert(objDef, objRow(100), objInsert(55, "T1")))
	require.NoError(t, h.Commit(10))

	require.NoError(t, h.Update(objDef, objRow(100),
		[]opcode.Column{str(3, "T1")}, []opcode.Column{str(3, "T2")}))
	assert.True(t, c.Touched)
	assert.Contains(t, c.TouchedObjs(), uint32(55))

	require.NoError(t, h.Commit(11))
	require.Len(t, store.saved, 2)
	assert.Equal(t, redo.SCN(11), store.saved[1].SCN)

	row, ok := c.ObjByID(55)
	require.True(t, ok)
	assert.Equal(t, "T2", row.Name)
	assert.True(t, row.Saved)
}

func TestUpdateNullTransition(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()
	objDef := object(t, h, catalog.ObjOBJ)

	require.NoError(t, h.Insert(objDef, objRow(100), objInsert(55, "T1")))
	require.NoError(t, h.Commit(10))

	// DATAOBJ# only in the before image, NAME set to NULL.
	require.NoError(t, h.Update(objDef, objRow(100),
		[]opcode.Column{num(1, 55)}, []opcode.Column{null(3)}))

	row, ok := c.Obj.Get(objRow(100))
	require.True(t, ok)
	assert.Equal(t, uint32(0), row.DataObj)
	assert.Equal(t, "", row.Name)
	assert.Equal(t, uint32(55), row.Obj)
}

func TestUpdateMissingRow(t *testing.T) {
	h, _ := newHandler(t)

	err := h.Update(object(t, h, catalog.ObjOBJ), objRow(999), nil, []opcode.Column{str(3, "X")})
	require.NoError(t, err)
	assert.False(t, h.Catalog().Touched)
}

func TestDeleteMissingRow(t *testing.T) {
	h, _ := newHandler(t)

	require.NoError(t, h.Delete(object(t, h, catalog.ObjOBJ), objRow(999)))
	assert.False(t, h.Catalog().Touched)
}

func TestInsertThenDelete(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()
	objDef := object(t, h, catalog.ObjOBJ)

	require.NoError(t, h.Insert(objDef, objRow(100), objInsert(55, "T1")))
	require.NoError(t, h.Delete(objDef, objRow(100)))

	assert.Equal(t, []uint32{55}, c.TouchedObjs())
	assert.False(t, c.SavedDeleted)
	_, ok := c.Obj.Get(objRow(100))
	assert.False(t, ok)
}

func TestDeleteSavedRow(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()
	objDef := object(t, h, catalog.ObjOBJ)

	require.NoError(t, h.Insert(objDef, objRow(100), objInsert(55, "T1")))
	require.NoError(t, h.Commit(10))

	require.NoError(t, h.Delete(objDef, objRow(100)))
	assert.True(t, c.SavedDeleted)
	assert.True(t, c.Touched)
}

func TestDeleteSegTouchesTable(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()
	segDef := object(t, h, catalog.ObjSEG)
	rid := redo.RowID{DataObj: catalog.ObjSEG, DBA: 0x00400200, Slot: 1}

	// seeded TAB$ row of TAB$ itself lives at file 1, block 32, ts 0
	require.NoError(t, h.Insert(segDef, rid, []opcode.Column{
		num(0, 1), num(1, int64(catalog.ObjTAB*8)), num(2, 0),
	}))
	require.NoError(t, h.Commit(10))

	require.NoError(t, h.Delete(segDef, rid))
	assert.Equal(t, []uint32{catalog.ObjTAB}, c.TouchedObjs())
}

func TestUserInsertTouchesUser(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()
	rid := redo.RowID{DataObj: catalog.ObjUSER, DBA: 0x00400300, Slot: 7}

	require.NoError(t, h.Insert(object(t, h, catalog.ObjUSER), rid, []opcode.Column{
		num(0, 100), str(1, "HR"),
	}))
	assert.True(t, c.IsUserTouched(100))

	require.NoError(t, h.Commit(20))
	u, ok := c.UserByName("HR")
	require.True(t, ok)
	assert.Equal(t, uint32(100), u.User)
}

func TestEColGuardDefault(t *testing.T) {
	h, _ := newHandler(t)
	rid := redo.RowID{DataObj: catalog.ObjECOL, DBA: 0x00400400, Slot: 1}

	require.NoError(t, h.Insert(object(t, h, catalog.ObjECOL), rid, []opcode.Column{
		num(0, 55), num(1, 3),
	}))
	row, ok := h.Catalog().ECol.Get(rid)
	require.True(t, ok)
	assert.Equal(t, int16(-1), row.GuardID)
	assert.Equal(t, int16(3), row.ColNum)
}

func TestUserTableIgnored(t *testing.T) {
	h, _ := newHandler(t)
	user := &catalog.Object{Obj: 55, Name: "T1", Owner: "HR"}

	require.NoError(t, h.Insert(user, objRow(1), []opcode.Column{num(0, 1)}))
	require.NoError(t, h.Insert(nil, objRow(1), nil))
	assert.False(t, h.Catalog().Touched)
}

func TestCommitNotTouched(t *testing.T) {
	h, store := newHandler(t)

	require.NoError(t, h.Commit(5))
	assert.Empty(t, store.saved)
}

func TestCommitStoreError(t *testing.T) {
	h, store := newHandler(t)
	store.err = errors.New("disk full")

	require.NoError(t, h.Insert(object(t, h, catalog.ObjOBJ), objRow(100), objInsert(55, "T1")))
	err := h.Commit(10)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
}

func TestCommitInvalidatesObject(t *testing.T) {
	h, _ := newHandler(t)
	c := h.Catalog()

	require.NoError(t, h.Insert(object(t, h, catalog.ObjOBJ), objRow(100), objInsert(55, "T1")))
	require.NoError(t, h.Commit(10))

	o, ok := c.Object(55)
	require.True(t, ok)
	assert.Equal(t, "SYS.T1", o.FullName())

	require.NoError(t, h.Update(object(t, h, catalog.ObjOBJ), objRow(100),
		[]opcode.Column{str(3, "T1")}, []opcode.Column{str(3, "T9")}))
	require.NoError(t, h.Commit(11))

	o, ok = c.Object(55)
	require.True(t, ok)
	assert.Equal(t, "SYS.T9", o.FullName())
}

func countRows[R catalog.Row](t *catalog.Table[R], rid redo.RowID) int {
	if _, ok := t.Get(rid); ok {
		return 1
	}
	return 0
}
