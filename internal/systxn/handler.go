package systxn

import (
	"fmt"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/sirupsen/logrus"
)

// SchemaWriter persists a catalog snapshot after a system transaction
// changed the dictionary.
type SchemaWriter interface {
	SaveSchema(snap *catalog.Snapshot) error
}

// Handler applies row changes of committed system transactions to the
// catalog.
type Handler struct {
	cat   *catalog.Catalog
	store SchemaWriter
	log   *logrus.Entry
}

// NewHandler creates a handler. store may be nil, in which case schema
// changes are only kept in memory.
func NewHandler(cat *catalog.Catalog, store SchemaWriter) *Handler {
	return &Handler{
		cat:   cat,
		store: store,
		log:   logger.WithComponent("systxn"),
	}
}

func (h *Handler) Catalog() *catalog.Catalog {
	return h.cat
}

// tableOps is the per-table glue between generic row handling and the typed
// catalog table.
type tableOps[R catalog.Row] struct {
	t      *catalog.Table[R]
	fields map[string]fieldSpec[R]
	newRow func() R
	owner  func(h *Handler, r R)
}

// rowOps is implemented by tableOps for every catalog row type.
type rowOps interface {
	insert(h *Handler, obj *catalog.Object, rid redo.RowID, after []opcode.Column) error
	update(h *Handler, obj *catalog.Object, rid redo.RowID, before, after []opcode.Column) error
	delete(h *Handler, rid redo.RowID)
}

func (o tableOps[R]) insert(h *Handler, obj *catalog.Object, rid redo.RowID, after []opcode.Column) error {
	return insertRow(h, o, obj, rid, after)
}

func (o tableOps[R]) update(h *Handler, obj *catalog.Object, rid redo.RowID, before, after []opcode.Column) error {
	return updateRow(h, o, obj, rid, before, after)
}

func (o tableOps[R]) delete(h *Handler, rid redo.RowID) {
	deleteRow(h, o, rid)
}

// Insert adds a catalog row. A row already stored under rid is an
// inconsistency.
func (h *Handler) Insert(obj *catalog.Object, rid redo.RowID, after []opcode.Column) error {
	ops := h.opsFor(obj)
	if ops == nil {
		return nil
	}
	return ops.insert(h, obj, rid, after)
}

// Update applies the changed columns to the row at rid. A missing row is
// logged and skipped.
func (h *Handler) Update(obj *catalog.Object, rid redo.RowID, before, after []opcode.Column) error {
	ops := h.opsFor(obj)
	if ops == nil {
		return nil
	}
	return ops.update(h, obj, rid, before, after)
}

func (h *Handler) Delete(obj *catalog.Object, rid redo.RowID) error {
	ops := h.opsFor(obj)
	if ops == nil {
		return nil
	}
	ops.delete(h, rid)
	return nil
}

// Commit finishes a system transaction: touched indexes are rebuilt, the
// schema is persisted when any table changed and derived objects are
// invalidated.
func (h *Handler) Commit(scn redo.SCN) error {
	if !h.cat.Touched {
		return nil
	}

	if h.cat.RefreshIndexes() {
		if h.store != nil {
			if err := h.store.SaveSchema(h.cat.Snapshot(scn)); err != nil {
				return fmt.Errorf("failed to save schema at scn %s: %w", scn, err)
			}
		}
		h.cat.MarkSaved(scn)
		h.log.WithField("scn", scn).Debugf("schema saved, objs=%v users=%v",
			h.cat.TouchedObjs(), h.cat.TouchedUsers())
	}

	h.cat.RebuildMaps()
	return nil
}

func (h *Handler) opsFor(obj *catalog.Object) rowOps {
	if obj == nil {
		return nil
	}
	c := h.cat
	switch obj.System {
	case catalog.TableObj:
		return tableOps[*catalog.SysObj]{
			t: c.Obj, fields: objFields,
			newRow: func() *catalog.SysObj { return &catalog.SysObj{} },
			owner:  func(h *Handler, r *catalog.SysObj) { h.cat.TouchObj(r.Obj) },
		}
	case catalog.TableCol:
		return tableOps[*catalog.SysCol]{
			t: c.Col, fields: colFields,
			newRow: func() *catalog.SysCol { return &catalog.SysCol{} },
			owner:  func(h *Handler, r *catalog.SysCol) { h.cat.TouchObj(r.Obj) },
		}
	case catalog.TableCCol:
		return tableOps[*catalog.SysCCol]{
			t: c.CCol, fields: ccolFields,
			newRow: func() *catalog.SysCCol { return &catalog.SysCCol{} },
			owner:  func(h *Handler, r *catalog.SysCCol) { h.cat.TouchObj(r.Obj) },
		}
	case catalog.TableCDef:
		return tableOps[*catalog.SysCDef]{
			t: c.CDef, fields: cdefFields,
			newRow: func() *catalog.SysCDef { return &catalog.SysCDef{} },
			owner:  func(h *Handler, r *catalog.SysCDef) { h.cat.TouchObj(r.Obj) },
		}
	case catalog.TableDeferredStg:
		return tableOps[*catalog.SysDeferredStg]{
			t: c.DeferredStg, fields: deferredStgFields,
			newRow: func() *catalog.SysDeferredStg { return &catalog.SysDeferredStg{} },
			owner:  func(h *Handler, r *catalog.SysDeferredStg) { h.cat.TouchObj(r.Obj) },
		}
	case catalog.TableECol:
		return tableOps[*catalog.SysECol]{
			t: c.ECol, fields: ecolFields,
			newRow: func() *catalog.SysECol { return &catalog.SysECol{GuardID: -1} },
			owner:  func(h *Handler, r *catalog.SysECol) { h.cat.TouchObj(r.TabObj) },
		}
	case catalog.TableSeg:
		return tableOps[*catalog.SysSeg]{
			t: c.Seg, fields: segFields,
			newRow: func() *catalog.SysSeg { return &catalog.SysSeg{} },
			owner: func(h *Handler, r *catalog.SysSeg) {
				if tab, ok := h.cat.TabByKey(r.Key()); ok {
					h.cat.TouchObj(tab.Obj)
				}
			},
		}
	case catalog.TableTab:
		return tableOps[*catalog.SysTab]{
			t: c.Tab, fields: tabFields,
			newRow: func() *catalog.SysTab { return &catalog.SysTab{} },
			owner:  func(h *Handler, r *catalog.SysTab) { h.cat.TouchObj(r.Obj) },
		}
	case catalog.TableTabComPart:
		return tableOps[*catalog.SysTabComPart]{
			t: c.TabComPart, fields: tabComPartFields,
			newRow: func() *catalog.SysTabComPart { return &catalog.SysTabComPart{} },
			owner:  func(h *Handler, r *catalog.SysTabComPart) { h.cat.TouchObj(r.BO) },
		}
	case catalog.TableTabPart:
		return tableOps[*catalog.SysTabPart]{
			t: c.TabPart, fields: tabPartFields,
			newRow: func() *catalog.SysTabPart { return &catalog.SysTabPart{} },
			owner:  func(h *Handler, r *catalog.SysTabPart) { h.cat.TouchObj(r.BO) },
		}
	case catalog.TableTabSubPart:
		return tableOps[*catalog.SysTabSubPart]{
			t: c.TabSubPart, fields: tabSubPartFields,
			newRow: func() *catalog.SysTabSubPart { return &catalog.SysTabSubPart{} },
			owner:  func(h *Handler, r *catalog.SysTabSubPart) { h.cat.TouchObj(r.PObj) },
		}
	case catalog.TableUser:
		return tableOps[*catalog.SysUser]{
			t: c.User, fields: userFields,
			newRow: func() *catalog.SysUser { return &catalog.SysUser{} },
			owner:  func(h *Handler, r *catalog.SysUser) { h.cat.TouchUser(r.User) },
		}
	}
	return nil
}

// changes merges the before and after images into per-column changes. A
// column mentioned only in the before image, or with a NULL or empty after
// value, transitions to NULL.
func changes(obj *catalog.Object, before, after []opcode.Column) []columnChange {
	var out []columnChange
	seen := make(map[uint16]bool, len(after)+len(before))

	for _, c := range after {
		col, ok := obj.Column(int(c.Index))
		if !ok || seen[c.Index] {
			continue
		}
		seen[c.Index] = true
		out = append(out, columnChange{
			col:  col,
			data: c.Data,
			set:  !c.Null && len(c.Data) > 0,
		})
	}
	for _, c := range before {
		col, ok := obj.Column(int(c.Index))
		if !ok || seen[c.Index] {
			continue
		}
		seen[c.Index] = true
		out = append(out, columnChange{col: col})
	}
	return out
}

func applyFields[R catalog.Row](h *Handler, ops tableOps[R], r R, chs []columnChange) (bool, error) {
	changed := false
	for _, ch := range chs {
		fs, ok := ops.fields[ch.col.Name]
		if !ok {
			continue
		}
		c, err := h.setField(ops.t.Name, fs.kind, fs.ref(r), ch)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func insertRow[R catalog.Row](h *Handler, ops tableOps[R], obj *catalog.Object, rid redo.RowID, after []opcode.Column) error {
	if _, ok := ops.t.Get(rid); ok {
		return NewDDLInconsistencyError(ops.t.Name, "", fmt.Sprintf("duplicate rowid %s", rid))
	}

	r := ops.newRow()
	r.Meta().RowID = rid
	if _, err := applyFields(h, ops, r, changes(obj, nil, after)); err != nil {
		return err
	}
	if _, err := ops.t.Insert(r); err != nil {
		return NewDDLInconsistencyError(ops.t.Name, "", err.Error())
	}

	ops.owner(h, r)
	h.cat.MarkChanged(ops.t, r)
	h.log.WithFields(logrus.Fields{"table": ops.t.Name, "rowid": rid}).Debug("insert")
	return nil
}

func updateRow[R catalog.Row](h *Handler, ops tableOps[R], obj *catalog.Object, rid redo.RowID, before, after []opcode.Column) error {
	r, ok := ops.t.Get(rid)
	if !ok {
		h.log.WithFields(logrus.Fields{"table": ops.t.Name, "rowid": rid}).Debug("missing row on update")
		return nil
	}

	changed, err := applyFields(h, ops, r, changes(obj, before, after))
	if changed {
		ops.owner(h, r)
		h.cat.MarkChanged(ops.t, r)
		h.log.WithFields(logrus.Fields{"table": ops.t.Name, "rowid": rid}).Debug("update")
	}
	return err
}

func deleteRow[R catalog.Row](h *Handler, ops tableOps[R], rid redo.RowID) {
	r, ok := ops.t.Delete(rid)
	if !ok {
		h.log.WithFields(logrus.Fields{"table": ops.t.Name, "rowid": rid}).Debug("missing row on delete")
		return
	}

	ops.owner(h, r)
	if r.Meta().Saved {
		h.cat.SavedDeleted = true
	}
	h.cat.MarkChanged(ops.t, nil)
	h.log.WithFields(logrus.Fields{"table": ops.t.Name, "rowid": rid}).Debug("delete")
}
