package catalog

import (
	"fmt"

	"github.com/redocdc/redocdc/internal/redo"
)

// Snapshot is the serialisable content of the catalog.
type Snapshot struct {
	SCN         redo.SCN          `json:"scn"`
	Obj         []*SysObj         `json:"obj"`
	Col         []*SysCol         `json:"col"`
	CCol        []*SysCCol        `json:"ccol"`
	CDef        []*SysCDef        `json:"cdef"`
	DeferredStg []*SysDeferredStg `json:"deferred_stg"`
	ECol        []*SysECol        `json:"ecol"`
	Seg         []*SysSeg         `json:"seg"`
	Tab         []*SysTab         `json:"tab"`
	TabComPart  []*SysTabComPart  `json:"tabcompart"`
	TabPart     []*SysTabPart     `json:"tabpart"`
	TabSubPart  []*SysTabSubPart  `json:"tabsubpart"`
	User        []*SysUser        `json:"user"`
}

// Snapshot captures the live rows. The rows are shared with the catalog and
// must be serialised before the next mutation.
func (c *Catalog) Snapshot(scn redo.SCN) *Snapshot {
	return &Snapshot{
		SCN:         scn,
		Obj:         c.Obj.Rows(),
		Col:         c.Col.Rows(),
		CCol:        c.CCol.Rows(),
		CDef:        c.CDef.Rows(),
		DeferredStg: c.DeferredStg.Rows(),
		ECol:        c.ECol.Rows(),
		Seg:         c.Seg.Rows(),
		Tab:         c.Tab.Rows(),
		TabComPart:  c.TabComPart.Rows(),
		TabPart:     c.TabPart.Rows(),
		TabSubPart:  c.TabSubPart.Rows(),
		User:        c.User.Rows(),
	}
}

func (s *Snapshot) RowCount() int {
	return len(s.Obj) + len(s.Col) + len(s.CCol) + len(s.CDef) + len(s.DeferredStg) +
		len(s.ECol) + len(s.Seg) + len(s.Tab) + len(s.TabComPart) + len(s.TabPart) +
		len(s.TabSubPart) + len(s.User)
}

// Restore builds a catalog from a persisted snapshot. All rows are marked
// saved.
func Restore(s *Snapshot) (*Catalog, error) {
	c := New()
	if err := restoreRows(c.Obj, s.Obj); err != nil {
		return nil, err
	}
	if err := restoreRows(c.Col, s.Col); err != nil {
		return nil, err
	}
	if err := restoreRows(c.CCol, s.CCol); err != nil {
		return nil, err
	}
	if err := restoreRows(c.CDef, s.CDef); err != nil {
		return nil, err
	}
	if err := restoreRows(c.DeferredStg, s.DeferredStg); err != nil {
		return nil, err
	}
	if err := restoreRows(c.ECol, s.ECol); err != nil {
		return nil, err
	}
	if err := restoreRows(c.Seg, s.Seg); err != nil {
		return nil, err
	}
	if err := restoreRows(c.Tab, s.Tab); err != nil {
		return nil, err
	}
	if err := restoreRows(c.TabComPart, s.TabComPart); err != nil {
		return nil, err
	}
	if err := restoreRows(c.TabPart, s.TabPart); err != nil {
		return nil, err
	}
	if err := restoreRows(c.TabSubPart, s.TabSubPart); err != nil {
		return nil, err
	}
	if err := restoreRows(c.User, s.User); err != nil {
		return nil, err
	}

	c.buildIndexes(true)
	c.SCN = s.SCN
	return c, nil
}

func restoreRows[R Row](t *Table[R], rows []R) error {
	for _, r := range rows {
		r.Meta().Saved = true
		if _, err := t.Insert(r); err != nil {
			return fmt.Errorf("failed to restore %s row %s: %w", t.Name, r.Meta().RowID, err)
		}
	}
	return nil
}
