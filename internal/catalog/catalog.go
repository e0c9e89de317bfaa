package catalog

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring"
	"github.com/patrickmn/go-cache"
	"github.com/redocdc/redocdc/internal/redo"
)

// Touchable is a catalog table that records whether it changed since the
// last commit.
type Touchable interface {
	Touch()
	Touched() bool
}

// Catalog mirrors the dictionary tables as reconstructed from the log. It is
// owned by the single decode goroutine and is not safe for concurrent
// mutation; derived objects are served from a concurrent cache.
type Catalog struct {
	Obj         *Table[*SysObj]
	Col         *Table[*SysCol]
	CCol        *Table[*SysCCol]
	CDef        *Table[*SysCDef]
	DeferredStg *Table[*SysDeferredStg]
	ECol        *Table[*SysECol]
	Seg         *Table[*SysSeg]
	Tab         *Table[*SysTab]
	TabComPart  *Table[*SysTabComPart]
	TabPart     *Table[*SysTabPart]
	TabSubPart  *Table[*SysTabSubPart]
	User        *Table[*SysUser]

	// Touched is set by any row change since the last commit.
	Touched bool
	// SavedDeleted is set when a row that was already persisted is deleted.
	SavedDeleted bool
	// SCN of the last persisted schema.
	SCN redo.SCN

	touchedObjs  *roaring.Bitmap
	touchedUsers *roaring.Bitmap

	objByID       map[uint32]*SysObj
	tabByObj      map[uint32]*SysTab
	tabByKey      map[SegKey]*SysTab
	userByID      map[uint32]*SysUser
	colsByObj     map[uint32][]*SysCol
	pkByObj       map[uint32]map[int16]bool
	baseByDataObj map[uint32]uint32

	objects *cache.Cache
}

func New() *Catalog {
	c := &Catalog{
		Obj:          NewTable[*SysObj]("OBJ$"),
		Col:          NewTable[*SysCol]("COL$"),
		CCol:         NewTable[*SysCCol]("CCOL$"),
		CDef:         NewTable[*SysCDef]("CDEF$"),
		DeferredStg:  NewTable[*SysDeferredStg]("DEFERRED_STG$"),
		ECol:         NewTable[*SysECol]("ECOL$"),
		Seg:          NewTable[*SysSeg]("SEG$"),
		Tab:          NewTable[*SysTab]("TAB$"),
		TabComPart:   NewTable[*SysTabComPart]("TABCOMPART$"),
		TabPart:      NewTable[*SysTabPart]("TABPART$"),
		TabSubPart:   NewTable[*SysTabSubPart]("TABSUBPART$"),
		User:         NewTable[*SysUser]("USER$"),
		SCN:          redo.ZeroSCN,
		touchedObjs:  roaring.NewBitmap(),
		touchedUsers: roaring.NewBitmap(),
		objects:      cache.New(cache.NoExpiration, 0),
	}
	c.buildIndexes(true)
	return c
}

func (c *Catalog) tables() []Touchable {
	return []Touchable{
		c.Obj, c.Col, c.CCol, c.CDef, c.DeferredStg, c.ECol,
		c.Seg, c.Tab, c.TabComPart, c.TabPart, c.TabSubPart, c.User,
	}
}

// MarkChanged flags a row, its table and the catalog as touched.
func (c *Catalog) MarkChanged(t Touchable, r Row) {
	if r != nil {
		r.Meta().Touched = true
	}
	t.Touch()
	c.Touched = true
}

func (c *Catalog) TouchObj(obj uint32) {
	if obj != 0 {
		c.touchedObjs.Add(obj)
	}
}

func (c *Catalog) TouchUser(user uint32) {
	c.touchedUsers.Add(user)
}

func (c *Catalog) IsObjTouched(obj uint32) bool {
	return c.touchedObjs.Contains(obj)
}

func (c *Catalog) IsUserTouched(user uint32) bool {
	return c.touchedUsers.Contains(user)
}

func (c *Catalog) TouchedObjs() []uint32 {
	return c.touchedObjs.ToArray()
}

func (c *Catalog) TouchedUsers() []uint32 {
	return c.touchedUsers.ToArray()
}

// RefreshIndexes rebuilds the natural-key indexes of touched tables and
// reports whether any table changed, i.e. whether the schema needs to be
// persisted.
func (c *Catalog) RefreshIndexes() bool {
	for _, t := range c.tables() {
		if t.Touched() {
			c.buildIndexes(false)
			return true
		}
	}
	return false
}

// RebuildMaps drops derived definitions of touched objects and users and
// resets all touched state.
func (c *Catalog) RebuildMaps() {
	c.buildIndexes(false)

	if !c.touchedUsers.IsEmpty() {
		c.objects.Flush()
	} else {
		it := c.touchedObjs.Iterator()
		for it.HasNext() {
			obj := it.Next()
			c.objects.Delete(objectKey(obj))
			if base, ok := c.baseByDataObj[obj]; ok {
				c.objects.Delete(objectKey(base))
			}
		}
	}

	c.Obj.clearTouched()
	c.Col.clearTouched()
	c.CCol.clearTouched()
	c.CDef.clearTouched()
	c.DeferredStg.clearTouched()
	c.ECol.clearTouched()
	c.Seg.clearTouched()
	c.Tab.clearTouched()
	c.TabComPart.clearTouched()
	c.TabPart.clearTouched()
	c.TabSubPart.clearTouched()
	c.User.clearTouched()

	c.touchedObjs.Clear()
	c.touchedUsers.Clear()
	c.Touched = false
	c.SavedDeleted = false
}

// MarkSaved records that every live row is part of the schema persisted at
// scn.
func (c *Catalog) MarkSaved(scn redo.SCN) {
	c.Obj.markSaved()
	c.Col.markSaved()
	c.CCol.markSaved()
	c.CDef.markSaved()
	c.DeferredStg.markSaved()
	c.ECol.markSaved()
	c.Seg.markSaved()
	c.Tab.markSaved()
	c.TabComPart.markSaved()
	c.TabPart.markSaved()
	c.TabSubPart.markSaved()
	c.User.markSaved()
	c.SCN = scn
}

func (c *Catalog) buildIndexes(force bool) {
	if force || c.Obj.Touched() || c.Tab.Touched() || c.TabPart.Touched() ||
		c.TabSubPart.Touched() || c.TabComPart.Touched() {
		c.objByID = make(map[uint32]*SysObj, c.Obj.Len())
		c.baseByDataObj = make(map[uint32]uint32)
		c.Obj.Each(func(o *SysObj) bool {
			c.objByID[o.Obj] = o
			if o.DataObj != 0 {
				c.baseByDataObj[o.DataObj] = o.Obj
			}
			return true
		})

		c.tabByObj = make(map[uint32]*SysTab, c.Tab.Len())
		c.tabByKey = make(map[SegKey]*SysTab, c.Tab.Len())
		c.Tab.Each(func(t *SysTab) bool {
			c.tabByObj[t.Obj] = t
			c.tabByKey[t.Key()] = t
			if t.DataObj != 0 {
				c.baseByDataObj[t.DataObj] = t.Obj
			}
			return true
		})

		compartBase := make(map[uint32]uint32, c.TabComPart.Len())
		c.TabComPart.Each(func(p *SysTabComPart) bool {
			compartBase[p.Obj] = p.BO
			return true
		})
		c.TabPart.Each(func(p *SysTabPart) bool {
			if p.DataObj != 0 {
				c.baseByDataObj[p.DataObj] = p.BO
			}
			return true
		})
		c.TabSubPart.Each(func(p *SysTabSubPart) bool {
			if base, ok := compartBase[p.PObj]; ok && p.DataObj != 0 {
				c.baseByDataObj[p.DataObj] = base
			}
			return true
		})
	}

	if force || c.User.Touched() {
		c.userByID = make(map[uint32]*SysUser, c.User.Len())
		c.User.Each(func(u *SysUser) bool {
			c.userByID[u.User] = u
			return true
		})
	}

	if force || c.Col.Touched() {
		c.colsByObj = make(map[uint32][]*SysCol)
		c.Col.Each(func(col *SysCol) bool {
			c.colsByObj[col.Obj] = append(c.colsByObj[col.Obj], col)
			return true
		})
	}

	if force || c.CDef.Touched() || c.CCol.Touched() {
		pkCons := make(map[uint32]bool)
		c.CDef.Each(func(d *SysCDef) bool {
			if d.Type == CDefTypePrimaryKey {
				pkCons[d.Con] = true
			}
			return true
		})
		c.pkByObj = make(map[uint32]map[int16]bool)
		c.CCol.Each(func(cc *SysCCol) bool {
			if !pkCons[cc.Con] {
				return true
			}
			if c.pkByObj[cc.Obj] == nil {
				c.pkByObj[cc.Obj] = make(map[int16]bool)
			}
			c.pkByObj[cc.Obj][cc.IntCol] = true
			return true
		})
	}
}

func (c *Catalog) ObjByID(obj uint32) (*SysObj, bool) {
	o, ok := c.objByID[obj]
	return o, ok
}

func (c *Catalog) TabByObj(obj uint32) (*SysTab, bool) {
	t, ok := c.tabByObj[obj]
	return t, ok
}

func (c *Catalog) TabByKey(key SegKey) (*SysTab, bool) {
	t, ok := c.tabByKey[key]
	return t, ok
}

func (c *Catalog) UserByID(user uint32) (*SysUser, bool) {
	u, ok := c.userByID[user]
	return u, ok
}

func (c *Catalog) UserByName(name string) (*SysUser, bool) {
	for _, u := range c.userByID {
		if u.Name == name {
			return u, true
		}
	}
	return nil, false
}

func objectKey(obj uint32) string {
	return strconv.FormatUint(uint64(obj), 10)
}

// Object returns the derived definition of a table by object number.
func (c *Catalog) Object(obj uint32) (*Object, bool) {
	if cached, ok := c.objects.Get(objectKey(obj)); ok {
		return cached.(*Object), true
	}
	o, ok := c.buildObject(obj)
	if !ok {
		return nil, false
	}
	c.objects.Set(objectKey(obj), o, cache.NoExpiration)
	return o, true
}

// Resolve finds the table a change belongs to: by object number first, then
// through the data object of the table, partition or subpartition.
func (c *Catalog) Resolve(obj, dataObj uint32) (*Object, bool) {
	if obj != 0 {
		if o, ok := c.Object(obj); ok {
			return o, true
		}
	}
	if base, ok := c.baseByDataObj[dataObj]; ok {
		return c.Object(base)
	}
	return nil, false
}

func (c *Catalog) buildObject(obj uint32) (*Object, bool) {
	so, ok := c.objByID[obj]
	if !ok {
		return nil, false
	}

	o := &Object{
		Obj:     so.Obj,
		DataObj: so.DataObj,
		OwnerID: so.Owner,
		Name:    so.Name,
	}
	if u, ok := c.userByID[so.Owner]; ok {
		o.Owner = u.Name
	} else {
		o.Owner = fmt.Sprintf("USER_%d", so.Owner)
	}
	if tab, ok := c.tabByObj[obj]; ok {
		if tab.DataObj != 0 {
			o.DataObj = tab.DataObj
		}
		o.Partitioned = tab.IsPartitioned()
	}
	if o.Owner == "SYS" {
		o.System = SystemTableByName(so.Name)
	}

	pk := c.pkByObj[obj]
	for _, sc := range c.colsByObj[obj] {
		if sc.SegCol <= 0 {
			continue
		}
		o.Columns = append(o.Columns, &Column{
			Name:      sc.Name,
			TypeNo:    sc.Type,
			Col:       sc.Col,
			SegCol:    sc.SegCol,
			IntCol:    sc.IntCol,
			Length:    sc.Length,
			Precision: sc.Precision,
			Scale:     sc.Scale,
			CharsetID: sc.CharsetID,
			Nullable:  sc.Null == 0,
			PKey:      pk[sc.IntCol],
		})
	}
	sort.Slice(o.Columns, func(i, j int) bool {
		return o.Columns[i].SegCol < o.Columns[j].SegCol
	})

	return o, true
}

// Objects returns the derived definitions of all tables owned by owner, or
// of every table when owner is empty.
func (c *Catalog) Objects(owner string) []*Object {
	var out []*Object
	for id, so := range c.objByID {
		if !so.IsTable() {
			continue
		}
		o, ok := c.Object(id)
		if !ok || (owner != "" && o.Owner != owner) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Obj < out[j].Obj })
	return out
}
