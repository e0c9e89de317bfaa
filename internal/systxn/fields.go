package systxn

import (
	"github.com/redocdc/redocdc/internal/catalog"
)

type fieldKind uint8

const (
	kind16 fieldKind = iota
	kind16u
	kind32u
	kind64
	kind64u
	kindXu
	kindObj
	kindUser
	kindString
)

// fieldSpec binds a catalog column name to a typed field of a row.
type fieldSpec[R any] struct {
	kind fieldKind
	ref  func(R) any
}

func spec[R any](kind fieldKind, ref func(R) any) fieldSpec[R] {
	return fieldSpec[R]{kind: kind, ref: ref}
}

var ccolFields = map[string]fieldSpec[*catalog.SysCCol]{
	"CON#":    spec(kind32u, func(r *catalog.SysCCol) any { return &r.Con }),
	"INTCOL#": spec(kind16, func(r *catalog.SysCCol) any { return &r.IntCol }),
	"OBJ#":    spec(kindObj, func(r *catalog.SysCCol) any { return &r.Obj }),
	"SPARE1":  spec(kindXu, func(r *catalog.SysCCol) any { return &r.Spare1 }),
}

var cdefFields = map[string]fieldSpec[*catalog.SysCDef]{
	"CON#":  spec(kind32u, func(r *catalog.SysCDef) any { return &r.Con }),
	"OBJ#":  spec(kindObj, func(r *catalog.SysCDef) any { return &r.Obj }),
	"TYPE#": spec(kind16u, func(r *catalog.SysCDef) any { return &r.Type }),
}

var colFields = map[string]fieldSpec[*catalog.SysCol]{
	"OBJ#":        spec(kindObj, func(r *catalog.SysCol) any { return &r.Obj }),
	"COL#":        spec(kind16, func(r *catalog.SysCol) any { return &r.Col }),
	"SEGCOL#":     spec(kind16, func(r *catalog.SysCol) any { return &r.SegCol }),
	"INTCOL#":     spec(kind16, func(r *catalog.SysCol) any { return &r.IntCol }),
	"NAME":        spec(kindString, func(r *catalog.SysCol) any { return &r.Name }),
	"TYPE#":       spec(kind16u, func(r *catalog.SysCol) any { return &r.Type }),
	"LENGTH":      spec(kind64u, func(r *catalog.SysCol) any { return &r.Length }),
	"PRECISION#":  spec(kind64, func(r *catalog.SysCol) any { return &r.Precision }),
	"SCALE":       spec(kind64, func(r *catalog.SysCol) any { return &r.Scale }),
	"CHARSETFORM": spec(kind64u, func(r *catalog.SysCol) any { return &r.CharsetForm }),
	"CHARSETID":   spec(kind64u, func(r *catalog.SysCol) any { return &r.CharsetID }),
	"NULL$":       spec(kind64, func(r *catalog.SysCol) any { return &r.Null }),
	"PROPERTY":    spec(kindXu, func(r *catalog.SysCol) any { return &r.Property }),
}

var deferredStgFields = map[string]fieldSpec[*catalog.SysDeferredStg]{
	"OBJ#":      spec(kindObj, func(r *catalog.SysDeferredStg) any { return &r.Obj }),
	"FLAGS_STG": spec(kindXu, func(r *catalog.SysDeferredStg) any { return &r.FlagsStg }),
}

var ecolFields = map[string]fieldSpec[*catalog.SysECol]{
	"TABOBJ#":  spec(kindObj, func(r *catalog.SysECol) any { return &r.TabObj }),
	"COLNUM":   spec(kind16, func(r *catalog.SysECol) any { return &r.ColNum }),
	"GUARD_ID": spec(kind16, func(r *catalog.SysECol) any { return &r.GuardID }),
}

var objFields = map[string]fieldSpec[*catalog.SysObj]{
	"OWNER#":   spec(kind32u, func(r *catalog.SysObj) any { return &r.Owner }),
	"OBJ#":     spec(kindObj, func(r *catalog.SysObj) any { return &r.Obj }),
	"DATAOBJ#": spec(kind32u, func(r *catalog.SysObj) any { return &r.DataObj }),
	"NAME":     spec(kindString, func(r *catalog.SysObj) any { return &r.Name }),
	"TYPE#":    spec(kind16u, func(r *catalog.SysObj) any { return &r.Type }),
	"FLAGS":    spec(kindXu, func(r *catalog.SysObj) any { return &r.Flags }),
}

var segFields = map[string]fieldSpec[*catalog.SysSeg]{
	"FILE#":  spec(kind32u, func(r *catalog.SysSeg) any { return &r.File }),
	"BLOCK#": spec(kind32u, func(r *catalog.SysSeg) any { return &r.Block }),
	"TS#":    spec(kind32u, func(r *catalog.SysSeg) any { return &r.TS }),
	"SPARE1": spec(kindXu, func(r *catalog.SysSeg) any { return &r.Spare1 }),
}

var tabFields = map[string]fieldSpec[*catalog.SysTab]{
	"OBJ#":     spec(kindObj, func(r *catalog.SysTab) any { return &r.Obj }),
	"DATAOBJ#": spec(kind32u, func(r *catalog.SysTab) any { return &r.DataObj }),
	"TS#":      spec(kind32u, func(r *catalog.SysTab) any { return &r.TS }),
	"FILE#":    spec(kind32u, func(r *catalog.SysTab) any { return &r.File }),
	"BLOCK#":   spec(kind32u, func(r *catalog.SysTab) any { return &r.Block }),
	"CLUCOLS":  spec(kind16, func(r *catalog.SysTab) any { return &r.CluCols }),
	"FLAGS":    spec(kindXu, func(r *catalog.SysTab) any { return &r.Flags }),
	"PROPERTY": spec(kindXu, func(r *catalog.SysTab) any { return &r.Property }),
}

var tabComPartFields = map[string]fieldSpec[*catalog.SysTabComPart]{
	"OBJ#":     spec(kindObj, func(r *catalog.SysTabComPart) any { return &r.Obj }),
	"DATAOBJ#": spec(kind32u, func(r *catalog.SysTabComPart) any { return &r.DataObj }),
	"BO#":      spec(kind32u, func(r *catalog.SysTabComPart) any { return &r.BO }),
}

var tabPartFields = map[string]fieldSpec[*catalog.SysTabPart]{
	"OBJ#":     spec(kind32u, func(r *catalog.SysTabPart) any { return &r.Obj }),
	"DATAOBJ#": spec(kind32u, func(r *catalog.SysTabPart) any { return &r.DataObj }),
	"BO#":      spec(kindObj, func(r *catalog.SysTabPart) any { return &r.BO }),
}

var tabSubPartFields = map[string]fieldSpec[*catalog.SysTabSubPart]{
	"OBJ#":     spec(kind32u, func(r *catalog.SysTabSubPart) any { return &r.Obj }),
	"DATAOBJ#": spec(kind32u, func(r *catalog.SysTabSubPart) any { return &r.DataObj }),
	"POBJ#":    spec(kindObj, func(r *catalog.SysTabSubPart) any { return &r.PObj }),
}

var userFields = map[string]fieldSpec[*catalog.SysUser]{
	"USER#":  spec(kindUser, func(r *catalog.SysUser) any { return &r.User }),
	"NAME":   spec(kindString, func(r *catalog.SysUser) any { return &r.Name }),
	"SPARE1": spec(kindXu, func(r *catalog.SysUser) any { return &r.Spare1 }),
}
