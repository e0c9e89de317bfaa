package catalog

import "fmt"

// SystemTable identifies the catalog table a row change applies to.
type SystemTable uint8

const (
	TableNone SystemTable = iota
	TableCCol
	TableCDef
	TableCol
	TableDeferredStg
	TableECol
	TableObj
	TableSeg
	TableTab
	TableTabComPart
	TableTabPart
	TableTabSubPart
	TableUser
)

var systemTableNames = map[SystemTable]string{
	TableCCol:        "CCOL$",
	TableCDef:        "CDEF$",
	TableCol:         "COL$",
	TableDeferredStg: "DEFERRED_STG$",
	TableECol:        "ECOL$",
	TableObj:         "OBJ$",
	TableSeg:         "SEG$",
	TableTab:         "TAB$",
	TableTabComPart:  "TABCOMPART$",
	TableTabPart:     "TABPART$",
	TableTabSubPart:  "TABSUBPART$",
	TableUser:        "USER$",
}

func (s SystemTable) String() string {
	if name, ok := systemTableNames[s]; ok {
		return name
	}
	return "NONE"
}

// SystemTableByName returns the catalog table kind of a SYS-owned table.
func SystemTableByName(name string) SystemTable {
	for k, n := range systemTableNames {
		if n == name {
			return k
		}
	}
	return TableNone
}

// Column is the derived definition of a table column.
type Column struct {
	Name      string `json:"name"`
	TypeNo    uint16 `json:"type"`
	Col       int16  `json:"col"`
	SegCol    int16  `json:"segcol"`
	IntCol    int16  `json:"intcol"`
	Length    uint64 `json:"length"`
	Precision int64  `json:"precision"`
	Scale     int64  `json:"scale"`
	CharsetID uint64 `json:"charset_id"`
	Nullable  bool   `json:"nullable"`
	Guard     bool   `json:"guard,omitempty"`
	PKey      bool   `json:"pk,omitempty"`
}

// Object is the table definition derived from the catalog rows.
type Object struct {
	Obj         uint32      `json:"obj"`
	DataObj     uint32      `json:"dataobj"`
	Owner       string      `json:"owner"`
	OwnerID     uint32      `json:"owner_id"`
	Name        string      `json:"name"`
	System      SystemTable `json:"system"`
	Partitioned bool        `json:"partitioned,omitempty"`
	Columns     []*Column   `json:"columns"`
}

func (o *Object) FullName() string {
	return fmt.Sprintf("%s.%s", o.Owner, o.Name)
}

// Column returns the column stored at the 0-based segment position.
func (o *Object) Column(segPos int) (*Column, bool) {
	for _, c := range o.Columns {
		if int(c.SegCol) == segPos+1 {
			return c, true
		}
	}
	return nil, false
}

func (o *Object) ColumnByName(name string) (*Column, bool) {
	for _, c := range o.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
