package catalog

import (
	"fmt"
	"math/big"

	"github.com/redocdc/redocdc/internal/redo"
	"github.com/shopspring/decimal"
)

// Row is implemented by every catalog row type through the embedded RowMeta.
type Row interface {
	Meta() *RowMeta
}

// RowMeta carries the bookkeeping shared by all catalog rows.
type RowMeta struct {
	RowID   redo.RowID `json:"rowid"`
	Touched bool       `json:"-"`
	Saved   bool       `json:"-"`
}

func (m *RowMeta) Meta() *RowMeta { return m }

// UintX is a 128-bit flag word.
type UintX struct {
	Lo uint64 `json:"lo"`
	Hi uint64 `json:"hi"`
}

func (x UintX) IsZero() bool {
	return x.Lo == 0 && x.Hi == 0
}

// IsSet64 reports whether all bits of mask are set in the low word.
func (x UintX) IsSet64(mask uint64) bool {
	return x.Lo&mask == mask
}

func (x UintX) String() string {
	if x.Hi == 0 {
		return fmt.Sprintf("%d", x.Lo)
	}
	v := new(big.Int).SetUint64(x.Hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(x.Lo))
	return v.String()
}

var maxUintX = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ParseUintX parses a non-negative integer literal of up to 128 bits.
func ParseUintX(s string) (UintX, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return UintX{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if d.Sign() < 0 || !d.Equal(d.Truncate(0)) {
		return UintX{}, fmt.Errorf("invalid unsigned integer %q", s)
	}
	v := d.BigInt()
	if v.Cmp(maxUintX) > 0 {
		return UintX{}, fmt.Errorf("number %q exceeds 128 bits", s)
	}
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(v, 64)
	return UintX{Lo: lo.Uint64(), Hi: hi.Uint64()}, nil
}

const (
	ObjTypeTable uint16 = 2
	ObjTypeLob   uint16 = 21

	ObjFlagsTemporary    uint64 = 2
	ObjFlagsSecondary    uint64 = 16
	ObjFlagsInMemoryTemp uint64 = 32
	ObjFlagsDropped      uint64 = 128
)

type SysObj struct {
	RowMeta
	Owner   uint32 `json:"owner"`
	Obj     uint32 `json:"obj"`
	DataObj uint32 `json:"dataobj"`
	Name    string `json:"name"`
	Type    uint16 `json:"type"`
	Flags   UintX  `json:"flags"`
}

func (o *SysObj) IsTable() bool { return o.Type == ObjTypeTable }
func (o *SysObj) IsLob() bool   { return o.Type == ObjTypeLob }

func (o *SysObj) IsTemporary() bool {
	return o.Flags.IsSet64(ObjFlagsTemporary) ||
		o.Flags.IsSet64(ObjFlagsSecondary) ||
		o.Flags.IsSet64(ObjFlagsInMemoryTemp)
}

func (o *SysObj) IsDropped() bool { return o.Flags.IsSet64(ObjFlagsDropped) }

type SysCol struct {
	RowMeta
	Obj         uint32 `json:"obj"`
	Col         int16  `json:"col"`
	SegCol      int16  `json:"segcol"`
	IntCol      int16  `json:"intcol"`
	Name        string `json:"name"`
	Type        uint16 `json:"type"`
	Length      uint64 `json:"length"`
	Precision   int64  `json:"precision"`
	Scale       int64  `json:"scale"`
	CharsetForm uint64 `json:"charsetform"`
	CharsetID   uint64 `json:"charsetid"`
	Null        int64  `json:"null"`
	Property    UintX  `json:"property"`
}

type SysCCol struct {
	RowMeta
	Con    uint32 `json:"con"`
	IntCol int16  `json:"intcol"`
	Obj    uint32 `json:"obj"`
	Spare1 UintX  `json:"spare1"`
}

const (
	CDefTypeCheck      uint16 = 1
	CDefTypePrimaryKey uint16 = 2
	CDefTypeUnique     uint16 = 3
)

type SysCDef struct {
	RowMeta
	Con  uint32 `json:"con"`
	Obj  uint32 `json:"obj"`
	Type uint16 `json:"type"`
}

type SysDeferredStg struct {
	RowMeta
	Obj      uint32 `json:"obj"`
	FlagsStg UintX  `json:"flags_stg"`
}

type SysECol struct {
	RowMeta
	TabObj  uint32 `json:"tabobj"`
	ColNum  int16  `json:"colnum"`
	GuardID int16  `json:"guard_id"`
}

// SegKey is the physical segment address shared by SEG$ and TAB$.
type SegKey struct {
	File  uint32
	Block uint32
	TS    uint32
}

type SysSeg struct {
	RowMeta
	File   uint32 `json:"file"`
	Block  uint32 `json:"block"`
	TS     uint32 `json:"ts"`
	Spare1 UintX  `json:"spare1"`
}

func (s *SysSeg) Key() SegKey { return SegKey{File: s.File, Block: s.Block, TS: s.TS} }

type SysTab struct {
	RowMeta
	Obj      uint32 `json:"obj"`
	DataObj  uint32 `json:"dataobj"`
	TS       uint32 `json:"ts"`
	File     uint32 `json:"file"`
	Block    uint32 `json:"block"`
	CluCols  int16  `json:"clucols"`
	Flags    UintX  `json:"flags"`
	Property UintX  `json:"property"`
}

func (t *SysTab) Key() SegKey { return SegKey{File: t.File, Block: t.Block, TS: t.TS} }

const (
	TabPropertyPartitioned uint64 = 32
	TabPropertyClustered   uint64 = 1024
)

func (t *SysTab) IsPartitioned() bool { return t.Property.IsSet64(TabPropertyPartitioned) }
func (t *SysTab) IsClustered() bool   { return t.Property.IsSet64(TabPropertyClustered) }

type SysTabComPart struct {
	RowMeta
	Obj     uint32 `json:"obj"`
	DataObj uint32 `json:"dataobj"`
	BO      uint32 `json:"bo"`
}

type SysTabPart struct {
	RowMeta
	Obj     uint32 `json:"obj"`
	DataObj uint32 `json:"dataobj"`
	BO      uint32 `json:"bo"`
}

type SysTabSubPart struct {
	RowMeta
	Obj     uint32 `json:"obj"`
	DataObj uint32 `json:"dataobj"`
	PObj    uint32 `json:"pobj"`
}

type SysUser struct {
	RowMeta
	User   uint32 `json:"user"`
	Name   string `json:"name"`
	Spare1 UintX  `json:"spare1"`
}
