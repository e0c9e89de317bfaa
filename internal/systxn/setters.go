package systxn

import (
	"fmt"
	"math"
	"math/big"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/value"
	"github.com/shopspring/decimal"
)

// columnChange is one column of a row image after pairing before and after
// images.
type columnChange struct {
	col  *catalog.Column
	data []byte
	set  bool // a non-null after value is present
}

// setField applies one column change to the field behind ptr and reports
// whether the stored value changed.
func (h *Handler) setField(table string, kind fieldKind, ptr any, ch columnChange) (bool, error) {
	if !ch.set {
		return h.clearField(kind, ptr), nil
	}

	if kind == kindString {
		if ch.col.TypeNo != value.TypeVarchar2 && ch.col.TypeNo != value.TypeChar {
			return false, NewDDLInconsistencyError(table, ch.col.Name,
				fmt.Sprintf("type %d is not a character type", ch.col.TypeNo))
		}
		s, err := value.String(ch.data, ch.col.CharsetID)
		if err != nil {
			return false, NewDDLInconsistencyError(table, ch.col.Name, err.Error())
		}
		p := ptr.(*string)
		if *p == s {
			return false, nil
		}
		*p = s
		return true, nil
	}

	if ch.col.TypeNo != value.TypeNumber {
		return false, NewDDLInconsistencyError(table, ch.col.Name,
			fmt.Sprintf("type %d is not a number", ch.col.TypeNo))
	}
	d, err := value.Number(ch.data)
	if err != nil {
		return false, NewDDLInconsistencyError(table, ch.col.Name, err.Error())
	}
	if !d.Equal(d.Truncate(0)) {
		return false, NewDDLInconsistencyError(table, ch.col.Name, fmt.Sprintf("non-integer value %s", d))
	}

	bad := func() (bool, error) {
		return false, NewDDLInconsistencyError(table, ch.col.Name, fmt.Sprintf("value %s out of range", d))
	}

	switch kind {
	case kind16:
		if !inRange(d, math.MinInt16, math.MaxInt16) {
			return bad()
		}
		return assign(ptr.(*int16), int16(d.IntPart())), nil

	case kind16u:
		if !inRange(d, 0, math.MaxUint16) {
			return bad()
		}
		return assign(ptr.(*uint16), uint16(d.IntPart())), nil

	case kind32u:
		if !inRange(d, 0, math.MaxUint32) {
			return bad()
		}
		return assign(ptr.(*uint32), uint32(d.IntPart())), nil

	case kindObj, kindUser:
		if !inRange(d, 0, math.MaxUint32) {
			return bad()
		}
		p := ptr.(*uint32)
		old := *p
		changed := assign(p, uint32(d.IntPart()))
		if changed {
			h.touchID(kind, old)
			h.touchID(kind, *p)
		}
		return changed, nil

	case kind64:
		if !inRange(d, math.MinInt64, math.MaxInt64) {
			return bad()
		}
		return assign(ptr.(*int64), d.IntPart()), nil

	case kind64u:
		if d.Sign() < 0 || d.GreaterThan(decimal.NewFromBigInt(maxUint64, 0)) {
			return bad()
		}
		return assign(ptr.(*uint64), d.BigInt().Uint64()), nil

	case kindXu:
		x, err := catalog.ParseUintX(d.String())
		if err != nil {
			return false, NewDDLInconsistencyError(table, ch.col.Name, err.Error())
		}
		return assign(ptr.(*catalog.UintX), x), nil
	}

	return false, fmt.Errorf("unknown field kind %d", kind)
}

// clearField implements the NULL transition: a nonzero value becomes zero.
func (h *Handler) clearField(kind fieldKind, ptr any) bool {
	switch p := ptr.(type) {
	case *int16:
		return assign(p, 0)
	case *uint16:
		return assign(p, 0)
	case *uint32:
		old := *p
		if !assign(p, 0) {
			return false
		}
		h.touchID(kind, old)
		return true
	case *int64:
		return assign(p, 0)
	case *uint64:
		return assign(p, 0)
	case *catalog.UintX:
		return assign(p, catalog.UintX{})
	case *string:
		return assign(p, "")
	}
	return false
}

func (h *Handler) touchID(kind fieldKind, id uint32) {
	switch kind {
	case kindObj:
		h.cat.TouchObj(id)
	case kindUser:
		h.cat.TouchUser(id)
	}
}

func assign[T comparable](p *T, v T) bool {
	if *p == v {
		return false
	}
	*p = v
	return true
}

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

func inRange(d decimal.Decimal, lo, hi int64) bool {
	return !d.LessThan(decimal.NewFromInt(lo)) && !d.GreaterThan(decimal.NewFromInt(hi))
}
