package opcode

import (
	"fmt"
	"io"

	"github.com/redocdc/redocdc/internal/redo"
)

// KDO row operation subtypes.
const (
	KDOIUR uint8 = 0x01
	KDOIRP uint8 = 0x02
	KDODRP uint8 = 0x03
	KDOLKR uint8 = 0x04
	KDOURP uint8 = 0x05
	KDOORP uint8 = 0x06
	KDOMFC uint8 = 0x07
	KDOCFA uint8 = 0x08
	KDOCKI uint8 = 0x09
	KDOSKL uint8 = 0x0A
	KDOQMI uint8 = 0x0B
	KDOQMD uint8 = 0x0C
	KDOTBF uint8 = 0x0D
	KDODSC uint8 = 0x0E
	KDOLMN uint8 = 0x10
	KDOLLB uint8 = 0x11
)

var kdoNames = map[uint8]string{
	KDOIUR: "IUR", KDOIRP: "IRP", KDODRP: "DRP", KDOLKR: "LKR",
	KDOURP: "URP", KDOORP: "ORP", KDOMFC: "MFC", KDOCFA: "CFA",
	KDOCKI: "CKI", KDOSKL: "SKL", KDOQMI: "QMI", KDOQMD: "QMD",
	KDOTBF: "TBF", KDODSC: "DSC", KDOLMN: "LMN", KDOLLB: "LLB",
}

func KDOName(op uint8) string {
	if name, ok := kdoNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", op)
}

// XType tells whether a row change is a redo or a rollback of one.
type XType uint8

const (
	XTypeUnknown XType = iota
	XTypeRedo
	XTypeRollback
)

func parseXType(b uint8) XType {
	switch b {
	case 1:
		return XTypeRedo
	case 2:
		return XTypeRollback
	}
	return XTypeUnknown
}

func (x XType) String() string {
	switch x {
	case XTypeRedo:
		return "XA"
	case XTypeRollback:
		return "XR"
	}
	return "??"
}

// RowFlags is the row header flag byte.
type RowFlags uint8

const (
	RowNext       RowFlags = 0x01
	RowPrev       RowFlags = 0x02
	RowLast       RowFlags = 0x04
	RowFirst      RowFlags = 0x08
	RowDeleted    RowFlags = 0x10
	RowHead       RowFlags = 0x20
	RowClustered  RowFlags = 0x40
	RowClusterKey RowFlags = 0x80
)

func (f RowFlags) Has(flag RowFlags) bool { return f&flag != 0 }

// String renders the flags as KCHDFLPN with '-' for cleared bits.
func (f RowFlags) String() string {
	const letters = "KCHDFLPN"
	out := []byte("--------")
	for i := 0; i < 8; i++ {
		if f&(0x80>>i) != 0 {
			out[i] = letters[i]
		}
	}
	return string(out)
}

// Column is one column image of a row change.
type Column struct {
	Index uint16
	Data  []byte
	Null  bool
}

// KDO is the data layer row operation.
type KDO struct {
	BDBA  uint32
	HDBA  uint32
	MaxFr uint16
	Op    uint8
	XType XType
	ITLI  uint8
	ISpac uint8

	TabN  uint8
	Slot  uint16
	Flags RowFlags
	LB    uint8
	CC    uint8
	NCol  uint16
	Lock  uint8
	CKIx  uint8
	Nulls []byte

	Columns []Column
}

func (k *KDO) Name() string { return KDOName(k.Op) }

func decodeKDO(r redo.Reader, b []byte) (*KDO, error) {
	if err := r.Check(b, 16, "kdo opcode"); err != nil {
		return nil, err
	}

	k := &KDO{
		BDBA:  r.Uint32(b, 0),
		HDBA:  r.Uint32(b, 4),
		MaxFr: r.Uint16(b, 8),
		Op:    b[10] & 0x1F,
		XType: parseXType(b[11]),
		ITLI:  b[12],
		ISpac: b[13],
	}

	switch k.Op {
	case KDODRP, KDOLKR:
		if err := r.Check(b, 20, "kdo "+k.Name()); err != nil {
			return nil, err
		}
		k.Slot = r.Uint16(b, 16)
		k.TabN = b[18]

	case KDOIRP, KDOORP:
		if err := r.Check(b, 48, "kdo "+k.Name()); err != nil {
			return nil, err
		}
		k.Flags = RowFlags(b[16])
		k.LB = b[17]
		k.CC = b[18]
		k.Slot = r.Uint16(b, 42)
		k.TabN = b[44]
		nulls, err := nullBitmap(b, 45, int(k.CC), "kdo "+k.Name()+" nulls")
		if err != nil {
			return nil, err
		}
		k.Nulls = nulls

	case KDOURP:
		if err := r.Check(b, 28, "kdo URP"); err != nil {
			return nil, err
		}
		k.Flags = RowFlags(b[16])
		k.Lock = b[17]
		k.CKIx = b[18]
		k.TabN = b[19]
		k.Slot = r.Uint16(b, 20)
		k.NCol = uint16(b[22])
		k.CC = b[23]
		nulls, err := nullBitmap(b, 26, int(k.CC), "kdo URP nulls")
		if err != nil {
			return nil, err
		}
		k.Nulls = nulls
	}

	return k, nil
}

func nullBitmap(b []byte, off, cc int, context string) ([]byte, error) {
	size := (cc + 7) / 8
	if off+size > len(b) {
		return nil, redo.NewShortFieldError(context, b, off+size)
	}
	return b[off : off+size], nil
}

func (k *KDO) isNull(i int) bool {
	if i/8 >= len(k.Nulls) {
		return false
	}
	return k.Nulls[i/8]&(1<<(uint(i)%8)) != 0
}

// readColumns collects the column images that follow the KDO field,
// starting at the 1-based field index first.
func (k *KDO) readColumns(r redo.Reader, v *redo.Vector, first int) error {
	switch k.Op {
	case KDOIRP, KDOORP:
		k.Columns = make([]Column, 0, k.CC)
		for i := 0; i < int(k.CC); i++ {
			data, ok := v.Field(first + i)
			if !ok {
				return fmt.Errorf("kdo %s: column %d of %d missing", k.Name(), i, k.CC)
			}
			k.Columns = append(k.Columns, Column{
				Index: uint16(i),
				Data:  data,
				Null:  k.isNull(i) || len(data) == 0,
			})
		}

	case KDOURP:
		if k.CC == 0 {
			return nil
		}
		nums, ok := v.Field(first)
		if !ok {
			return fmt.Errorf("kdo URP: column number array missing")
		}
		if err := r.Check(nums, 2*int(k.CC), "kdo URP column numbers"); err != nil {
			return err
		}
		k.Columns = make([]Column, 0, k.CC)
		for i := 0; i < int(k.CC); i++ {
			data, ok := v.Field(first + 1 + i)
			if !ok {
				return fmt.Errorf("kdo URP: column %d of %d missing", i, k.CC)
			}
			k.Columns = append(k.Columns, Column{
				Index: r.Uint16(nums, 2*i),
				Data:  data,
				Null:  k.isNull(i) || len(data) == 0,
			})
		}
	}
	return nil
}

func (k *KDO) Dump(w io.Writer) {
	fmt.Fprintf(w, "KDO Op code: %s row dependencies Disabled\n", k.Name())
	fmt.Fprintf(w, "  xtype: %s flags: 0x00000000  bdba: 0x%08x  hdba: 0x%08x\n", k.XType, k.BDBA, k.HDBA)
	fmt.Fprintf(w, "itli: %d  ispac: %d  maxfr: %d\n", k.ITLI, k.ISpac, k.MaxFr)
	switch k.Op {
	case KDODRP, KDOLKR:
		fmt.Fprintf(w, "tabn: %d slot: %d(0x%x)\n", k.TabN, k.Slot, k.Slot)
	case KDOIRP, KDOORP:
		fmt.Fprintf(w, "tabn: %d slot: %d(0x%x) size/delt: 0\n", k.TabN, k.Slot, k.Slot)
		fmt.Fprintf(w, "fb: %s lb: 0x%x  cc: %d\n", k.Flags, k.LB, k.CC)
	case KDOURP:
		fmt.Fprintf(w, "tabn: %d slot: %d(0x%x) flag: %s lock: %d ckix: %d\n", k.TabN, k.Slot, k.Slot, k.Flags, k.Lock, k.CKIx)
		fmt.Fprintf(w, "ncol: %d nnew: %d size: 0\n", k.NCol, k.CC)
	}
	for _, c := range k.Columns {
		if c.Null {
			fmt.Fprintf(w, "col %3d: *NULL*\n", c.Index)
			continue
		}
		fmt.Fprintf(w, "col %3d: [%2d] % x\n", c.Index, len(c.Data), c.Data)
	}
}
