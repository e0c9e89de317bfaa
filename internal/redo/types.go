package redo

import (
	"fmt"
	"time"
)

// XID identifies a transaction by undo segment, slot and wrap sequence.
type XID uint64

func NewXID(usn, slot uint16, seq uint32) XID {
	return XID(uint64(usn)<<48 | uint64(slot)<<32 | uint64(seq))
}

func (x XID) USN() uint16  { return uint16(uint64(x) >> 48) }
func (x XID) Slot() uint16 { return uint16(uint64(x) >> 32) }
func (x XID) Seq() uint32  { return uint32(x) }

func (x XID) String() string {
	return fmt.Sprintf("0x%04x.%03x.%08x", x.USN(), x.Slot(), x.Seq())
}

// UBA is an undo block address: block, sequence within the block and
// record within the sequence.
type UBA uint64

func NewUBA(block uint32, seq uint16, rec uint8) UBA {
	return UBA(uint64(block) | uint64(seq)<<32 | uint64(rec)<<48)
}

func (u UBA) Block() uint32    { return uint32(u) }
func (u UBA) Sequence() uint16 { return uint16(uint64(u) >> 32) }
func (u UBA) Record() uint8    { return uint8(uint64(u) >> 48) }

// Compare orders undo addresses by block, then sequence, then record.
func (u UBA) Compare(o UBA) int {
	switch {
	case u.Block() != o.Block():
		if u.Block() < o.Block() {
			return -1
		}
		return 1
	case u.Sequence() != o.Sequence():
		if u.Sequence() < o.Sequence() {
			return -1
		}
		return 1
	case u.Record() != o.Record():
		if u.Record() < o.Record() {
			return -1
		}
		return 1
	}
	return 0
}

func (u UBA) String() string {
	return fmt.Sprintf("0x%08x.%04x.%02x", u.Block(), u.Sequence(), u.Record())
}

// SCN is a system change number. Values read from the log are 48 bits wide.
type SCN uint64

// ZeroSCN marks an SCN that has not been set.
const ZeroSCN = SCN(0xFFFFFFFFFFFFFFFF)

func (s SCN) String() string {
	if s == ZeroSCN || s > 0xFFFFFFFFFFFF {
		return fmt.Sprintf("0x%016x", uint64(s))
	}
	return fmt.Sprintf("0x%04x.%08x", uint16(uint64(s)>>32), uint32(s))
}

// RowID addresses a row by data object, block address and slot.
type RowID struct {
	DataObj uint32 `json:"data_obj"`
	DBA     uint32 `json:"dba"`
	Slot    uint16 `json:"slot"`
}

const rowIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func (r RowID) IsZero() bool {
	return r.DataObj == 0 && r.DBA == 0 && r.Slot == 0
}

// AFN is the relative file number encoded in the top 10 bits of the block
// address.
func (r RowID) AFN() uint16 {
	return uint16(r.DBA >> 22)
}

func (r RowID) Block() uint32 {
	return r.DBA & 0x3FFFFF
}

// String renders the 18 character base-64 row identifier.
func (r RowID) String() string {
	var buf [18]byte
	encode64(buf[0:6], uint64(r.DataObj))
	encode64(buf[6:9], uint64(r.AFN()))
	encode64(buf[9:15], uint64(r.Block()))
	encode64(buf[15:18], uint64(r.Slot))
	return string(buf[:])
}

// ParseRowID is the inverse of RowID.String.
func ParseRowID(s string) (RowID, error) {
	if len(s) != 18 {
		return RowID{}, fmt.Errorf("invalid rowid length %d: %q", len(s), s)
	}
	var parts [4]uint64
	bounds := [5]int{0, 6, 9, 15, 18}
	for p := 0; p < 4; p++ {
		for i := bounds[p]; i < bounds[p+1]; i++ {
			d := indexRowID(s[i])
			if d < 0 {
				return RowID{}, fmt.Errorf("invalid rowid character %q in %q", s[i], s)
			}
			parts[p] = parts[p]<<6 | uint64(d)
		}
	}
	return RowID{
		DataObj: uint32(parts[0]),
		DBA:     uint32(parts[1])<<22 | uint32(parts[2])&0x3FFFFF,
		Slot:    uint16(parts[3]),
	}, nil
}

func encode64(dst []byte, v uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = rowIDAlphabet[v&0x3F]
		v >>= 6
	}
}

func indexRowID(c byte) int {
	switch {
	case c >= 'A' && c <= 'Z':
		return int(c - 'A')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 26
	case c >= '0' && c <= '9':
		return int(c-'0') + 52
	case c == '+':
		return 62
	case c == '/':
		return 63
	}
	return -1
}

// Time is the packed redo timestamp: seconds since 1988-01-01 counted with
// 31-day months.
type Time uint32

func NewTime(t time.Time) Time {
	t = t.UTC()
	v := uint64(t.Year() - 1988)
	v = v*12 + uint64(t.Month()-1)
	v = v*31 + uint64(t.Day()-1)
	v = v*24 + uint64(t.Hour())
	v = v*60 + uint64(t.Minute())
	v = v*60 + uint64(t.Second())
	return Time(v)
}

func (t Time) ToTime() time.Time {
	rest := uint64(t)
	ss := rest % 60
	rest /= 60
	mi := rest % 60
	rest /= 60
	hh := rest % 24
	rest /= 24
	dd := rest%31 + 1
	rest /= 31
	mm := rest%12 + 1
	rest /= 12
	yy := rest + 1988
	return time.Date(int(yy), time.Month(mm), int(dd), int(hh), int(mi), int(ss), 0, time.UTC)
}

func (t Time) String() string {
	return t.ToTime().Format("01/02/2006 15:04:05")
}
