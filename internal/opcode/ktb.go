package opcode

import (
	"fmt"
	"io"

	"github.com/redocdc/redocdc/internal/redo"
)

// KTB redo sub-operation kinds.
const (
	KTBOpF byte = 0x01
	KTBOpC byte = 0x02
	KTBOpZ byte = 0x03
	KTBOpL byte = 0x04

	ktbCleanout byte = 0x10
)

// CleanoutEntry is one ITL slot cleaned out by a block cleanout.
type CleanoutEntry struct {
	ITLI uint8
	Flg  uint8
	SCN  redo.SCN
}

// KTBRedo is the transaction block header change carried by row vectors.
type KTBRedo struct {
	Op  byte
	Flg byte
	XID redo.XID
	UBA redo.UBA

	// L
	ITLXID redo.XID
	LKC    uint16
	ITLSCN redo.SCN

	Cleanout        bool
	CleanoutSCN     redo.SCN
	CleanoutVer     uint8
	CleanoutOpt     uint8
	CleanoutEntries []CleanoutEntry
}

func (k *KTBRedo) Kind() byte {
	switch k.Op & 0x0F {
	case KTBOpF:
		return 'F'
	case KTBOpC:
		return 'C'
	case KTBOpZ:
		return 'Z'
	case KTBOpL:
		return 'L'
	}
	return '?'
}

func decodeKTB(r redo.Reader, b []byte) (*KTBRedo, error) {
	if err := r.Check(b, 8, "ktb redo"); err != nil {
		return nil, err
	}

	k := &KTBRedo{Op: b[0], Flg: b[1]}
	switch k.Op & 0x0F {
	case KTBOpC:
		if err := r.Check(b, 16, "ktb redo C"); err != nil {
			return nil, err
		}
		k.UBA = r.UBA(b, 8)

	case KTBOpZ:

	case KTBOpL:
		if err := r.Check(b, 32, "ktb redo L"); err != nil {
			return nil, err
		}
		k.ITLXID = r.XID(b, 8)
		k.UBA = r.UBA(b, 16)
		k.LKC = r.Uint16(b, 24)
		k.ITLSCN = redo.SCN(uint64(r.Uint16(b, 26))<<32 | uint64(r.Uint32(b, 28)))

	case KTBOpF:
		if err := r.Check(b, 24, "ktb redo F"); err != nil {
			return nil, err
		}
		k.XID = r.XID(b, 8)
		k.UBA = r.UBA(b, 16)

		if k.Op&ktbCleanout != 0 {
			k.Cleanout = true
			decodeCleanout(r, b, k)
		}
	}

	return k, nil
}

// decodeCleanout reads the block cleanout tail of an F operation. It is
// informational only and reads what fits in the field.
func decodeCleanout(r redo.Reader, b []byte, k *KTBRedo) {
	if len(b) >= 40 {
		k.CleanoutSCN = r.SCN(b, 34)
	}
	if len(b) >= 47 {
		k.CleanoutVer = b[45]
		k.CleanoutOpt = b[46]
	}
	for off := 56; off+8 <= len(b) && len(k.CleanoutEntries) < 3; off += 8 {
		k.CleanoutEntries = append(k.CleanoutEntries, CleanoutEntry{
			ITLI: b[off],
			Flg:  b[off+1],
			SCN:  r.SCN(b, off+2),
		})
	}
}

func (k *KTBRedo) Dump(w io.Writer) {
	fmt.Fprintf(w, "KTB Redo\nop: 0x%02x  ver: 0x%02x\n", k.Op, k.Flg)
	switch k.Kind() {
	case 'C':
		fmt.Fprintf(w, "op: C  uba: %s\n", k.UBA)
	case 'Z':
		fmt.Fprintf(w, "op: Z\n")
	case 'L':
		fmt.Fprintf(w, "op: L  itl: xid:  %s uba: %s\n", k.ITLXID, k.UBA)
		fmt.Fprintf(w, "                      flg: ----    lkc:  %d     scn: %s\n", k.LKC, k.ITLSCN)
	case 'F':
		fmt.Fprintf(w, "op: F  xid:  %s    uba: %s\n", k.XID, k.UBA)
		if k.Cleanout {
			fmt.Fprintf(w, "Block cleanout record, scn:  %s ver: 0x%02x opt: 0x%02x, entries follow...\n",
				k.CleanoutSCN, k.CleanoutVer, k.CleanoutOpt)
			for _, e := range k.CleanoutEntries {
				fmt.Fprintf(w, "  itli: %d  flg: %d  scn: %s\n", e.ITLI, e.Flg, e.SCN)
			}
		}
	default:
		fmt.Fprintf(w, "op: 0x%02x (not interpreted)\n", k.Op)
	}
}
