package value

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Column type numbers as stored in COL$.TYPE#.
const (
	TypeVarchar2  uint16 = 1
	TypeNumber    uint16 = 2
	TypeLong      uint16 = 8
	TypeDate      uint16 = 12
	TypeRaw       uint16 = 23
	TypeChar      uint16 = 96
	TypeTimestamp uint16 = 180
)

// Date decodes the 7-byte DATE format: century and year offset by 100,
// month, day, then hour, minute and second offset by 1.
func Date(b []byte) (time.Time, error) {
	if len(b) != 7 {
		return time.Time{}, fmt.Errorf("invalid date length %d", len(b))
	}
	year := (int(b[0])-100)*100 + int(b[1]) - 100
	return time.Date(year, time.Month(b[2]), int(b[3]), int(b[4])-1, int(b[5])-1, int(b[6])-1, 0, time.UTC), nil
}

// Timestamp decodes a DATE prefix with optional big-endian nanoseconds.
func Timestamp(b []byte) (time.Time, error) {
	if len(b) != 7 && len(b) != 11 {
		return time.Time{}, fmt.Errorf("invalid timestamp length %d", len(b))
	}
	t, err := Date(b[:7])
	if err != nil {
		return t, err
	}
	if len(b) == 11 {
		nanos := int(b[7])<<24 | int(b[8])<<16 | int(b[9])<<8 | int(b[10])
		t = t.Add(time.Duration(nanos))
	}
	return t, nil
}

func Raw(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Format converts a column image into the value written to output.
func Format(typeNo uint16, charsetID uint64, b []byte) (any, error) {
	switch typeNo {
	case TypeVarchar2, TypeChar, TypeLong:
		return String(b, charsetID)
	case TypeNumber:
		return NumberString(b)
	case TypeDate:
		t, err := Date(b)
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02 15:04:05"), nil
	case TypeTimestamp:
		t, err := Timestamp(b)
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02 15:04:05.999999999"), nil
	default:
		return Raw(b), nil
	}
}
