package value

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Database character set ids.
const (
	CharsetUS7ASCII     uint64 = 1
	CharsetWE8ISO8859P1 uint64 = 31
	CharsetEE8ISO8859P2 uint64 = 32
	CharsetEE8MSWIN1250 uint64 = 170
	CharsetCL8MSWIN1251 uint64 = 171
	CharsetWE8MSWIN1252 uint64 = 178
	CharsetZHS16GBK     uint64 = 852
	CharsetUTF8         uint64 = 871
	CharsetAL32UTF8     uint64 = 873
	CharsetAL16UTF16    uint64 = 2000
)

var charsetNames = map[uint64]string{
	CharsetUS7ASCII:     "US7ASCII",
	CharsetWE8ISO8859P1: "WE8ISO8859P1",
	CharsetEE8ISO8859P2: "EE8ISO8859P2",
	CharsetEE8MSWIN1250: "EE8MSWIN1250",
	CharsetCL8MSWIN1251: "CL8MSWIN1251",
	CharsetWE8MSWIN1252: "WE8MSWIN1252",
	CharsetZHS16GBK:     "ZHS16GBK",
	CharsetUTF8:         "UTF8",
	CharsetAL32UTF8:     "AL32UTF8",
	CharsetAL16UTF16:    "AL16UTF16",
}

var charsetDecoders = map[uint64]encoding.Encoding{
	CharsetWE8ISO8859P1: charmap.ISO8859_1,
	CharsetEE8ISO8859P2: charmap.ISO8859_2,
	CharsetEE8MSWIN1250: charmap.Windows1250,
	CharsetCL8MSWIN1251: charmap.Windows1251,
	CharsetWE8MSWIN1252: charmap.Windows1252,
	CharsetZHS16GBK:     simplifiedchinese.GBK,
	CharsetAL16UTF16:    unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

func CharsetName(id uint64) string {
	if name, ok := charsetNames[id]; ok {
		return name
	}
	return fmt.Sprintf("CHARSET_%d", id)
}

func SupportedCharset(id uint64) bool {
	_, ok := charsetNames[id]
	return ok
}

// String decodes a character column stored in the given character set.
func String(b []byte, charsetID uint64) (string, error) {
	switch charsetID {
	case CharsetAL32UTF8, CharsetUTF8:
		if !utf8.Valid(b) {
			return "", fmt.Errorf("invalid %s sequence % x", CharsetName(charsetID), b)
		}
		return string(b), nil
	case CharsetUS7ASCII:
		for _, c := range b {
			if c >= 0x80 {
				return "", fmt.Errorf("invalid US7ASCII character 0x%02x", c)
			}
		}
		return string(b), nil
	}

	enc, ok := charsetDecoders[charsetID]
	if !ok {
		return "", fmt.Errorf("unsupported character set %d", charsetID)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", CharsetName(charsetID), err)
	}
	return string(out), nil
}
