package value

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberDecode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"zero", []byte{0x80}, "0"},
		{"one", []byte{0xC1, 0x02}, "1"},
		{"minus one", []byte{0x3E, 0x64, 0x66}, "-1"},
		{"fraction", []byte{0xC2, 0x02, 0x18, 0x2E}, "123.45"},
		{"power of ten", []byte{0xC6, 0x02}, "10000000000"},
		{"half", []byte{0xC0, 0x33}, "0.5"},
		{"hundred", []byte{0xC2, 0x02}, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NumberString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberInvalid(t *testing.T) {
	_, err := Number(nil)
	assert.Error(t, err)
	_, err = Number([]byte{0xC1})
	assert.Error(t, err)
	_, err = Number([]byte{0xC1, 0x00})
	assert.Error(t, err)
}

func TestEncodeNumber(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "123.45", "-987.6", "55", "10000000000", "0.5"} {
		t.Run(s, func(t *testing.T) {
			d := decimal.RequireFromString(s)
			got, err := Number(EncodeNumber(d))
			require.NoError(t, err)
			assert.True(t, d.Equal(got), "want %s got %s", d, got)
		})
	}
	assert.Equal(t, []byte{0xC1, 0x02}, EncodeNumber(decimal.NewFromInt(1)))
}

func TestStringCharsets(t *testing.T) {
	s, err := String([]byte("T1"), CharsetAL32UTF8)
	require.NoError(t, err)
	assert.Equal(t, "T1", s)

	s, err = String([]byte{0x63, 0x61, 0x66, 0xE9}, CharsetWE8ISO8859P1)
	require.NoError(t, err)
	assert.Equal(t, "café", s)

	s, err = String([]byte{0x80}, CharsetWE8MSWIN1252)
	require.NoError(t, err)
	assert.Equal(t, "€", s)

	s, err = String([]byte{0x00, 0x41, 0x00, 0x42}, CharsetAL16UTF16)
	require.NoError(t, err)
	assert.Equal(t, "AB", s)

	_, err = String([]byte{0xC3}, CharsetAL32UTF8)
	assert.Error(t, err)
	_, err = String([]byte{0xC3}, CharsetUS7ASCII)
	assert.Error(t, err)
	_, err = String([]byte("x"), 9999)
	assert.Error(t, err)
	assert.Equal(t, "CHARSET_9999", CharsetName(9999))
}

func TestFormat(t *testing.T) {
	v, err := Format(TypeDate, 0, []byte{120, 120, 5, 17, 11, 12, 13})
	require.NoError(t, err)
	assert.Equal(t, "2020-05-17 10:11:12", v)

	v, err = Format(TypeNumber, 0, []byte{0xC1, 0x38})
	require.NoError(t, err)
	assert.Equal(t, "55", v)

	v, err = Format(TypeRaw, 0, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "DEAD", v)

	_, err = Format(TypeDate, 0, []byte{1, 2})
	assert.Error(t, err)
}
