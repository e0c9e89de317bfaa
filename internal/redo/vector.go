package redo

import (
	"fmt"
)

const VectorHeaderSize = 24

// Vector is one change vector of a redo record: a fixed header followed by
// a list of variable-length fields.
type Vector struct {
	Layer  uint8
	Code   uint8
	Class  uint16
	AFN    uint16
	DBA    uint32
	SCN    SCN
	Seq    uint8
	Type   uint8
	Fields [][]byte
}

// OpCode returns layer and code packed as used by the decoder dispatch.
func (v *Vector) OpCode() uint16 {
	return uint16(v.Layer)<<8 | uint16(v.Code)
}

func (v *Vector) OpString() string {
	return fmt.Sprintf("%d.%d", v.Layer, v.Code)
}

// Field returns the field at the 1-based index i.
func (v *Vector) Field(i int) ([]byte, bool) {
	if i < 1 || i > len(v.Fields) {
		return nil, false
	}
	return v.Fields[i-1], true
}

func (v *Vector) FieldCount() int {
	return len(v.Fields)
}

// USN derives the undo segment number from the block class of undo header
// and undo block vectors.
func (v *Vector) USN() uint16 {
	if v.Class < 15 {
		return 0
	}
	return (v.Class - 15) / 2
}

// ParseVector decodes a change vector. The field length array begins right
// after the header; its first entry is the size of the array itself.
func ParseVector(r Reader, b []byte) (*Vector, error) {
	if err := r.Check(b, VectorHeaderSize+2, "vector header"); err != nil {
		return nil, err
	}

	v := &Vector{
		Layer: b[0],
		Code:  b[1],
		Class: r.Uint16(b, 2),
		AFN:   r.Uint16(b, 4),
		DBA:   r.Uint32(b, 8),
		SCN:   r.SCN(b, 12),
		Seq:   b[20],
		Type:  b[21],
	}

	arraySize := int(r.Uint16(b, VectorHeaderSize))
	if arraySize < 2 || arraySize%2 != 0 {
		return nil, fmt.Errorf("vector %s: invalid field array size %d", v.OpString(), arraySize)
	}
	if err := r.Check(b, VectorHeaderSize+arraySize, "vector field array"); err != nil {
		return nil, err
	}

	count := (arraySize - 2) / 2
	pos := VectorHeaderSize + ((arraySize + 2) &^ 3)
	v.Fields = make([][]byte, count)
	for i := 0; i < count; i++ {
		size := int(r.Uint16(b, VectorHeaderSize+2+2*i))
		if pos+size > len(b) {
			return nil, NewShortFieldError(fmt.Sprintf("vector %s field %d", v.OpString(), i+1), b[min(pos, len(b)):], size)
		}
		v.Fields[i] = b[pos : pos+size]
		pos += (size + 3) &^ 3
	}

	return v, nil
}

// Encode lays the vector out in the format accepted by ParseVector.
func (v *Vector) Encode(r Reader) []byte {
	arraySize := 2 + 2*len(v.Fields)
	size := VectorHeaderSize + ((arraySize + 2) &^ 3)
	for _, f := range v.Fields {
		size += (len(f) + 3) &^ 3
	}

	b := make([]byte, size)
	b[0] = v.Layer
	b[1] = v.Code
	r.PutUint16(b, 2, v.Class)
	r.PutUint16(b, 4, v.AFN)
	r.PutUint32(b, 8, v.DBA)
	r.PutUint48(b, 12, uint64(v.SCN))
	b[20] = v.Seq
	b[21] = v.Type

	r.PutUint16(b, VectorHeaderSize, uint16(arraySize))
	pos := VectorHeaderSize + ((arraySize + 2) &^ 3)
	for i, f := range v.Fields {
		r.PutUint16(b, VectorHeaderSize+2+2*i, uint16(len(f)))
		copy(b[pos:], f)
		pos += (len(f) + 3) &^ 3
	}
	return b
}
