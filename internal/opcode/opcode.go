package opcode

import (
	"fmt"
	"io"

	"github.com/redocdc/redocdc/internal/redo"
)

// Operation codes, layer in the high byte and code in the low byte.
const (
	CodeUndo        uint16 = 0x0501
	CodeBegin       uint16 = 0x0502
	CodeCommit      uint16 = 0x0504
	CodeRollbackTo  uint16 = 0x0506
	CodeUndoApplied uint16 = 0x050B
	CodeIUR         uint16 = 0x0B01
	CodeIRP         uint16 = 0x0B02
	CodeDRP         uint16 = 0x0B03
	CodeLKR         uint16 = 0x0B04
	CodeURP         uint16 = 0x0B05
	CodeORP         uint16 = 0x0B06
	CodeDDL         uint16 = 0x1801
	CodeUnknown     uint16 = 0xFFFF

	LayerTransaction uint8 = 5
	LayerRow         uint8 = 11
	LayerDDL         uint8 = 24
)

// Op is a decoded change vector.
type Op interface {
	OpCode() uint16
	Name() string
	Dump(w io.Writer)
}

type decodeFunc func(r redo.Reader, v *redo.Vector) (Op, error)

var decoders = map[uint16]decodeFunc{
	CodeUndo:        decodeUndo,
	CodeBegin:       decodeBegin,
	CodeCommit:      decodeCommit,
	CodeRollbackTo:  decodeRollbackTo,
	CodeUndoApplied: decodeUndoApplied,
	CodeIUR:         decodeRow,
	CodeIRP:         decodeRow,
	CodeDRP:         decodeRow,
	CodeLKR:         decodeRow,
	CodeURP:         decodeRow,
	CodeORP:         decodeRow,
	CodeDDL:         decodeDDL,
}

// Decode turns a change vector into a typed operation. Vectors without a
// decoder become *Unknown.
func Decode(r redo.Reader, v *redo.Vector) (Op, error) {
	dec, ok := decoders[v.OpCode()]
	if !ok {
		return &Unknown{Layer: v.Layer, Code: v.Code, Fields: v.FieldCount()}, nil
	}
	op, err := dec(r, v)
	if err != nil {
		return nil, fmt.Errorf("opcode %s: %w", v.OpString(), err)
	}
	return op, nil
}

// Supported reports whether a decoder is registered for the opcode.
func Supported(code uint16) bool {
	_, ok := decoders[code]
	return ok
}

// Unknown is a vector the decoder does not interpret.
type Unknown struct {
	Layer  uint8
	Code   uint8
	Fields int
}

func (u *Unknown) OpCode() uint16 { return CodeUnknown }
func (u *Unknown) Name() string   { return fmt.Sprintf("%d.%d", u.Layer, u.Code) }

func (u *Unknown) Dump(w io.Writer) {
	fmt.Fprintf(w, "OP:%d.%d fields: %d (not decoded)\n", u.Layer, u.Code, u.Fields)
}

func field(v *redo.Vector, i int, context string) ([]byte, error) {
	f, ok := v.Field(i)
	if !ok {
		return nil, fmt.Errorf("missing field %d (%s), vector has %d", i, context, v.FieldCount())
	}
	return f, nil
}
