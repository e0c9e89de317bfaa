package redo

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ShortFieldError is returned when a field is shorter than the layout being
// decoded requires.
type ShortFieldError struct {
	Context string
	Length  int
	Need    int
	Data    []byte
}

func (e *ShortFieldError) Error() string {
	return fmt.Sprintf("too short field %s: %d < %d", e.Context, e.Length, e.Need)
}

func NewShortFieldError(context string, data []byte, need int) *ShortFieldError {
	return &ShortFieldError{
		Context: context,
		Length:  len(data),
		Need:    need,
		Data:    data,
	}
}

func IsShortFieldError(err error) bool {
	return AsShortFieldError(err) != nil
}

func AsShortFieldError(err error) *ShortFieldError {
	var sf *ShortFieldError
	if errors.As(err, &sf) {
		return sf
	}
	return nil
}

// Reader decodes fixed-width integers from redo fields in the byte order
// of the database that produced them.
//
// The plain accessors (Uint16, Uint32, ...) behave like binary.ByteOrder and
// panic when out of range; callers validate the field length with Check
// first. The Read* accessors return a *ShortFieldError instead.
type Reader struct {
	Order binary.ByteOrder
}

var (
	LittleEndian = Reader{Order: binary.LittleEndian}
	BigEndian    = Reader{Order: binary.BigEndian}
)

func NewReader(order binary.ByteOrder) Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return Reader{Order: order}
}

// Check fails with a *ShortFieldError when b holds fewer than need bytes.
func (r Reader) Check(b []byte, need int, context string) error {
	if len(b) < need {
		return NewShortFieldError(context, b, need)
	}
	return nil
}

func (r Reader) Uint8(b []byte, off int) uint8 {
	return b[off]
}

func (r Reader) Uint16(b []byte, off int) uint16 {
	return r.Order.Uint16(b[off:])
}

func (r Reader) Uint32(b []byte, off int) uint32 {
	return r.Order.Uint32(b[off:])
}

func (r Reader) Uint64(b []byte, off int) uint64 {
	return r.Order.Uint64(b[off:])
}

// Uint40 is a 32-bit base followed by an 8-bit extension.
func (r Reader) Uint40(b []byte, off int) uint64 {
	return uint64(b[off+4])<<32 | uint64(r.Uint32(b, off))
}

// Uint48 is a 32-bit base followed by a 16-bit extension.
func (r Reader) Uint48(b []byte, off int) uint64 {
	return uint64(r.Uint16(b, off+4))<<32 | uint64(r.Uint32(b, off))
}

// Uint56 is a 32-bit base, a 16-bit extension and a trailing byte.
func (r Reader) Uint56(b []byte, off int) uint64 {
	return uint64(b[off+6])<<48 | r.Uint48(b, off)
}

func (r Reader) SCN(b []byte, off int) SCN {
	return SCN(r.Uint48(b, off))
}

func (r Reader) UBA(b []byte, off int) UBA {
	return UBA(r.Uint56(b, off))
}

func (r Reader) XID(b []byte, off int) XID {
	return NewXID(r.Uint16(b, off), r.Uint16(b, off+2), r.Uint32(b, off+4))
}

func (r Reader) ReadUint8(b []byte, off int) (uint8, error) {
	if err := r.bounds(b, off, 1); err != nil {
		return 0, err
	}
	return r.Uint8(b, off), nil
}

func (r Reader) ReadUint16(b []byte, off int) (uint16, error) {
	if err := r.bounds(b, off, 2); err != nil {
		return 0, err
	}
	return r.Uint16(b, off), nil
}

func (r Reader) ReadUint32(b []byte, off int) (uint32, error) {
	if err := r.bounds(b, off, 4); err != nil {
		return 0, err
	}
	return r.Uint32(b, off), nil
}

func (r Reader) ReadUint64(b []byte, off int) (uint64, error) {
	if err := r.bounds(b, off, 8); err != nil {
		return 0, err
	}
	return r.Uint64(b, off), nil
}

func (r Reader) ReadUint40(b []byte, off int) (uint64, error) {
	if err := r.bounds(b, off, 5); err != nil {
		return 0, err
	}
	return r.Uint40(b, off), nil
}

func (r Reader) ReadUint48(b []byte, off int) (uint64, error) {
	if err := r.bounds(b, off, 6); err != nil {
		return 0, err
	}
	return r.Uint48(b, off), nil
}

func (r Reader) ReadUint56(b []byte, off int) (uint64, error) {
	if err := r.bounds(b, off, 7); err != nil {
		return 0, err
	}
	return r.Uint56(b, off), nil
}

func (r Reader) bounds(b []byte, off, width int) error {
	if off < 0 || off+width > len(b) {
		return NewShortFieldError(fmt.Sprintf("read%d@%d", width*8, off), b, off+width)
	}
	return nil
}

// PutUint16 and friends are the inverse of the accessors above. They are
// used when producing framed records.
func (r Reader) PutUint16(b []byte, off int, v uint16) {
	r.Order.PutUint16(b[off:], v)
}

func (r Reader) PutUint32(b []byte, off int, v uint32) {
	r.Order.PutUint32(b[off:], v)
}

func (r Reader) PutUint48(b []byte, off int, v uint64) {
	r.PutUint32(b, off, uint32(v))
	r.PutUint16(b, off+4, uint16(v>>32))
}

func (r Reader) PutUint56(b []byte, off int, v uint64) {
	r.PutUint48(b, off, v)
	b[off+6] = byte(v >> 48)
}

func (r Reader) PutXID(b []byte, off int, xid XID) {
	r.PutUint16(b, off, xid.USN())
	r.PutUint16(b, off+2, xid.Slot())
	r.PutUint32(b, off+4, xid.Seq())
}
