package redo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	RecordHeaderSize = 32
	MaxRecordSize    = 1048576
)

// Record is one redo record: all change vectors written atomically at a
// single SCN.
type Record struct {
	SCN      SCN
	SubSCN   uint16
	Sequence uint32
	Offset   uint64
	Time     Time
	Vectors  []*Vector
}

// RecordReader reads length-framed records from a stream. Frame integers are
// always little-endian; vector contents use the configured Reader.
type RecordReader struct {
	r      *bufio.Reader
	fields Reader
	count  uint64
}

func NewRecordReader(src io.Reader, fields Reader) *RecordReader {
	return &RecordReader{
		r:      bufio.NewReaderSize(src, 64*1024),
		fields: fields,
	}
}

// Count returns the number of records read so far.
func (rr *RecordReader) Count() uint64 {
	return rr.count
}

// Next returns the next record or io.EOF at a clean end of stream.
func (rr *RecordReader) Next() (*Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(rr.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read record length: %w", err)
	}

	total := int(binary.LittleEndian.Uint32(lenBuf[:]))
	if total < RecordHeaderSize || total > MaxRecordSize {
		return nil, fmt.Errorf("invalid record size %d at record %d", total, rr.count)
	}

	buf := make([]byte, total)
	copy(buf, lenBuf[:])
	if _, err := io.ReadFull(rr.r, buf[4:]); err != nil {
		return nil, fmt.Errorf("failed to read record %d: %w", rr.count, err)
	}

	rec, err := DecodeRecord(rr.fields, buf)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", rr.count, err)
	}
	rr.count++
	return rec, nil
}

// DecodeRecord parses one framed record including its length prefix.
func DecodeRecord(fields Reader, buf []byte) (*Record, error) {
	le := binary.LittleEndian
	if len(buf) < RecordHeaderSize {
		return nil, NewShortFieldError("record header", buf, RecordHeaderSize)
	}

	rec := &Record{
		SCN:      SCN(le.Uint64(buf[4:])),
		SubSCN:   le.Uint16(buf[12:]),
		Sequence: le.Uint32(buf[16:]),
		Offset:   le.Uint64(buf[20:]),
		Time:     Time(le.Uint32(buf[28:])),
	}
	count := int(le.Uint16(buf[14:]))

	pos := RecordHeaderSize
	rec.Vectors = make([]*Vector, 0, count)
	for i := 0; i < count; i++ {
		if pos+4 > len(buf) {
			return nil, NewShortFieldError(fmt.Sprintf("vector %d length", i), buf[pos:], 4)
		}
		size := int(le.Uint32(buf[pos:]))
		pos += 4
		if pos+size > len(buf) {
			return nil, NewShortFieldError(fmt.Sprintf("vector %d", i), buf[pos:], size)
		}
		v, err := ParseVector(fields, buf[pos:pos+size])
		if err != nil {
			return nil, err
		}
		rec.Vectors = append(rec.Vectors, v)
		pos += size
	}

	return rec, nil
}

// RecordWriter frames records in the format read by RecordReader.
type RecordWriter struct {
	w      io.Writer
	fields Reader
}

func NewRecordWriter(dst io.Writer, fields Reader) *RecordWriter {
	return &RecordWriter{w: dst, fields: fields}
}

func (rw *RecordWriter) Write(rec *Record) error {
	_, err := rw.w.Write(EncodeRecord(rw.fields, rec))
	return err
}

func EncodeRecord(fields Reader, rec *Record) []byte {
	le := binary.LittleEndian
	encoded := make([][]byte, len(rec.Vectors))
	total := RecordHeaderSize
	for i, v := range rec.Vectors {
		encoded[i] = v.Encode(fields)
		total += 4 + len(encoded[i])
	}

	buf := make([]byte, total)
	le.PutUint32(buf[0:], uint32(total))
	le.PutUint64(buf[4:], uint64(rec.SCN))
	le.PutUint16(buf[12:], rec.SubSCN)
	le.PutUint16(buf[14:], uint16(len(rec.Vectors)))
	le.PutUint32(buf[16:], rec.Sequence)
	le.PutUint64(buf[20:], rec.Offset)
	le.PutUint32(buf[28:], uint32(rec.Time))

	pos := RecordHeaderSize
	for _, e := range encoded {
		le.PutUint32(buf[pos:], uint32(len(e)))
		pos += 4
		copy(buf[pos:], e)
		pos += len(e)
	}
	return buf
}
