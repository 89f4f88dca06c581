package binary

import (
	"bytes"
	"encoding/binary"
)

// Writer accumulates WebAssembly primitives for building test inputs.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b ...byte) *Writer {
	w.buf.Write(b)
	return w
}

// Raw writes a byte slice verbatim.
func (w *Writer) Raw(data []byte) *Writer {
	w.buf.Write(data)
	return w
}

// U32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) U32(v uint32) *Writer {
	return w.U64(uint64(v))
}

// U64 writes an unsigned LEB128 encoded uint64.
func (w *Writer) U64(v uint64) *Writer {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return w
		}
	}
}

// S64 writes a signed LEB128 encoded int64.
func (w *Writer) S64(v int64) *Writer {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return w
		}
		w.buf.WriteByte(b | 0x80)
	}
}

// Name writes a length-prefixed UTF-8 name.
func (w *Writer) Name(s string) *Writer {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
	return w
}

// Sized writes len(data) as LEB128 followed by data.
func (w *Writer) Sized(data []byte) *Writer {
	w.U32(uint32(len(data)))
	w.buf.Write(data)
	return w
}

// U32LE writes a little-endian uint32 (fixed 4 bytes).
func (w *Writer) U32LE(v uint32) *Writer {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
	return w
}
