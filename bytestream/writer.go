package bytestream

import "encoding/binary"

// Writer is an append-only little-endian byte builder.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteU8 appends a single byte.
func (w *Writer) WriteU8(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// WriteU16 appends a little-endian uint16.
func (w *Writer) WriteU16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// WriteI16 appends a little-endian int16.
func (w *Writer) WriteI16(v int16) *Writer {
	return w.WriteU16(uint16(v))
}

// WriteU32 appends a little-endian uint32.
func (w *Writer) WriteU32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// WriteBytes appends raw bytes verbatim.
func (w *Writer) WriteBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// WriteNamePrefixed8 writes an 8-bit length followed by name's bytes, and a
// trailing NUL if addNUL is set (the length then counts the NUL too).
func (w *Writer) WriteNamePrefixed8(name string, addNUL bool) *Writer {
	n := len(name)
	if addNUL {
		w.WriteU8(byte(n + 1))
		w.WriteBytes([]byte(name))
		w.WriteU8(0)
	} else {
		w.WriteU8(byte(n))
		w.WriteBytes([]byte(name))
	}
	return w
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}
