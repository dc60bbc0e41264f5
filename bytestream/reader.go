// Package bytestream provides little-endian, bounds-checked byte cursor
// primitives shared by every archive carrier, plus the zlib/gzip codecs
// they layer on top of. Nothing here panics on malformed input — every
// read past the end of the buffer comes back as a patcherr.Io error so
// carrier parsers can decide, per spec.md's tolerant-decode rules,
// whether a short read is fatal or recoverable.
package bytestream

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/dselans/beampatch/patcherr"
)

// Reader is a forward-only little-endian cursor over an in-memory buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps data for sequential little-endian reads.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Seek moves the cursor to an absolute offset within the buffer.
func (r *Reader) Seek(pos int) *patcherr.Error {
	if pos < 0 || pos > len(r.buf) {
		return patcherr.New(patcherr.Io, "seek out of range: %d (len=%d)", pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

func (r *Reader) need(n int) *patcherr.Error {
	if n < 0 || r.pos+n > len(r.buf) {
		return patcherr.Wrap(patcherr.Io, io.ErrUnexpectedEOF, "short read")
	}
	return nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (byte, *patcherr.Error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, *patcherr.Error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadI16 reads a little-endian int16.
func (r *Reader) ReadI16() (int16, *patcherr.Error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, *patcherr.Error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, *patcherr.Error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadLossyName decodes b as UTF-8, replacing invalid sequences rather
// than failing — archive filenames may be in an unspecified legacy code
// page, and this path is only ever used for user-facing display.
func ReadLossyName(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string([]rune(string(b)))
}

// ReadNamePrefixed8 reads an 8-bit length (stripTrailingNUL controls whether
// the final byte of the length-prefixed region is a trailing NUL that gets
// stripped) followed by that many bytes, returning the decoded name.
func (r *Reader) ReadNamePrefixed8(stripTrailingNUL bool) (string, *patcherr.Error) {
	ln, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	raw, err := r.ReadBytes(int(ln))
	if err != nil {
		return "", err
	}
	if stripTrailingNUL && len(raw) > 0 {
		raw = raw[:len(raw)-1]
	}
	return ReadLossyName(raw), nil
}
