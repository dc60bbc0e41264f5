// Package grf implements the mutable target content archive: a 46-byte
// header, an appended-only data segment holding zlib-compressed file
// payloads, and a file table (itself zlib-compressed) recording each
// entry's offset and sizes.
//
// Grounded on the GRF layout exercised by
// other_examples/6886bdf7_avatar29A-midgard-ro__pkg-grf-testdata-generate.go.go,
// the only byte-exact reference for this container in the retrieved pack.
package grf

import (
	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/patcherr"
)

const (
	magic     = "Master of Magic"
	magicLen  = 15
	headerLen = 46

	// flagFile marks a table entry as a real file rather than a
	// directory placeholder or removal tombstone.
	flagFile = 0x01

	// MinVersion is the lowest GRF version this package opens cleanly.
	// Older container revisions carry a different table entry layout
	// that this package does not parse; Open rejects them.
	MinVersion = 0x200
)

// Entry describes one file table record.
type Entry struct {
	Filename         string
	Offset           uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Flags            uint8
}

func (e Entry) isFile() bool { return e.Flags&flagFile != 0 }

// Archive is an open GRF container: header fields, the in-memory file
// table, and the pending (uncommitted) data segment additions.
//
// Operations on an Archive are not safe for concurrent use; callers hold
// one Archive per apply call, per the container's single-writer contract.
type Archive struct {
	path    string
	version uint32
	seed    uint32

	table map[string]Entry
	order []string // first-seen order, for stable table serialization

	// data holds every byte written to the archive's data segment so
	// far: the bytes read from the existing file on open, plus
	// anything appended by PatchFile since. New entries' offsets index
	// into this slice.
	data []byte

	dirty bool
}

var log = logrus.WithField("pkg", "grf")

// Entries returns the current file table. The returned slice is a copy
// and safe to range over while mutating the archive.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.table[name])
	}
	return out
}

// Lookup returns the entry for filename, if present.
func (a *Archive) Lookup(filename string) (Entry, bool) {
	e, ok := a.table[filename]
	return e, ok
}

// Dirty reports whether the archive has unsaved changes.
func (a *Archive) Dirty() bool { return a.dirty }

// PatchFile inserts or replaces filename's entry. The payload is
// compressed and appended to the data segment; no existing bytes are
// overwritten or reclaimed.
func (a *Archive) PatchFile(filename string, content []byte) *patcherr.Error {
	compressed, err := compress(content)
	if err != nil {
		return err
	}

	offset := uint32(len(a.data))
	entry := Entry{
		Filename:         filename,
		Offset:           offset,
		CompressedSize:   uint32(len(compressed)),
		UncompressedSize: uint32(len(content)),
		Flags:            flagFile,
	}

	if _, existed := a.table[filename]; !existed {
		a.order = append(a.order, filename)
	}
	a.table[filename] = entry
	a.data = append(a.data, compressed...)
	a.dirty = true

	log.WithFields(logrus.Fields{"filename": filename, "size": len(content)}).Debug("patched grf entry")
	return nil
}

// RemoveFile logs filename and leaves the file table unchanged. The
// patcher calls it for THOR remove records, so those records are no-ops
// against the GRF, matching the source patcher's behavior.
func (a *Archive) RemoveFile(filename string) {
	log.WithFields(logrus.Fields{"filename": filename}).Debug("remove entry is a no-op against the grf table")
}

// ExtractFile returns filename's decompressed payload.
func (a *Archive) ExtractFile(filename string) ([]byte, *patcherr.Error) {
	e, ok := a.table[filename]
	if !ok {
		return nil, patcherr.New(patcherr.Custom, "grf: no such entry: %s", filename)
	}
	if !e.isFile() {
		return nil, patcherr.New(patcherr.Custom, "grf: entry is not a file: %s", filename)
	}

	end := int(e.Offset) + int(e.CompressedSize)
	if int(e.Offset) < 0 || end > len(a.data) {
		return nil, patcherr.New(patcherr.InvalidFormat, "grf: entry offset/size out of range: %s", filename)
	}

	return decompress(a.data[e.Offset:end])
}
