// Package rgz reads and writes the RGZ patch carrier: a gzip-compressed
// stream of tagged file/directory records terminated by an 'e' byte.
//
// Grounded on original_source/beam-formats/src/rgz.rs, translated into the
// reader/writer split the rest of this module's archive carriers use.
package rgz

import (
	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/bytestream"
	"github.com/dselans/beampatch/patcherr"
)

const (
	tagFile      = 'f'
	tagDirectory = 'd'
	tagEnd       = 'e'

	// MaxNameLen is the largest name length RGZ can encode: one byte for
	// the length prefix caps the name (plus its trailing NUL) at 255,
	// and one of those bytes is the NUL itself.
	MaxNameLen = 254
)

// Entry is one record inside an RGZ archive.
type Entry interface{ isRgzEntry() }

// FileEntry adds or replaces a single file.
type FileEntry struct {
	Name string
	Data []byte
}

// DirectoryEntry is informational only — RGZ directories carry no payload.
type DirectoryEntry struct {
	Name string
}

func (FileEntry) isRgzEntry()      {}
func (DirectoryEntry) isRgzEntry() {}

// Archive is a parsed or in-progress-built RGZ carrier.
type Archive struct {
	entries []Entry
}

var log = logrus.WithField("pkg", "rgz")

// New returns an empty archive for building with AddFile/AddDirectory.
func New() *Archive {
	return &Archive{}
}

// Entries returns the archive's records in enumeration order.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// AddFile appends a file record. name must be at most MaxNameLen bytes.
func (a *Archive) AddFile(name string, data []byte) *patcherr.Error {
	if len(name) > MaxNameLen {
		return patcherr.New(patcherr.Custom, "rgz: name too long (max %d bytes): %s", MaxNameLen, name)
	}
	a.entries = append(a.entries, FileEntry{Name: name, Data: data})
	return nil
}

// AddDirectory appends a directory record. name must be at most MaxNameLen bytes.
func (a *Archive) AddDirectory(name string) *patcherr.Error {
	if len(name) > MaxNameLen {
		return patcherr.New(patcherr.Custom, "rgz: name too long (max %d bytes): %s", MaxNameLen, name)
	}
	a.entries = append(a.entries, DirectoryEntry{Name: name})
	return nil
}

// OpenBytes parses an in-memory RGZ stream.
func OpenBytes(data []byte) (*Archive, *patcherr.Error) {
	raw, err := bytestream.InflateGzip(data)
	if err != nil {
		return nil, err
	}

	r := bytestream.NewReader(raw)
	var entries []Entry

	for {
		tag, err := r.ReadU8()
		if err != nil {
			// EOF without a terminator is tolerated: we return what we parsed.
			log.Debug("rgz stream ended without an 'e' terminator")
			break
		}

		switch tag {
		case tagFile:
			name, err := r.ReadNamePrefixed8(true)
			if err != nil {
				return nil, err
			}
			size, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			data, err := r.ReadBytes(int(size))
			if err != nil {
				return nil, err
			}
			entries = append(entries, FileEntry{Name: name, Data: data})
		case tagDirectory:
			name, err := r.ReadNamePrefixed8(true)
			if err != nil {
				return nil, err
			}
			entries = append(entries, DirectoryEntry{Name: name})
		case tagEnd:
			return &Archive{entries: entries}, nil
		default:
			return nil, patcherr.New(patcherr.InvalidFormat, "rgz: unknown record tag 0x%02x", tag)
		}
	}

	return &Archive{entries: entries}, nil
}

// Bytes serializes the archive: each record, then the 'e' terminator, gzipped.
func (a *Archive) Bytes() ([]byte, *patcherr.Error) {
	w := bytestream.NewWriter()

	for _, e := range a.entries {
		switch v := e.(type) {
		case FileEntry:
			if len(v.Name) > MaxNameLen {
				return nil, patcherr.New(patcherr.Custom, "rgz: name too long (max %d bytes): %s", MaxNameLen, v.Name)
			}
			w.WriteU8(tagFile)
			w.WriteNamePrefixed8(v.Name, true)
			w.WriteU32(uint32(len(v.Data)))
			w.WriteBytes(v.Data)
		case DirectoryEntry:
			if len(v.Name) > MaxNameLen {
				return nil, patcherr.New(patcherr.Custom, "rgz: name too long (max %d bytes): %s", MaxNameLen, v.Name)
			}
			w.WriteU8(tagDirectory)
			w.WriteNamePrefixed8(v.Name, true)
		}
	}
	w.WriteU8(tagEnd)

	return bytestream.DeflateGzip(w.Bytes())
}
