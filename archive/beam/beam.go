// Package beam reads and writes the BEAM patch carrier: a gzip-compressed
// stream of tagged records, each carrying an MD5 digest of its payload and
// an optional remapped target path for the GRF.
//
// BEAM has no byte-exact reference in the retrieved corpus (the spec
// describes it by interface only), so this package borrows RGZ's tagged
// record shape — see archive/rgz — and adds the digest/remap fields the
// interface calls for.
package beam

import (
	"crypto/md5"

	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/bytestream"
	"github.com/dselans/beampatch/patcherr"
)

const (
	tagEntry = 'b'
	tagEnd   = 'e'

	// MaxNameLen bounds both the filename and grf_path fields.
	MaxNameLen = 254
)

// Entry is one file record inside a BEAM archive.
type Entry struct {
	Filename string
	GrfPath  string // empty if this entry does not remap
	Digest   [md5.Size]byte
	Data     []byte
}

// TargetPath is the path an Apply should write into the GRF: grf_path if
// present, else filename.
func (e Entry) TargetPath() string {
	if e.GrfPath != "" {
		return e.GrfPath
	}
	return e.Filename
}

// Archive is a parsed or in-progress-built BEAM carrier.
type Archive struct {
	entries []Entry
}

var log = logrus.WithField("pkg", "beam")

// New returns an empty archive for building with AddFile.
func New() *Archive {
	return &Archive{}
}

// AddFile appends an entry, computing its MD5 digest from data.
func (a *Archive) AddFile(filename, grfPath string, data []byte) *patcherr.Error {
	if len(filename) > MaxNameLen || len(grfPath) > MaxNameLen {
		return patcherr.New(patcherr.Custom, "beam: name too long (max %d bytes): %s", MaxNameLen, filename)
	}
	a.entries = append(a.entries, Entry{
		Filename: filename,
		GrfPath:  grfPath,
		Digest:   md5.Sum(data),
		Data:     data,
	})
	return nil
}

// Entries returns the archive's records in enumeration order.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// ListFiles returns every entry's source filename, in enumeration order.
func (a *Archive) ListFiles() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Filename)
	}
	return out
}

// GetEntry returns the entry for name, if present.
func (a *Archive) GetEntry(name string) (Entry, bool) {
	for _, e := range a.entries {
		if e.Filename == name {
			return e, true
		}
	}
	return Entry{}, false
}

// VerifyFile recomputes name's MD5 digest and compares it to the stored
// one. Returns false if the entry doesn't exist or the digest mismatches.
func (a *Archive) VerifyFile(name string) bool {
	e, ok := a.GetEntry(name)
	if !ok {
		return false
	}
	return md5.Sum(e.Data) == e.Digest
}

// ExtractFile returns name's decompressed (already in-memory) payload.
func (a *Archive) ExtractFile(name string) ([]byte, *patcherr.Error) {
	e, ok := a.GetEntry(name)
	if !ok {
		return nil, patcherr.New(patcherr.Custom, "beam: no such file: %s", name)
	}
	return e.Data, nil
}

// OpenBytes parses an in-memory BEAM stream.
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
			log.Debug("beam stream ended without an 'e' terminator")
			break
		}

		switch tag {
		case tagEntry:
			filename, err := r.ReadNamePrefixed8(false)
			if err != nil {
				return nil, err
			}
			grfPath, err := r.ReadNamePrefixed8(false)
			if err != nil {
				return nil, err
			}
			digestBytes, err := r.ReadBytes(md5.Size)
			if err != nil {
				return nil, err
			}
			size, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			payload, err := r.ReadBytes(int(size))
			if err != nil {
				return nil, err
			}

			var digest [md5.Size]byte
			copy(digest[:], digestBytes)
			entries = append(entries, Entry{
				Filename: filename,
				GrfPath:  grfPath,
				Digest:   digest,
				Data:     payload,
			})
		case tagEnd:
			return &Archive{entries: entries}, nil
		default:
			return nil, patcherr.New(patcherr.InvalidFormat, "beam: unknown record tag 0x%02x", tag)
		}
	}

	return &Archive{entries: entries}, nil
}

// Bytes serializes the archive: each record, then the 'e' terminator, gzipped.
func (a *Archive) Bytes() ([]byte, *patcherr.Error) {
	w := bytestream.NewWriter()

	for _, e := range a.entries {
		if len(e.Filename) > MaxNameLen || len(e.GrfPath) > MaxNameLen {
			return nil, patcherr.New(patcherr.Custom, "beam: name too long (max %d bytes): %s", MaxNameLen, e.Filename)
		}
		w.WriteU8(tagEntry)
		w.WriteNamePrefixed8(e.Filename, false)
		w.WriteNamePrefixed8(e.GrfPath, false)
		w.WriteBytes(e.Digest[:])
		w.WriteU32(uint32(len(e.Data)))
		w.WriteBytes(e.Data)
	}
	w.WriteU8(tagEnd)

	return bytestream.DeflateGzip(w.Bytes())
}
