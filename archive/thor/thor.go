// Package thor reads and writes the THOR patch carrier: a zlib-compressed
// file table trailing a header, with raw zlib-compressed payload blobs
// stored ahead of the table inside the same file.
//
// Grounded on original_source/beam-formats/src/thor.rs.
package thor

import (
	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/bytestream"
	"github.com/dselans/beampatch/patcherr"
)

const (
	magic = "ASSF (C) 2007 Aeomin DEV"

	modeMerge  = int16(0x30)
	modeSingle = int16(0x21)

	flagAdd    = 0x00
	flagRemove = 0x01

	// headerSize is the fixed region written before a THOR's file data:
	// magic(24) + use_grf_merging(1) + num_files(4) + mode(2) +
	// target_grf_name_len(1) + file_table_compressed_len(4) + file_table_offset(4).
	// Files written by this package never carry a target GRF name.
	headerSize = 40

	// MaxNameLen is the largest filename THOR's 8-bit length prefix allows.
	MaxNameLen = 255
)

// EntryKind distinguishes an Add from a Remove record.
type EntryKind int

const (
	Add EntryKind = iota
	Remove
)

// Entry is one record in a THOR file table.
type Entry struct {
	Kind     EntryKind
	Filename string
	Data     []byte // only populated for Add
}

// Archive is a parsed or in-progress-built THOR carrier.
type Archive struct {
	entries []Entry
}

var log = logrus.WithField("pkg", "thor")

// New returns an empty archive for building with AddFile/RemoveFile.
func New() *Archive {
	return &Archive{}
}

// Entries returns the archive's records in file-table order.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// AddFile appends an Add record carrying the file's uncompressed bytes.
func (a *Archive) AddFile(filename string, data []byte) *patcherr.Error {
	if len(filename) > MaxNameLen {
		return patcherr.New(patcherr.Custom, "thor: filename too long (max %d bytes): %s", MaxNameLen, filename)
	}
	a.entries = append(a.entries, Entry{Kind: Add, Filename: filename, Data: data})
	return nil
}

// RemoveFile appends a Remove record.
func (a *Archive) RemoveFile(filename string) *patcherr.Error {
	if len(filename) > MaxNameLen {
		return patcherr.New(patcherr.Custom, "thor: filename too long (max %d bytes): %s", MaxNameLen, filename)
	}
	a.entries = append(a.entries, Entry{Kind: Remove, Filename: filename})
	return nil
}

// OpenBytes parses an in-memory THOR file.
func OpenBytes(data []byte) (*Archive, *patcherr.Error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, patcherr.New(patcherr.InvalidFormat, "thor: bad magic")
	}

	r := bytestream.NewReader(data)
	if err := r.Seek(len(magic)); err != nil {
		return nil, err
	}

	if _, err := r.ReadU8(); err != nil { // use_grf_merging, unused on read
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // num_files, redundant with table length
		return nil, err
	}

	mode, err := r.ReadI16()
	if err != nil {
		return nil, err
	}
	if mode != modeMerge && mode != modeSingle {
		return nil, patcherr.New(patcherr.InvalidFormat, "thor: unsupported mode 0x%x", uint16(mode))
	}

	targetGrfLen, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if targetGrfLen > 0 {
		if _, err := r.ReadBytes(int(targetGrfLen)); err != nil {
			return nil, err
		}
	}

	tableCompressedLen, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	tableOffset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	start, end := int(tableOffset), int(tableOffset)+int(tableCompressedLen)
	if start < 0 || end > len(data) || start > end {
		return nil, patcherr.New(patcherr.InvalidFormat, "thor: file table offset/length out of range")
	}

	tableRaw, derr := bytestream.InflateZlib(data[start:end])
	if derr != nil {
		return nil, derr
	}

	entries, derr := parseFileTable(tableRaw, data)
	if derr != nil {
		return nil, derr
	}

	return &Archive{entries: entries}, nil
}

func parseFileTable(table []byte, fileData []byte) ([]Entry, *patcherr.Error) {
	tr := bytestream.NewReader(table)
	var entries []Entry

	for tr.Remaining() > 0 {
		nameLen, err := tr.ReadU8()
		if err != nil {
			break
		}
		if nameLen == 0 {
			break
		}

		nameRaw, err := tr.ReadBytes(int(nameLen))
		if err != nil {
			break
		}
		filename := bytestream.ReadLossyName(nameRaw)

		flags, err := tr.ReadU8()
		if err != nil {
			break
		}

		switch flags {
		case flagAdd:
			offset, err := tr.ReadU32()
			if err != nil {
				return nil, err
			}
			compressedSize, err := tr.ReadU32()
			if err != nil {
				return nil, err
			}
			if _, err := tr.ReadU32(); err != nil { // decompressed size, advisory only
				return nil, err
			}

			start, end := int(offset), int(offset)+int(compressedSize)
			var payload []byte
			if start >= 0 && end <= len(fileData) && start <= end {
				if dec, derr := bytestream.InflateZlib(fileData[start:end]); derr == nil {
					payload = dec
				} else {
					log.WithFields(logrus.Fields{"filename": filename}).Warn("thor: entry failed to decompress, treating as empty")
				}
			} else {
				log.WithFields(logrus.Fields{"filename": filename}).Warn("thor: entry offset/length out of range, treating as empty")
			}
			entries = append(entries, Entry{Kind: Add, Filename: filename, Data: payload})
		case flagRemove:
			entries = append(entries, Entry{Kind: Remove, Filename: filename})
		default:
			log.WithFields(logrus.Fields{"flags": flags}).Warn("thor: unknown file table flag, skipping entry")
		}
	}

	return entries, nil
}

// Bytes serializes the archive into a complete THOR file.
func (a *Archive) Bytes() ([]byte, *patcherr.Error) {
	var fileData []byte
	table := bytestream.NewWriter()

	for _, e := range a.entries {
		if len(e.Filename) > MaxNameLen {
			return nil, patcherr.New(patcherr.Custom, "thor: filename too long (max %d bytes): %s", MaxNameLen, e.Filename)
		}

		switch e.Kind {
		case Add:
			compressed, derr := bytestream.DeflateZlib(e.Data)
			if derr != nil {
				return nil, derr
			}
			offset := uint32(headerSize + len(fileData))

			table.WriteU8(byte(len(e.Filename)))
			table.WriteBytes([]byte(e.Filename))
			table.WriteU8(flagAdd)
			table.WriteU32(offset)
			table.WriteU32(uint32(len(compressed)))
			table.WriteU32(uint32(len(e.Data)))

			fileData = append(fileData, compressed...)
		case Remove:
			table.WriteU8(byte(len(e.Filename)))
			table.WriteBytes([]byte(e.Filename))
			table.WriteU8(flagRemove)
		}
	}

	compressedTable, derr := bytestream.DeflateZlib(table.Bytes())
	if derr != nil {
		return nil, derr
	}

	tableOffset := uint32(headerSize + len(fileData))

	out := bytestream.NewWriter()
	out.WriteBytes([]byte(magic))
	out.WriteU8(0x00) // use_grf_merging
	out.WriteU32(uint32(len(a.entries)))
	out.WriteI16(modeMerge)
	out.WriteU8(0x00) // target_grf_name_len: never written by this package
	out.WriteU32(uint32(len(compressedTable)))
	out.WriteU32(tableOffset)
	out.WriteBytes(fileData)
	out.WriteBytes(compressedTable)

	return out.Bytes(), nil
}
