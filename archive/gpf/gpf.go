// Package gpf implements the read-only GPF carrier. The spec for this
// format is interface-only: its on-disk layout is homologous to the GRF
// container, differing only in its magic bytes, so this package mirrors
// grf's header/table parsing rather than reinventing it.
package gpf

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/bytestream"
	"github.com/dselans/beampatch/patcherr"
)

const (
	magic     = "GPF Package File"
	magicLen  = len(magic)
	headerLen = 46

	flagFile = 0x01
)

type entry struct {
	offset           uint32
	compressedSize   uint32
	uncompressedSize uint32
	flags            uint8
}

func (e entry) isFile() bool { return e.flags&flagFile != 0 }

// Archive is a parsed, read-only GPF carrier.
type Archive struct {
	table map[string]entry
	order []string
	data  []byte
}

var log = logrus.WithField("pkg", "gpf")

// Open parses a GPF file from disk.
func Open(path string) (*Archive, *patcherr.Error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "reading gpf file")
	}
	return openBytes(raw)
}

func openBytes(raw []byte) (*Archive, *patcherr.Error) {
	if len(raw) < headerLen || string(raw[:magicLen]) != magic {
		return nil, patcherr.New(patcherr.InvalidFormat, "gpf: bad magic")
	}

	r := bytestream.NewReader(raw)
	if err := r.Seek(30); err != nil {
		return nil, err
	}
	tableOffset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // seed, unused for read-only access
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // file count, recomputed from the table
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // version, not gated for this carrier
		return nil, err
	}

	dataStart := headerLen
	dataEnd := headerLen + int(tableOffset)
	if dataEnd > len(raw) || dataEnd < dataStart {
		return nil, patcherr.New(patcherr.InvalidFormat, "gpf: table offset out of range")
	}
	data := raw[dataStart:dataEnd]

	if err := r.Seek(dataEnd); err != nil {
		return nil, err
	}
	tableCompressedLen, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil {
		return nil, err
	}
	tableRaw, err := r.ReadBytes(int(tableCompressedLen))
	if err != nil {
		return nil, err
	}

	tableData, derr := bytestream.InflateZlib(tableRaw)
	if derr != nil {
		return nil, derr
	}

	table, order, derr := parseTable(tableData)
	if derr != nil {
		return nil, derr
	}

	return &Archive{table: table, order: order, data: data}, nil
}

func parseTable(data []byte) (map[string]entry, []string, *patcherr.Error) {
	r := bytestream.NewReader(data)
	table := make(map[string]entry)
	var order []string

	for r.Remaining() > 0 {
		start := r.Pos()
		var nameEnd = -1
		for {
			b, err := r.ReadU8()
			if err != nil {
				return table, order, nil
			}
			if b == 0 {
				nameEnd = r.Pos() - 1
				break
			}
		}
		if nameEnd <= start {
			break
		}

		save := r.Pos()
		if err := r.Seek(start); err != nil {
			return nil, nil, err
		}
		nameRaw, err := r.ReadBytes(nameEnd - start)
		if err != nil {
			return nil, nil, err
		}
		if err := r.Seek(save); err != nil {
			return nil, nil, err
		}
		name := bytestream.ReadLossyName(nameRaw)

		compressedSize, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		if _, err := r.ReadU32(); err != nil { // aligned size, unused for read-only access
			return nil, nil, err
		}
		uncompressedSize, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		flags, err := r.ReadU8()
		if err != nil {
			return nil, nil, err
		}
		offset, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}

		filename := canonicalize(name)
		if _, exists := table[filename]; !exists {
			order = append(order, filename)
		}
		table[filename] = entry{
			offset:           offset,
			compressedSize:   compressedSize,
			uncompressedSize: uncompressedSize,
			flags:            flags,
		}
	}

	return table, order, nil
}

func canonicalize(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c == '\\' {
			b[i] = '/'
		}
	}
	return string(b)
}

// ListFiles returns every file entry's canonicalized path.
func (a *Archive) ListFiles() []string {
	out := make([]string, 0, len(a.order))
	for _, name := range a.order {
		if a.table[name].isFile() {
			out = append(out, name)
		}
	}
	return out
}

// ExtractFile returns name's decompressed payload.
func (a *Archive) ExtractFile(name string) ([]byte, *patcherr.Error) {
	e, ok := a.table[name]
	if !ok || !e.isFile() {
		return nil, patcherr.New(patcherr.Custom, "gpf: no such file: %s", name)
	}

	end := int(e.offset) + int(e.compressedSize)
	if int(e.offset) < 0 || end > len(a.data) {
		return nil, patcherr.New(patcherr.InvalidFormat, "gpf: entry offset/size out of range: %s", name)
	}

	out, derr := bytestream.InflateZlib(a.data[e.offset:end])
	if derr != nil {
		log.WithFields(logrus.Fields{"name": name}).Warn("gpf: entry failed to decompress")
		return nil, derr
	}
	return out, nil
}
