package grf

import (
	"os"
	"path/filepath"

	"github.com/dselans/beampatch/bytestream"
	"github.com/dselans/beampatch/patcherr"
)

func compress(b []byte) ([]byte, *patcherr.Error) {
	return bytestream.DeflateZlib(b)
}

func decompress(b []byte) ([]byte, *patcherr.Error) {
	return bytestream.InflateZlib(b)
}

// Open parses an existing GRF's header and file table.
func Open(path string) (*Archive, *patcherr.Error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "reading grf file")
	}
	return openBytes(path, raw)
}

func openBytes(path string, raw []byte) (*Archive, *patcherr.Error) {
	if len(raw) < headerLen || string(raw[:magicLen]) != magic {
		return nil, patcherr.New(patcherr.InvalidFormat, "grf: bad magic")
	}

	r := bytestream.NewReader(raw)
	if err := r.Seek(30); err != nil {
		return nil, err
	}

	tableOffset, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	seed, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	rawFileCount, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	version, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if version < MinVersion {
		return nil, patcherr.New(patcherr.InvalidFormat, "grf: unsupported version 0x%x", version)
	}

	dataStart := headerLen
	dataEnd := headerLen + int(tableOffset)
	if dataEnd > len(raw) || dataEnd < dataStart {
		return nil, patcherr.New(patcherr.InvalidFormat, "grf: table offset out of range")
	}
	data := append([]byte(nil), raw[dataStart:dataEnd]...)

	if err := r.Seek(dataEnd); err != nil {
		return nil, err
	}
	tableCompressedLen, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // table uncompressed length, recomputed on save
		return nil, err
	}
	tableRaw, err := r.ReadBytes(int(tableCompressedLen))
	if err != nil {
		return nil, err
	}

	tableData, derr := decompress(tableRaw)
	if derr != nil {
		return nil, derr
	}

	table, order, derr := parseTable(tableData)
	if derr != nil {
		return nil, derr
	}

	fileCount := int(rawFileCount) - int(seed) - 7
	if fileCount != len(order) {
		log.WithFields(map[string]interface{}{
			"declared": fileCount,
			"parsed":   len(order),
		}).Warn("grf file count header disagrees with parsed table; trusting the table")
	}

	return &Archive{
		path:    path,
		version: version,
		seed:    seed,
		table:   table,
		order:   order,
		data:    data,
	}, nil
}

func parseTable(data []byte) (map[string]Entry, []string, *patcherr.Error) {
	r := bytestream.NewReader(data)
	table := make(map[string]Entry)
	var order []string

	for r.Remaining() > 0 {
		name, err := readCString(r)
		if err != nil {
			break
		}
		if name == "" {
			break
		}

		compressedSize, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		alignedSize, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		_ = alignedSize // padding-inclusive length, not needed once data is re-appended on save
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

		filename := canonicalizeFromArchive(name)
		if _, existed := table[filename]; !existed {
			order = append(order, filename)
		}
		table[filename] = Entry{
			Filename:         filename,
			Offset:           offset,
			CompressedSize:   compressedSize,
			UncompressedSize: uncompressedSize,
			Flags:            flags,
		}
	}

	return table, order, nil
}

func readCString(r *bytestream.Reader) (string, *patcherr.Error) {
	start := r.Pos()
	for {
		b, err := r.ReadU8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			raw, rerr := sliceBetween(r, start)
			if rerr != nil {
				return "", rerr
			}
			return bytestream.ReadLossyName(raw), nil
		}
	}
}

func sliceBetween(r *bytestream.Reader, start int) ([]byte, *patcherr.Error) {
	end := r.Pos() - 1 // exclude the NUL just consumed
	if end < start {
		return nil, nil
	}
	save := r.Pos()
	if err := r.Seek(start); err != nil {
		return nil, err
	}
	b, err := r.ReadBytes(end - start)
	if err != nil {
		return nil, err
	}
	if err := r.Seek(save); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateNew initializes an empty GRF on disk and returns it opened.
func CreateNew(path string) (*Archive, *patcherr.Error) {
	a := &Archive{
		path:    path,
		version: MinVersion,
		table:   make(map[string]Entry),
	}
	if err := a.Save(); err != nil {
		return nil, err
	}
	return a, nil
}

// Save serializes the file table, rewrites the header, and commits the
// archive to disk. It prefers an atomic rename of a sibling temp file,
// falling back to an in-place rewrite if the rename fails.
func (a *Archive) Save() *patcherr.Error {
	tableData := bytestream.NewWriter()
	for _, name := range a.order {
		e := a.table[name]
		tableData.WriteBytes([]byte(canonicalizeForArchive(e.Filename)))
		tableData.WriteU8(0)
		tableData.WriteU32(e.CompressedSize)
		tableData.WriteU32(align8(e.CompressedSize))
		tableData.WriteU32(e.UncompressedSize)
		tableData.WriteU8(e.Flags)
		tableData.WriteU32(e.Offset)
	}

	compressedTable, err := compress(tableData.Bytes())
	if err != nil {
		return err
	}

	out := bytestream.NewWriter()
	out.WriteBytes(make([]byte, headerLen))
	out.WriteBytes(a.data)

	tableOffset := uint32(len(a.data))
	out.WriteU32(uint32(len(compressedTable)))
	out.WriteU32(uint32(tableData.Len()))
	out.WriteBytes(compressedTable)

	raw := out.Bytes()
	copy(raw[0:magicLen], []byte(magic))

	fileCount := uint32(len(a.order)) + a.seed + 7
	binaryPutU32(raw, 30, tableOffset)
	binaryPutU32(raw, 34, a.seed)
	binaryPutU32(raw, 38, fileCount)
	binaryPutU32(raw, 42, a.version)

	if err := atomicWrite(a.path, raw); err != nil {
		return err
	}

	a.dirty = false
	log.WithFields(map[string]interface{}{"path": a.path, "files": len(a.order)}).Info("saved grf")
	return nil
}

func atomicWrite(path string, data []byte) *patcherr.Error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".grf-tmp-*")
	if err != nil {
		return patcherr.Wrap(patcherr.Io, err, "creating temp grf file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return patcherr.Wrap(patcherr.Io, err, "writing temp grf file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return patcherr.Wrap(patcherr.Io, err, "syncing temp grf file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return patcherr.Wrap(patcherr.Io, err, "closing temp grf file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		log.WithFields(map[string]interface{}{"path": path, "err": err}).Warn("atomic rename failed, falling back to in-place rewrite")
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			os.Remove(tmpPath)
			return patcherr.Wrap(patcherr.Io, werr, "in-place grf rewrite")
		}
		os.Remove(tmpPath)
	}
	return nil
}

func binaryPutU32(buf []byte, offset int, v uint32) {
	buf[offset] = byte(v)
	buf[offset+1] = byte(v >> 8)
	buf[offset+2] = byte(v >> 16)
	buf[offset+3] = byte(v >> 24)
}

func align8(n uint32) uint32 {
	if n%8 == 0 {
		return n
	}
	return n + (8 - n%8)
}

// canonicalizeFromArchive and canonicalizeForArchive translate between the
// backslash-separated path convention GRF tables use on disk and the
// forward-slash convention the rest of this module uses internally.
func canonicalizeFromArchive(name string) string {
	return replaceAll(name, '\\', '/')
}

func canonicalizeForArchive(name string) string {
	return replaceAll(name, '/', '\\')
}

func replaceAll(s string, from, to byte) string {
	b := []byte(s)
	for i, c := range b {
		if c == from {
			b[i] = to
		}
	}
	return string(b)
}
