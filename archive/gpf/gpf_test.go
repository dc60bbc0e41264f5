package gpf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dselans/beampatch/archive/gpf"
	"github.com/dselans/beampatch/bytestream"
)

// buildGPF constructs a minimal valid GPF file containing a single entry,
// mirroring the GRF layout GPF is homologous to.
func buildGPF(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	compressed, err := bytestream.DeflateZlib(content)
	if err != nil {
		t.Fatalf("DeflateZlib: %v", err)
	}

	table := bytestream.NewWriter()
	table.WriteBytes([]byte(name))
	table.WriteU8(0)
	table.WriteU32(uint32(len(compressed)))
	table.WriteU32(uint32(len(compressed)))
	table.WriteU32(uint32(len(content)))
	table.WriteU8(0x01)
	table.WriteU32(0)

	compressedTable, err := bytestream.DeflateZlib(table.Bytes())
	if err != nil {
		t.Fatalf("DeflateZlib table: %v", err)
	}

	out := bytestream.NewWriter()
	header := make([]byte, 46)
	copy(header[0:17], []byte("GPF Package File"))
	out.WriteBytes(header)
	out.WriteBytes(compressed)
	out.WriteU32(uint32(len(compressedTable)))
	out.WriteU32(uint32(table.Len()))
	out.WriteBytes(compressedTable)

	raw := out.Bytes()
	putU32 := func(off int, v uint32) {
		raw[off] = byte(v)
		raw[off+1] = byte(v >> 8)
		raw[off+2] = byte(v >> 16)
		raw[off+3] = byte(v >> 24)
	}
	putU32(30, uint32(len(compressed))) // table offset
	putU32(34, 0)                       // seed
	putU32(38, 8)                       // file count (1 + seed + 7)
	putU32(42, 0x200)                   // version

	return raw
}

func TestOpenListAndExtract(t *testing.T) {
	raw := buildGPF(t, "data/hello.txt", []byte("hello from gpf"))

	dir := t.TempDir()
	path := filepath.Join(dir, "test.gpf")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a, err := gpf.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	files := a.ListFiles()
	if len(files) != 1 || files[0] != "data/hello.txt" {
		t.Fatalf("ListFiles: got %v", files)
	}

	got, err := a.ExtractFile("data/hello.txt")
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if string(got) != "hello from gpf" {
		t.Fatalf("got %q", got)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.gpf")
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := gpf.Open(path); err == nil {
		t.Fatal("expected InvalidFormat error for bad magic")
	}
}
