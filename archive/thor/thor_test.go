package thor_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dselans/beampatch/archive/thor"
)

func TestRoundTrip(t *testing.T) {
	a := thor.New()
	if err := a.AddFile("data/x.txt", []byte("hello patch")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.RemoveFile("data/old.txt"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	raw, err := a.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got, err := thor.OpenBytes(raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	want := []thor.Entry{
		{Kind: thor.Add, Filename: "data/x.txt", Data: []byte("hello patch")},
		{Kind: thor.Remove, Filename: "data/old.txt"},
	}

	if diff := cmp.Diff(want, got.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestBadMagicRejected(t *testing.T) {
	if _, err := thor.OpenBytes([]byte("not a thor file at all")); err == nil {
		t.Fatal("expected InvalidFormat error for bad magic")
	}
}

func TestNameTooLong(t *testing.T) {
	a := thor.New()
	longName := make([]byte, thor.MaxNameLen+1)
	for i := range longName {
		longName[i] = 'a'
	}
	if err := a.AddFile(string(longName), nil); err == nil {
		t.Fatal("expected name-too-long error")
	}
}

func TestCorruptTableOffsetRejected(t *testing.T) {
	a := thor.New()
	if err := a.AddFile("data/x.txt", []byte("hello")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	raw, err := a.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	// Corrupt the file table offset field (last 4 bytes of the fixed header)
	// to point past the end of the file.
	corrupt := append([]byte(nil), raw...)
	for i := 36; i < 40; i++ {
		corrupt[i] = 0xff
	}

	// This corrupts the table offset itself, which this package treats as a
	// hard InvalidFormat (the table can't be located at all) rather than a
	// tolerated per-entry condition; the tolerated case is a bad per-entry
	// offset inside an otherwise-valid table, which OpenBytes handles via
	// parseFileTable's range check on each Add record.
	if _, err := thor.OpenBytes(corrupt); err == nil {
		t.Fatal("expected error for corrupted table offset")
	}
}
