package beam_test

import (
	"testing"

	"github.com/dselans/beampatch/archive/beam"
)

func TestRoundTripAndVerify(t *testing.T) {
	a := beam.New()
	if err := a.AddFile("data/a.txt", "", []byte("alpha")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.AddFile("data/b.txt", "data/remapped_b.txt", []byte("bravo")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	raw, err := a.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got, err := beam.OpenBytes(raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	if files := got.ListFiles(); len(files) != 2 {
		t.Fatalf("ListFiles: got %v", files)
	}

	if !got.VerifyFile("data/a.txt") {
		t.Fatal("expected data/a.txt to verify")
	}

	bEntry, ok := got.GetEntry("data/b.txt")
	if !ok {
		t.Fatal("expected data/b.txt entry")
	}
	if bEntry.TargetPath() != "data/remapped_b.txt" {
		t.Fatalf("got target path %q", bEntry.TargetPath())
	}
}

func TestVerifyFailsOnUnknownFile(t *testing.T) {
	a := beam.New()
	if err := a.AddFile("data/a.txt", "", []byte("alpha")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if a.VerifyFile("data/does_not_exist.txt") {
		t.Fatal("expected verification failure for unknown file")
	}
}

func TestNameTooLong(t *testing.T) {
	a := beam.New()
	longName := make([]byte, beam.MaxNameLen+1)
	for i := range longName {
		longName[i] = 'a'
	}
	if err := a.AddFile(string(longName), "", nil); err == nil {
		t.Fatal("expected name-too-long error")
	}
}
