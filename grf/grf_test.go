package grf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dselans/beampatch/grf"
)

func TestCreatePatchSaveReopenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.grf")

	a, err := grf.CreateNew(path)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}

	if err := a.PatchFile("data/hello.txt", []byte("hello world")); err != nil {
		t.Fatalf("PatchFile: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := grf.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := reopened.ExtractFile("data/hello.txt")
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestLaterPatchOverwritesEarlier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.grf")

	a, err := grf.CreateNew(path)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	if err := a.PatchFile("data/x.txt", []byte("first")); err != nil {
		t.Fatalf("PatchFile: %v", err)
	}
	if err := a.PatchFile("data/x.txt", []byte("second")); err != nil {
		t.Fatalf("PatchFile: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := grf.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(reopened.Entries()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(reopened.Entries()))
	}
	got, err := reopened.ExtractFile("data/x.txt")
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.grf")
	if err := os.WriteFile(path, []byte("not a grf file at all, way too short"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := grf.Open(path); err == nil {
		t.Fatal("expected InvalidFormat error for bad magic")
	}
}
