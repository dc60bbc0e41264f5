package patcher_test

import (
	"context"
	"crypto/md5"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dselans/beampatch/archive/rgz"
	"github.com/dselans/beampatch/bytestream"
	"github.com/dselans/beampatch/grf"
	"github.com/dselans/beampatch/mirror"
	"github.com/dselans/beampatch/patcher"
)

func newTestPatcher(t *testing.T, mirrorURL string) (*patcher.Patcher, string) {
	t.Helper()

	gameDir := t.TempDir()
	p, err := patcher.New(patcher.Config{
		Mirrors:          []mirror.Mirror{{Name: "test", URL: mirrorURL, Priority: 0}},
		PatchListURL:     mirrorURL + "/patch_list.txt",
		VerifyChecksums:  false,
		TargetGRF:        "data.grf",
		AllowManualPatch: true,
		GameDirectory:    gameDir,
	})
	if err != nil {
		t.Fatalf("patcher.New: %v", err)
	}
	return p, gameDir
}

func TestApplyOneRgzPatchesGRFAndMarksApplied(t *testing.T) {
	a := rgz.New()
	if err := a.AddFile("data/hello.txt", []byte("hello from rgz")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	raw, err := a.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/patch_list.txt" {
			w.Write([]byte("patch_001.rgz\n"))
			return
		}
		w.Write(raw)
	}))
	defer srv.Close()

	p, gameDir := newTestPatcher(t, srv.URL)

	pending, perr := p.ListPending(context.Background())
	if perr != nil {
		t.Fatalf("ListPending: %v", perr)
	}
	if len(pending) != 1 || pending[0].Filename != "patch_001.rgz" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	if perr := p.ApplyOne(context.Background(), pending[0]); perr != nil {
		t.Fatalf("ApplyOne: %v", perr)
	}

	g, gerr := grf.Open(filepath.Join(gameDir, "data.grf"))
	if gerr != nil {
		t.Fatalf("grf.Open: %v", gerr)
	}
	data, eerr := g.ExtractFile("data/hello.txt")
	if eerr != nil {
		t.Fatalf("ExtractFile: %v", eerr)
	}
	if string(data) != "hello from rgz" {
		t.Fatalf("got %q", data)
	}

	// A second ListPending call must no longer report this patch: the
	// applied-set write from ApplyOne must have taken effect.
	pending2, perr := p.ListPending(context.Background())
	if perr != nil {
		t.Fatalf("ListPending (second): %v", perr)
	}
	if len(pending2) != 0 {
		t.Fatalf("expected no pending patches after apply, got %+v", pending2)
	}
}

// buildBeamWithBadDigest constructs a raw BEAM stream by hand (bypassing
// the beam package's own digest-computing AddFile) so its second entry's
// stored MD5 genuinely does not match its payload.
func buildBeamWithBadDigest(t *testing.T) []byte {
	t.Helper()

	w := bytestream.NewWriter()

	// entry 1: valid
	digest1 := md5.Sum([]byte("alpha"))
	w.WriteU8('b')
	w.WriteNamePrefixed8("data/a.txt", false)
	w.WriteNamePrefixed8("", false)
	w.WriteBytes(digest1[:])
	w.WriteU32(uint32(len("alpha")))
	w.WriteBytes([]byte("alpha"))

	// entry 2: digest does not match payload
	badDigest := md5.Sum([]byte("not-bravo"))
	w.WriteU8('b')
	w.WriteNamePrefixed8("data/b.txt", false)
	w.WriteNamePrefixed8("", false)
	w.WriteBytes(badDigest[:])
	w.WriteU32(uint32(len("bravo")))
	w.WriteBytes([]byte("bravo"))

	w.WriteU8('e')

	raw, err := bytestream.DeflateGzip(w.Bytes())
	if err != nil {
		t.Fatalf("DeflateGzip: %v", err)
	}
	return raw
}

func TestApplyOneBeamMD5FailureLeavesGRFUntouched(t *testing.T) {
	raw := buildBeamWithBadDigest(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/patch_list.txt" {
			w.Write([]byte("patch_002.beam\n"))
			return
		}
		w.Write(raw)
	}))
	defer srv.Close()

	p, gameDir := newTestPatcher(t, srv.URL)

	pending, lerr := p.ListPending(context.Background())
	if lerr != nil {
		t.Fatalf("ListPending: %v", lerr)
	}

	applyErr := p.ApplyOne(context.Background(), pending[0])
	if applyErr == nil {
		t.Fatal("expected PatchFailed error from MD5 verification mismatch")
	}

	if _, statErr := os.Stat(filepath.Join(gameDir, "data.grf")); statErr == nil {
		t.Fatal("expected no GRF to have been created when verification fails")
	}
}

func TestApplyManualRejectedWhenDisabled(t *testing.T) {
	gameDir := t.TempDir()
	p, err := patcher.New(patcher.Config{
		AllowManualPatch: false,
		TargetGRF:        "data.grf",
		GameDirectory:    gameDir,
	})
	if err != nil {
		t.Fatalf("patcher.New: %v", err)
	}

	if err := p.ApplyManual(filepath.Join(gameDir, "whatever.rgz")); err == nil {
		t.Fatal("expected manual patch to be rejected when disabled")
	}
}
