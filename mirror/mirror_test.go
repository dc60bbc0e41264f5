package mirror_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dselans/beampatch/mirror"
	"github.com/dselans/beampatch/mirror/health"
)

func TestFetchPatchListParsesLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# a comment\n\npatch_001.thor abcdef 1024\npatch_002.rgz\n"))
	}))
	defer srv.Close()

	c := mirror.NewClient(true)
	patches, err := c.FetchPatchList(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchPatchList: %v", err)
	}
	if len(patches) != 2 {
		t.Fatalf("expected 2 patches, got %d: %+v", len(patches), patches)
	}
	if patches[0].Filename != "patch_001.thor" || patches[0].Checksum != "abcdef" || !patches[0].HasSize || patches[0].Size != 1024 {
		t.Fatalf("unexpected first patch: %+v", patches[0])
	}
	if patches[1].Filename != "patch_002.rgz" || patches[1].Checksum != "" || patches[1].HasSize {
		t.Fatalf("unexpected second patch: %+v", patches[1])
	}
}

func TestDownloadFailsOverToSecondMirror(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("patch contents"))
	}))
	defer good.Close()

	mirrors := []mirror.Mirror{
		{Name: "primary", URL: bad.URL, Priority: 0},
		{Name: "secondary", URL: good.URL, Priority: 1},
	}

	dest := filepath.Join(t.TempDir(), "out.thor")
	c := mirror.NewClient(false)
	if err := c.Download(context.Background(), mirrors, "patch.thor", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, rerr := os.ReadFile(dest)
	if rerr != nil {
		t.Fatalf("ReadFile: %v", rerr)
	}
	if string(data) != "patch contents" {
		t.Fatalf("got %q", data)
	}
}

func TestDownloadAllMirrorsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	mirrors := []mirror.Mirror{{Name: "only", URL: bad.URL, Priority: 0}}

	dest := filepath.Join(t.TempDir(), "out.thor")
	c := mirror.NewClient(false)
	if err := c.Download(context.Background(), mirrors, "patch.thor", dest); err == nil {
		t.Fatal("expected error when all mirrors fail")
	}
}

func TestDownloadSkipsEmptyURLMirrors(t *testing.T) {
	mirrors := []mirror.Mirror{{Name: "empty", URL: "", Priority: 0}}

	dest := filepath.Join(t.TempDir(), "out.thor")
	c := mirror.NewClient(false)
	if err := c.Download(context.Background(), mirrors, "patch.thor", dest); err == nil {
		t.Fatal("expected DownloadFailed when no mirror is attempted")
	}
}

func TestVerifyChecksumDisabledAlwaysTrue(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "any.thor")
	if err := os.WriteFile(dest, []byte("whatever"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := mirror.NewClient(false)
	ok, err := c.VerifyChecksum(dest, "does-not-matter")
	if err != nil {
		t.Fatalf("VerifyChecksum: %v", err)
	}
	if !ok {
		t.Fatal("expected verification disabled to always return true")
	}
}

// TestUnhealthyMirrorTriedLastWithinPriorityTier confirms the health
// tracker reorders same-priority candidates: a marked-unhealthy mirror
// listed first is moved behind a healthy one of the same priority, so the
// healthy mirror is tried first and, since it succeeds, the unhealthy one
// is never contacted.
func TestUnhealthyMirrorTriedLastWithinPriorityTier(t *testing.T) {
	var triedStable, triedFlaky bool

	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		triedFlaky = true
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer flaky.Close()

	stable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		triedStable = true
		w.Write([]byte("ok"))
	}))
	defer stable.Close()

	tracker := health.NewMemTracker()
	tracker.RecordFailure("flaky")
	tracker.RecordFailure("flaky")
	tracker.RecordFailure("flaky") // trips the threshold, marking it unhealthy

	mirrors := []mirror.Mirror{
		{Name: "flaky", URL: flaky.URL, Priority: 0},
		{Name: "stable", URL: stable.URL, Priority: 0},
	}

	dest := filepath.Join(t.TempDir(), "out.thor")
	c := mirror.NewClient(false).WithHealthTracker(tracker)
	if err := c.Download(context.Background(), mirrors, "patch.thor", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if !triedStable {
		t.Fatal("expected the healthy mirror to be tried")
	}
	if triedFlaky {
		t.Fatal("expected the unhealthy mirror to be tried after the healthy one")
	}
}

func TestVerifyChecksumMismatch(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "any.thor")
	if err := os.WriteFile(dest, []byte("whatever"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := mirror.NewClient(true)
	ok, err := c.VerifyChecksum(dest, "0000000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("VerifyChecksum: %v", err)
	}
	if ok {
		t.Fatal("expected checksum mismatch to return false")
	}
}
