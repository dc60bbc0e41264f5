package beam

import "testing"

func TestVerifyFileFailsOnDigestMismatch(t *testing.T) {
	a := New()
	if err := a.AddFile("data/a.txt", "", []byte("alpha")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	// Simulate a payload tampered after the digest was computed: mutate the
	// stored bytes directly while leaving the recorded digest untouched.
	a.entries[0].Data = []byte("tampered")

	if a.VerifyFile("data/a.txt") {
		t.Fatal("expected verification failure after payload tamper")
	}
}
