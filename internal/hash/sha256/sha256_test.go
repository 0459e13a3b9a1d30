package sha256

import (
	"strings"
	"testing"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHasherID(t *testing.T) {
	t.Parallel()

	h := New()
	id := h.ID("scbo-", "2026-04-15", "Gym Roof", "South Carolina")
	if !strings.HasPrefix(id, "scbo-") || len(id) != len("scbo-")+idLength {
		t.Fatalf("unexpected id shape %q", id)
	}
	if again := h.ID("scbo-", " 2026-04-15", "GYM ROOF ", "south carolina"); again != id {
		t.Fatalf("expected normalized parts to give %q, got %q", id, again)
	}
	if other := h.ID("scbo-", "2026-04-15", "Gym Floor", "South Carolina"); other == id {
		t.Fatal("expected different content to give a different id")
	}
	if joined := h.ID("scbo-", "ab", "c"); joined == h.ID("scbo-", "a", "bc") {
		t.Fatal("expected part boundaries to matter")
	}
}
