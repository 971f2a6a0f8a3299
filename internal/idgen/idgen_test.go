package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("aud_")
	if !strings.HasPrefix(id, "aud_") {
		t.Fatalf("missing prefix: %q", id)
	}
	if len(id) != len("aud_")+24 {
		t.Fatalf("unexpected length %d for %q", len(id), id)
	}
}

func TestHex_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		h := Hex(16)
		if len(h) != 32 {
			t.Fatalf("expected 32 hex chars, got %d", len(h))
		}
		if seen[h] {
			t.Fatalf("duplicate id %q", h)
		}
		seen[h] = true
	}
}
