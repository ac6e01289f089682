package lobby

import (
	"strings"
	"testing"
)

func TestRoomCodeShapeAndSpread(t *testing.T) {
	seen := make(map[string]struct{}, 512)
	for i := 0; i < 512; i++ {
		code := newRoomCode()
		if !strings.HasPrefix(code, "RM-") || len(code) != 9 {
			t.Fatalf("bad code shape: %q", code)
		}
		for _, ch := range code[3:] {
			if !strings.ContainsRune(codeAlphabet, ch) {
				t.Fatalf("code %q uses glyph outside the alphabet", code)
			}
		}
		seen[code] = struct{}{}
	}
	// 31^6 possible codes; 512 draws colliding down to half would mean the
	// generator is broken, not unlucky
	if len(seen) < 500 {
		t.Fatalf("too many collisions: %d distinct of 512", len(seen))
	}
}
