package pow

import (
	"strings"
	"testing"
)

func TestLeadingZeroBits(t *testing.T) {
	for _, tt := range []struct {
		name   string
		digest []byte
		want   int
	}{
		{"empty", []byte{}, 0},
		{"all zero", make([]byte, 32), 256},
		{"high bit set", []byte{0x80, 0x00}, 0},
		{"one leading zero", []byte{0x40}, 1},
		{"seven leading zeros", []byte{0x01}, 7},
		{"zero byte then high bit", []byte{0x00, 0x80}, 8},
		{"zero byte then low bit", []byte{0x00, 0x01}, 15},
		{"two zero bytes", []byte{0x00, 0x00, 0xff}, 16},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := LeadingZeroBits(tt.digest); got != tt.want {
				t.Errorf("LeadingZeroBits(%x): wanted %d, got %d", tt.digest, tt.want, got)
			}
		})
	}
}

func TestLeadingZeroBitsRange(t *testing.T) {
	digests := [][]byte{
		{0xde, 0xad, 0xbe, 0xef},
		{0x00, 0x00, 0x00, 0x00},
		{0xff},
		{0x00},
	}

	for _, digest := range digests {
		got := LeadingZeroBits(digest)
		if got < 0 || got > 8*len(digest) {
			t.Errorf("LeadingZeroBits(%x) = %d, out of [0, %d]", digest, got, 8*len(digest))
		}
	}
}

func TestDerivePrefix(t *testing.T) {
	key := []byte("super secret key")

	a := DerivePrefix(key, "chall-1", "nonce-1")
	b := DerivePrefix(key, "chall-1", "nonce-1")
	if a != b {
		t.Errorf("prefix derivation is not deterministic: %q != %q", a, b)
	}

	if len(a) != PrefixSize*2 {
		t.Errorf("wanted %d hex chars, got %d", PrefixSize*2, len(a))
	}

	if a == DerivePrefix(key, "chall-2", "nonce-1") {
		t.Error("different identifiers yielded the same prefix")
	}

	if a == DerivePrefix([]byte("other key"), "chall-1", "nonce-1") {
		t.Error("different keys yielded the same prefix")
	}
}

func TestCheck(t *testing.T) {
	prefix := DerivePrefix([]byte("key"), "id", "srv")

	// difficulty 0 accepts anything, including awkward nonce encodings
	for _, nonce := range []string{"", "0", "タコス", strings.Repeat("a", 4096)} {
		achieved, ok, err := Check(prefix, nonce, 0)
		if err != nil {
			t.Fatalf("Check(%q): %v", nonce, err)
		}
		if !ok {
			t.Errorf("Check(%q) at difficulty 0 should pass, achieved %d", nonce, achieved)
		}
	}

	if _, _, err := Check("not hex", "0", 0); err == nil {
		t.Error("wanted malformed prefix to be rejected")
	}
}

func TestSolve(t *testing.T) {
	const difficulty = 8

	prefix := DerivePrefix([]byte("key"), "id", "srv")

	nonce, err := Solve(prefix, difficulty)
	if err != nil {
		t.Fatal(err)
	}

	achieved, ok, err := Check(prefix, nonce, difficulty)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Errorf("solved nonce does not verify: achieved %d, wanted >= %d", achieved, difficulty)
	}
}
