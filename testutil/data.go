// Package testutil holds helpers shared by tests in this module.
package testutil

import (
	"math/rand"
	"testing"
)

// RandBytes produces n pseudorandom bytes determined by seed.
func RandBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	r := rand.New(rand.NewSource(seed))
	r.Read(buf)
	return buf
}

// Perturb returns a copy of buf with the byte at position pos changed.
func Perturb(buf []byte, pos int) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	out[pos] ^= 0xff
	return out
}

// Insert returns a copy of buf with ins inserted at position pos.
func Insert(buf []byte, pos int, ins []byte) []byte {
	out := make([]byte, 0, len(buf)+len(ins))
	out = append(out, buf[:pos]...)
	out = append(out, ins...)
	return append(out, buf[pos:]...)
}

// SameBytes fails the test if got and want differ,
// reporting the first differing position.
func SameBytes(t *testing.T, got, want []byte) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got length %d, want %d", len(got), len(want))
	}
	for i := 0; i < len(got); i++ {
		if got[i] != want[i] {
			t.Fatalf("mismatch at position %d (of %d)", i, len(got))
		}
	}
}
