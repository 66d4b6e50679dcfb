package work

import "testing"

func TestHeaderPrefixEqualCoversSeventeenWords(t *testing.T) {
	var a, b Work
	for i := 1; i < 18; i++ {
		a.Data[i] = uint32(i) * 0x01010101
		b.Data[i] = a.Data[i]
	}
	if !a.HeaderPrefixEqual(&b) {
		t.Fatalf("expected identical words 1..17 to compare equal")
	}

	b.Data[17] ^= 0xff
	if a.HeaderPrefixEqual(&b) {
		t.Fatalf("expected a difference at word 17 (the 17th compared word) to be detected")
	}
}

func TestHeaderPrefixEqualIgnoresWordZeroAndNonce(t *testing.T) {
	var a, b Work
	a.Data[0] = 1
	b.Data[0] = 2
	a.Data[19] = 1
	b.Data[19] = 2
	if !a.HeaderPrefixEqual(&b) {
		t.Fatalf("word 0 (version) and word 19 (nonce) should not affect the prefix comparison")
	}
}
