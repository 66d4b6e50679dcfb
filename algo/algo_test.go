package algo

import "testing"

func TestLookupKnownFamilies(t *testing.T) {
	for _, name := range []string{"blake", "groestl", "keccak", "scrypt", "heavy", "zr5"} {
		if _, ok := Lookup(name); !ok {
			t.Fatalf("expected family %q to be registered", name)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("nonexistent-algo"); ok {
		t.Fatalf("expected nonexistent-algo to be absent")
	}
}

func TestApplyEndiannessNoop(t *testing.T) {
	f := MustLookup("blake")
	var header [32]uint32
	header[0] = 0x01020304
	f.ApplyEndianness(&header)
	if header[0] != 0x01020304 {
		t.Fatalf("little-endian family should not swap words")
	}
}

func TestApplyEndiannessSwapsHeavy(t *testing.T) {
	f := MustLookup("heavy")
	var header [32]uint32
	header[0] = 0x01020304
	f.ApplyEndianness(&header)
	if header[0] != 0x04030201 {
		t.Fatalf("heavy family should byte-swap word 0, got %#x", header[0])
	}
}

func TestFinalizeHeaderStampsInvariants(t *testing.T) {
	f := MustLookup("blake")
	var header [32]uint32
	f.FinalizeHeader(&header, 0, 0)
	if header[20] != 0x80000000 {
		t.Fatalf("expected padding word at word 20, got %#x", header[20])
	}
	if header[31] != 0x280 {
		t.Fatalf("expected bit-length constant 0x280 at word 31, got %#x", header[31])
	}
}

func TestFinalizeHeaderPacksVoteAndRewardForHeavy(t *testing.T) {
	f := MustLookup("heavy")
	var header [32]uint32
	f.FinalizeHeader(&header, 0x1234, 0x5678)
	if want := uint32(0x56781234); header[20] != want {
		t.Fatalf("expected vote/reward packed into word 20, got %#x, want %#x", header[20], want)
	}
	if header[31] != 0x2A0 {
		t.Fatalf("expected bit-length constant 0x2A0 at word 31, got %#x", header[31])
	}
}

func TestFinalizeHeaderUsesPaddingForNonVoteHeavycoinFamily(t *testing.T) {
	f := MustLookup("mjollnir")
	var header [32]uint32
	f.FinalizeHeader(&header, 0x1234, 0x5678)
	if header[20] != 0x80000000 {
		t.Fatalf("mjollnir has no HasVote, expected padding word, got %#x", header[20])
	}
}

func TestReferenceScanFindsSolutionUnderLooseTarget(t *testing.T) {
	var header [32]uint32
	header[19] = 0
	// A maximally loose target: every hash should satisfy it immediately.
	var target [8]uint32
	for i := range target {
		target[i] = 0xffffffff
	}
	res := ReferenceScan(0, header, target, 100)
	if res.RC != 1 {
		t.Fatalf("expected RC=1 with a maximally loose target, got %+v", res)
	}
}

func TestReferenceScanExhaustsRangeUnderImpossibleTarget(t *testing.T) {
	var header [32]uint32
	var target [8]uint32 // all zero: nothing satisfies hash <= 0
	res := ReferenceScan(0, header, target, 4)
	if res.RC != 0 {
		t.Fatalf("expected RC=0 (range exhausted) under an impossible target, got %+v", res)
	}
	if res.HashesDone != 5 {
		t.Fatalf("expected 5 hashes for range [0,4], got %d", res.HashesDone)
	}
}
