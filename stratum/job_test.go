package stratum

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/coreminer/gominer/algo"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return b
}

func TestAssembleJobHeaderLayout(t *testing.T) {
	fam := algo.MustLookup("blake")

	n := NotifyParams{
		JobID:        "job1",
		PrevHash:     mustHex(t, strings.Repeat("00", 32)),
		Coinbase1:    mustHex(t, "01"),
		Coinbase2:    mustHex(t, "02"),
		MerkleBranch: nil,
		Version:      mustHex(t, "00000002"),
		NBits:        mustHex(t, "1d00ffff"),
		NTime:        mustHex(t, "54a1b2c3"),
		Clean:        true,
	}

	job := AssembleJob(fam, n, []byte{}, []byte{0, 0, 0, 0}, 1.0, 1.0, 0, 0)

	if job.NTime() != 0x54a1b2c3 {
		t.Fatalf("expected word 17 (ntime) == 0x54a1b2c3, got %#x", job.NTime())
	}
	if job.NBits() != 0x1d00ffff {
		t.Fatalf("expected word 18 (nbits) == 0x1d00ffff, got %#x", job.NBits())
	}
	if job.Data[0] != 0x00000002 {
		t.Fatalf("expected word 0 (version) == 0x00000002, got %#x", job.Data[0])
	}
	if job.Data[20] != 0x80000000 {
		t.Fatalf("expected padding word at word 20, got %#x", job.Data[20])
	}
	if job.Data[31] != 0x280 {
		t.Fatalf("expected bit-length constant 0x280 at word 31, got %#x", job.Data[31])
	}
	if job.JobID != "job1" {
		t.Fatalf("expected job id job1, got %q", job.JobID)
	}
}

func TestIncrementXNonce2Carries(t *testing.T) {
	x := []byte{0xff, 0x00, 0x00, 0x00}
	IncrementXNonce2(x)
	want := []byte{0x00, 0x01, 0x00, 0x00}
	for i := range want {
		if x[i] != want[i] {
			t.Fatalf("expected %v after carry, got %v", want, x)
		}
	}
}

func TestIncrementXNonce2NoCarryNeeded(t *testing.T) {
	x := []byte{0x01, 0x00, 0x00, 0x00}
	IncrementXNonce2(x)
	if x[0] != 0x02 {
		t.Fatalf("expected first byte to become 0x02, got %#x", x[0])
	}
}
