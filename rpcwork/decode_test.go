package rpcwork

import (
	"strings"
	"testing"

	"github.com/coreminer/gominer/algo"
)

func TestGetworkRoundTrip(t *testing.T) {
	fam := algo.MustLookup("blake")
	dataHex := strings.Repeat("ab", fam.DataSize)

	words, err := wordsFromHexLE(dataHex, fam.DataSize/4)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := wordsToHexLE(words)
	if got != dataHex {
		t.Fatalf("round trip mismatch:\n got  %s\n want %s", got, dataHex)
	}
}

func TestDecodeGetworkDerivesJobIDFromNTime(t *testing.T) {
	fam := algo.MustLookup("blake")
	dataWords := make([]uint32, fam.DataSize/4)
	dataWords[17] = 0x54a1b2c3
	dataHex := wordsToHexLE(dataWords)

	targetWords := make([]uint32, 8)
	targetHex := wordsToHexLE(targetWords)

	res := getworkResult{Data: dataHex, Target: targetHex}
	job, err := decodeGetwork(res, fam, 2)
	if err != nil {
		t.Fatalf("decodeGetwork: %v", err)
	}
	if job.JobID != "54a1b2c3" {
		t.Fatalf("expected job id derived from ntime, got %q", job.JobID)
	}
	if job.PoolID != 2 {
		t.Fatalf("expected pool id 2, got %d", job.PoolID)
	}
}

func TestResolveLongpollURLAbsolute(t *testing.T) {
	got, err := resolveLongpollURL("http://pool.example/", "http://other.example/lp")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "http://other.example/lp" {
		t.Fatalf("expected absolute override, got %q", got)
	}
}

func TestResolveLongpollURLRelative(t *testing.T) {
	got, err := resolveLongpollURL("http://pool.example/getwork", "/lp/12345")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "http://pool.example/lp/12345" {
		t.Fatalf("expected relative path resolved against base host, got %q", got)
	}
}
