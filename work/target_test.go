package work

import "testing"

func TestCompactToDifficulty(t *testing.T) {
	got := CompactToDifficulty(0x1c05ea29)
	want := 43.281
	if diff := got - want; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("CompactToDifficulty(0x1c05ea29) = %v, want ~%v", got, want)
	}
}

func TestDiffTargetRoundTrip(t *testing.T) {
	for _, diff := range []float64{1, 2.5, 1000, 0.0001} {
		target := DiffToTarget(diff, 1)
		got := DifficultyFromTarget(target)
		if got == 0 {
			t.Fatalf("DifficultyFromTarget returned 0 for diff %v", diff)
		}
		ratio := got / diff
		if ratio < 0.999 || ratio > 1.001 {
			t.Fatalf("round-trip diff %v -> target -> %v, ratio %v", diff, got, ratio)
		}
	}
}

func TestDiffToTargetDivisor(t *testing.T) {
	base := DiffToTarget(1, 1)
	scaled := DiffToTarget(1, 256)
	// A larger divisor raises the effective difficulty (target =
	// diffone/(diff*divisor)), so the resulting target is numerically
	// smaller.
	if TargetHighBits(scaled) >= TargetHighBits(base) {
		t.Fatalf("expected divisor to tighten the target: base=%x scaled=%x",
			TargetHighBits(base), TargetHighBits(scaled))
	}
}

func TestCompactToTargetHighBitsMonotonic(t *testing.T) {
	easy := CompactToTarget(0x1d00ffff)
	hard := CompactToTarget(0x1c05ea29)
	if TargetHighBits(hard) >= TargetHighBits(easy) {
		t.Fatalf("expected higher-difficulty nbits to produce a numerically smaller target")
	}
}
