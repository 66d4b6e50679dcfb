package work

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// DiffOne is the difficulty-1 target, the reference numerator used to
// convert between difficulty and target: target == DiffOne / difficulty.
// It is 0xFFFF shifted left by 208 bits, the same value CompactToTarget
// yields for the compact encoding 0x1d00ffff, so its high 64 bits (words 7
// and 6) read 0x00000000FFFF0000. The 32 zero bits above it leave room
// for the 2^32 scaling in DiffToTargetWithBase and for targets of
// difficulties below 1. algo.Family carries no per-family diffone.
var DiffOne = new(uint256.Int).Lsh(uint256.NewInt(0xFFFF000000000000), 160)

// DiffToTarget computes the 256-bit big-endian target for a given
// difficulty and divisor, following spec §4.4 step 6:
//
//	target = diffone / (diff * divisor)
//
// diffone defaults to DiffOne; DiffToTargetWithBase takes a different
// base.
func DiffToTarget(diff float64, divisor float64) [TargetWords]uint32 {
	return DiffToTargetWithBase(DiffOne, diff, divisor)
}

// DiffToTargetWithBase is DiffToTarget parameterized on the diffone base.
func DiffToTargetWithBase(base *uint256.Int, diff float64, divisor float64) [TargetWords]uint32 {
	d := diff * divisor
	if d <= 0 {
		d = 1
	}
	// Scale to integer arithmetic: multiply both diff and base by 2^32 so
	// the division keeps precision for fractional difficulties without
	// floating point division on the 256-bit value itself.
	const scaleBits = 32
	scale := new(big.Float).SetFloat64(d)
	scale.Mul(scale, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), scaleBits)))
	scaledInt, _ := scale.Int(nil)
	if scaledInt.Sign() <= 0 {
		scaledInt = big.NewInt(1)
	}
	scaled, overflow := uint256.FromBig(scaledInt)
	if overflow || scaled.IsZero() {
		scaled = uint256.NewInt(1)
	}

	numerator := new(uint256.Int).Lsh(base, scaleBits)
	target := new(uint256.Int).Div(numerator, scaled)

	return targetToWords(target)
}

// targetToWords converts a big-endian-valued uint256 into the internal
// little-endian-per-word representation described in spec §3: "target is
// big-endian 256-bit on the wire, stored little-endian per-word
// internally."
func targetToWords(t *uint256.Int) (words [TargetWords]uint32) {
	b := t.Bytes32() // big-endian 32 bytes
	for i := 0; i < TargetWords; i++ {
		// word i (little-endian word order) comes from the highest bytes
		// first: word[7] is the most-significant word.
		off := i * 4
		be := b[32-off-4 : 32-off]
		words[i] = uint32(be[3]) | uint32(be[2])<<8 | uint32(be[1])<<16 | uint32(be[0])<<24
	}
	return
}

// TargetHighBits returns the high 64 bits of the target (words 7 and 6),
// used for compact "less-than" comparisons per spec GLOSSARY.
func TargetHighBits(target [TargetWords]uint32) uint64 {
	return uint64(target[7])<<32 | uint64(target[6])
}

// DifficultyFromTarget is the inverse of DiffToTarget: difficulty ==
// diffone-as-high-bits / target-high-bits, matching ccminer's
// calc_target_diff (spec §8 round-trip property).
func DifficultyFromTarget(target [TargetWords]uint32) float64 {
	high := TargetHighBits(target)
	if high == 0 {
		return 0
	}
	base := TargetHighBits(targetToWords(DiffOne))
	return float64(base) / float64(high)
}

// CompactToDifficulty decodes a Bitcoin-style compact "nbits" encoding
// into a difficulty value, e.g. 0x1c05ea29 -> ~43.281 (spec §8).
func CompactToDifficulty(nBits uint32) float64 {
	const powLimitExponent = 0x1d // exponent at which difficulty == 1 for the reference chain
	const powLimitMantissa = 0x00ffff

	exponent := int(nBits >> 24)
	mantissa := float64(nBits & 0x00ffffff)
	if mantissa == 0 {
		return 0
	}

	diff := float64(powLimitMantissa) / mantissa
	shift := powLimitExponent - exponent
	return diff * math.Pow(256, float64(shift))
}

// CompactToTarget expands a compact nbits word into a 256-bit target in
// the internal little-endian-per-word representation.
func CompactToTarget(nBits uint32) [TargetWords]uint32 {
	exponent := int(nBits >> 24)
	mantissa := new(big.Int).SetUint64(uint64(nBits & 0x007fffff))

	var value *big.Int
	if exponent <= 3 {
		value = new(big.Int).Rsh(mantissa, uint(8*(3-exponent)))
	} else {
		value = new(big.Int).Lsh(mantissa, uint(8*(exponent-3)))
	}
	t, _ := uint256.FromBig(value)
	return targetToWords(t)
}
