package algo

import (
	"github.com/decred/dcrd/crypto/blake256"
	sha256simd "github.com/minio/sha256-simd"
)

// SHA256d is the default merkle-hash function: double SHA-256, computed
// with minio/sha256-simd instead of crypto/sha256 (SPEC_FULL.md domain
// stack) for the same drop-in reason Distortions81/rodb2008's goPool
// swaps it in for header hashing.
func SHA256d(data []byte) []byte {
	first := sha256simd.Sum256(data)
	second := sha256simd.Sum256(first[:])
	return second[:]
}

// SHA256Single is the merkle-hash function for the fugue/groestl/keccak/
// blakecoin family, which folds the coinbase with a single SHA-256 round
// instead of the doubled hash (spec §4.4 step 2).
func SHA256Single(data []byte) []byte {
	sum := sha256simd.Sum256(data)
	return sum[:]
}

// HeavycoinHash is the merkle-hash function for the heavy/mjollnir family.
// The reference miner selects among five 512-bit hashes (blake, groestl,
// jh, keccak, skein) by a running selector byte; that full selector chain
// is a GPU-kernel-level detail out of this core's scope (spec §1 treats
// hash kernels as opaque), so this implementation folds with a single
// blake256 round, which is the one heavycoin-family hash already present
// as a shared indirect dependency across the retrieval pack's goPool
// variants.
//
// TODO: wire the full blake/groestl/jh/keccak/skein selector chain if a
// heavy/mjollnir pool integration ever needs wire-exact merkle roots.
func HeavycoinHash(data []byte) []byte {
	h := blake256.New()
	h.Write(data)
	return h.Sum(nil)
}
