// Package algo implements the tagged algorithm dispatch table described in
// spec §9 "Design Notes": a table from algorithm tag to
// (scan_fn, header_hash_fn, merkle_hash_fn, target_divisor,
// header_endianness, data_size, nonce_minimum), replacing the wide switch
// on an algorithm enum that ccminer.cpp uses throughout stratum_gen_work,
// calc_target_diff and miner_thread. Family has no header-hash entry of
// its own: the header hash is whatever Family.Scan computes.
//
// The scan function itself stays an opaque collaborator per spec §1 ("the
// hash-algorithm kernels themselves... treated as opaque scan(nonce_range,
// header, target) -> Option<nonce> functions"); Family.Scan defaults to a
// correct-but-unoptimized reference CPU scanner suitable for tests, and a
// real GPU-backed implementation is expected to be plugged in by the
// caller that owns device dispatch (out of scope here).
package algo

import "github.com/coreminer/gominer/work"

// Endianness selects whether stratum_gen_work byte-swaps header words
//0..N after assembly (spec §4.4 step 5).
type Endianness int

const (
	// LittleEndian leaves the header words as assembled (the common case).
	LittleEndian Endianness = iota
	// BigEndianReorient byte-swaps words 0..19 (Family.SwapWordCount) after
	// assembly, for the heavy/mjollnir and zr5 families.
	BigEndianReorient
)

// MerkleHashFunc computes one round of the merkle-tree hash used to fold
// the coinbase and branch hashes together (spec §4.4 step 2/3).
type MerkleHashFunc func(data []byte) []byte

// ScanResult is what an opaque scan invocation reports back (spec §4.5):
// rc 0 means the range was exhausted with no match, 1 means one solution
// at data[19], 2 means an additional data[21] (and, for Family with
// HasPoK, a "pok" word at data[22] to be copied to data[0]).
type ScanResult struct {
	RC         int
	HashesDone uint64
	Nonce      uint32
	Nonce2     uint32
	PoK        uint32
}

// ScanFunc is the opaque per-algorithm hash kernel. workerID identifies
// the calling worker for hardware-affinity purposes external to this
// package; header is the 32-word buffer with word 19 as the starting
// nonce; maxNonce bounds the batch (inclusive).
type ScanFunc func(workerID int, header [32]uint32, target [8]uint32, maxNonce uint32) ScanResult

// Family describes one supported hash algorithm's behavior for every
// per-algorithm branch point named in spec §3 and §4.
type Family struct {
	Name string

	// MerkleHash builds the merkle root from the coinbase transaction and
	// branch hashes (spec §4.4 steps 1-3).
	MerkleHash MerkleHashFunc

	// TargetDivisor is the K divisor in target = diffone/(D*K*user_divisor)
	// (spec §4.4 step 6).
	TargetDivisor float64

	// Endian controls the word 0..N byte-swap of spec §4.4 step 5.
	Endian Endianness
	// SwapWordCount is how many header words get byte-swapped when Endian
	// is BigEndianReorient (20 for heavy/mjollnir, 19 for zr5).
	SwapWordCount int

	// BitLenWord31 is the constant placed at header word 31.
	BitLenWord31 uint32

	// DataSize is the on-wire header size in bytes for getwork submission
	// (128 for most families, 80 for the two families that trim the
	// buffer per spec §6).
	DataSize int

	// NonceMinimum is the algo_minimum floor applied to a worker's scan
	// batch size (spec §4.5).
	NonceMinimum uint32

	// HashrateCorrection is the per-algorithm multiplier applied to
	// measured hashrate (spec §4.5: "0.5 for two algorithms").
	HashrateCorrection float64

	// HasVote marks the heavycoin-style family that carries a vote/maxvote
	// word in the header (spec §3).
	HasVote bool

	// HasPoK marks the family whose scan result carries a "pok" word
	// copied back into data[0] (spec §4.5).
	HasPoK bool

	// StaleByHeaderPrefix marks the family whose non-Stratum stale-work
	// check compares the pre-nonce header prefix (work.HeaderPrefixEqual)
	// against the current job, in addition to the height check (spec
	// §4.3).
	StaleByHeaderPrefix bool

	// Scan is the opaque hash kernel. Defaults to ReferenceScan if unset.
	Scan ScanFunc
}

// scanFuncOrDefault returns f.Scan, falling back to ReferenceScan.
func (f *Family) scanFuncOrDefault() ScanFunc {
	if f.Scan != nil {
		return f.Scan
	}
	return ReferenceScan
}

// RunScan invokes the family's scan kernel, defaulting to the reference
// CPU scanner when none has been registered.
func (f *Family) RunScan(workerID int, header [32]uint32, target [8]uint32, maxNonce uint32) ScanResult {
	return f.scanFuncOrDefault()(workerID, header, target, maxNonce)
}

// registry is the tag -> Family table. Populated in tables.go.
var registry = map[string]*Family{}

// Register adds or replaces a family in the dispatch table. Intended to be
// called from package init or by a caller wiring in a real GPU kernel for
// an already-registered tag.
func Register(tag string, f *Family) {
	registry[tag] = f
}

// Lookup returns the family for tag, or (nil, false) if unknown.
func Lookup(tag string) (*Family, bool) {
	f, ok := registry[tag]
	return f, ok
}

// MustLookup panics if tag is unknown; used at startup after config
// validation has already confirmed the algo name.
func MustLookup(tag string) *Family {
	f, ok := Lookup(tag)
	if !ok {
		panic("algo: unknown algorithm " + tag)
	}
	return f
}

// Names returns every registered algorithm tag, for CLI help text and
// config validation.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// ApplyEndianness performs the word 0..N byte-swap of spec §4.4 step 5 in
// place on header.
func (f *Family) ApplyEndianness(header *[32]uint32) {
	if f.Endian != BigEndianReorient {
		return
	}
	n := f.SwapWordCount
	if n <= 0 || n > 32 {
		n = 20
	}
	for i := 0; i < n; i++ {
		header[i] = swap32(header[i])
	}
}

func swap32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xff00 | (v<<8)&0xff0000 | v<<24
}

// FinalizeHeader stamps word 20 and the bit-length constant into header
// per spec §3's invariants. Word 31 is always the algorithm-dependent
// bit-length constant. Word 20 defaults to the fixed padding word, except
// for the heavycoin-style family (HasVote), which packs vote into its low
// 16 bits and reward into its high 16 bits instead, mirroring
// stratum_gen_work's ALGO_HEAVY branch.
func (f *Family) FinalizeHeader(header *[32]uint32, vote, reward uint16) {
	if f.HasVote {
		header[20] = uint32(vote) | uint32(reward)<<16
	} else {
		header[20] = work.PaddingWord
	}
	header[31] = f.BitLenWord31
}
