package algo

import "github.com/coreminer/gominer/work"

// init populates the dispatch table with the algorithm families named or
// implied by spec §3/§4.4/§4.5, grounded on ccminer.cpp's opt_algo switch
// statements (stratum_gen_work's merkle-hash switch, its target-divisor
// switch, and miner_thread's ALGO_ZR5/ALGO_HEAVY endianness special
// cases).
func init() {
	Register("blake", &Family{
		Name:               "blake",
		MerkleHash:         SHA256d,
		TargetDivisor:      1,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x80000000,
		HashrateCorrection: 1.0,
	})

	Register("blakecoin", &Family{
		Name:               "blakecoin",
		MerkleHash:         SHA256Single,
		TargetDivisor:      1,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x80000000,
		HashrateCorrection: 1.0,
	})

	Register("groestl", &Family{
		Name:               "groestl",
		MerkleHash:         SHA256Single,
		TargetDivisor:      256,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x10000,
		HashrateCorrection: 1.0,
	})

	Register("fugue256", &Family{
		Name:               "fugue256",
		MerkleHash:         SHA256Single,
		TargetDivisor:      256,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x10000,
		HashrateCorrection: 1.0,
	})

	Register("keccak", &Family{
		Name:               "keccak",
		MerkleHash:         SHA256Single,
		TargetDivisor:      128,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x10000,
		HashrateCorrection: 1.0,
	})

	Register("lyra2", &Family{
		Name:               "lyra2",
		MerkleHash:         SHA256d,
		TargetDivisor:      128,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x10000,
		HashrateCorrection: 1.0,
	})

	Register("scrypt", &Family{
		Name:               "scrypt",
		MerkleHash:         SHA256d,
		TargetDivisor:      65536,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x2000,
		HashrateCorrection: 0.5,
	})

	Register("neoscrypt", &Family{
		Name:               "neoscrypt",
		MerkleHash:         SHA256d,
		TargetDivisor:      65536,
		Endian:             LittleEndian,
		BitLenWord31:       work.BitLen640,
		DataSize:           128,
		NonceMinimum:       0x2000,
		HashrateCorrection: 0.5,
	})

	// heavy/mjollnir: header re-oriented big-endian across the first 20
	// words and the wider 0x2A0 bit-length constant (spec §3, §4.4 step
	// 5); heavy alone carries a vote/reward word pair at data[20].
	Register("heavy", &Family{
		Name:               "heavy",
		MerkleHash:         HeavycoinHash,
		TargetDivisor:      1,
		Endian:             BigEndianReorient,
		SwapWordCount:      20,
		BitLenWord31:       work.BitLen672,
		DataSize:           128,
		NonceMinimum:       0x2000,
		HashrateCorrection: 0.5,
		HasVote:            true,
	})

	Register("mjollnir", &Family{
		Name:               "mjollnir",
		MerkleHash:         HeavycoinHash,
		TargetDivisor:      1,
		Endian:             BigEndianReorient,
		SwapWordCount:      20,
		BitLenWord31:       work.BitLen672,
		DataSize:           128,
		NonceMinimum:       0x2000,
		HashrateCorrection: 0.5,
	})

	// zr5: header re-oriented big-endian across the first 19 words (word
	// 19, the nonce, is not swapped; the "pok" word lands in words 0 and
	// 22), and submissions trim to the 80-byte prefix per spec §6.
	Register("zr5", &Family{
		Name:               "zr5",
		MerkleHash:         SHA256d,
		TargetDivisor:      1,
		Endian:             BigEndianReorient,
		SwapWordCount:      19,
		BitLenWord31:       work.BitLen640,
		DataSize:           80,
		NonceMinimum:        0x1000,
		HashrateCorrection:  0.5,
		HasPoK:              true,
		StaleByHeaderPrefix: true,
	})
}
