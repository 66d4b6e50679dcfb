package algo

import (
	sha256simd "github.com/minio/sha256-simd"
)

// ReferenceScan is a correct, unoptimized CPU stand-in for the opaque GPU
// scan kernels spec §1 places out of scope. It hashes the 80-byte header
// prefix with double SHA-256 for each candidate nonce in
// [header[19], maxNonce] and reports the first nonce whose hash, read
// big-endian, is at or below target. It exists so the scheduler and its
// tests have something real to call; a production build plugs in a
// hardware-backed algo.ScanFunc per Family instead.
func ReferenceScan(workerID int, header [32]uint32, target [8]uint32, maxNonce uint32) ScanResult {
	start := header[19]
	var hashesDone uint64

	targetBytes := targetToBigEndianBytes(target)

	for n := start; ; n++ {
		header[19] = n
		buf := headerToBytes(header)
		first := sha256simd.Sum256(buf)
		second := sha256simd.Sum256(first[:])
		hashesDone++

		if lessOrEqualBigEndian(reverse32(second), targetBytes) {
			return ScanResult{RC: 1, HashesDone: hashesDone, Nonce: n}
		}
		if n == maxNonce {
			break
		}
	}
	return ScanResult{RC: 0, HashesDone: hashesDone}
}

func headerToBytes(header [32]uint32) []byte {
	buf := make([]byte, 80)
	for i := 0; i < 20; i++ {
		w := header[i]
		buf[i*4+0] = byte(w)
		buf[i*4+1] = byte(w >> 8)
		buf[i*4+2] = byte(w >> 16)
		buf[i*4+3] = byte(w >> 24)
	}
	return buf
}

func targetToBigEndianBytes(target [8]uint32) [32]byte {
	var out [32]byte
	for i := 0; i < 8; i++ {
		w := target[7-i]
		out[i*4+0] = byte(w >> 24)
		out[i*4+1] = byte(w >> 16)
		out[i*4+2] = byte(w >> 8)
		out[i*4+3] = byte(w)
	}
	return out
}

func reverse32(b [32]byte) [32]byte {
	var out [32]byte
	for i := range b {
		out[i] = b[31-i]
	}
	return out
}

func lessOrEqualBigEndian(hash, target [32]byte) bool {
	for i := 0; i < 32; i++ {
		if hash[i] < target[i] {
			return true
		}
		if hash[i] > target[i] {
			return false
		}
	}
	return true
}
