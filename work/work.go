// Package work holds the in-memory job representation shared between the
// upstream protocol threads (Stratum, getwork/GBT, long-poll) and the
// worker scheduler, plus the current-work slot that mediates handoff
// between them.
package work

import "github.com/jinzhu/copier"

// DataWords is the number of 32-bit words in a block header buffer. Two
// bit-length constants (0x280/0x2A0) are reused across the header depending
// on algorithm family, but the buffer itself is always 32 words wide so
// that word 20 (padding) and word 31 (bit-length constant) land at fixed
// offsets regardless of algorithm.
const DataWords = 32

// TargetWords is the number of 32-bit words in the on-wire 256-bit target.
const TargetWords = 8

// PaddingWord is the fixed padding bit placed at header word 20.
const PaddingWord = 0x80000000

// Bit-length constants placed at header word 31, keyed by algorithm
// family. Most algorithms use BitLen640; the Mjollnir/heavy family uses
// BitLen672.
const (
	BitLen640 = 0x00000280
	BitLen672 = 0x000002A0
)

// Work is one job: everything a worker thread needs to run a scan batch
// and everything a submission needs to be replayed to the right pool.
type Work struct {
	Data   [DataWords]uint32
	Target [TargetWords]uint32

	// XNonce2 is the miner-chosen extra-nonce spliced into the coinbase.
	// Only meaningful for Stratum-sourced jobs.
	XNonce2    []byte
	XNonce2Len int

	JobID      string
	Height     int64
	Difficulty float64
	PoolID     int

	// Vote/MaxVote are only used by the heavycoin-style algorithm family.
	Vote    uint16
	MaxVote uint16

	// SubmitOld, when the job came from getwork/GBT, means the server
	// tolerates submissions against a slightly stale job; it suppresses
	// two of the three stale-work clauses in the getwork stale check.
	SubmitOld bool
}

// Nonce returns the header's nonce word (word 19).
func (w *Work) Nonce() uint32 { return w.Data[19] }

// SetNonce writes the header's nonce word.
func (w *Work) SetNonce(n uint32) { w.Data[19] = n }

// NTime returns the header's ntime word (word 17).
func (w *Work) NTime() uint32 { return w.Data[17] }

// NBits returns the header's nbits word (word 18).
func (w *Work) NBits() uint32 { return w.Data[18] }

// Clone returns a deep, independent copy of w. It uses jinzhu/copier the
// same way the teacher's FPGA driver snapshots a work item out from under
// a lock (driver/thyroid.go: copier.Copy(&backupWork, work)), so a caller
// can safely mutate or retain the copy after releasing the current-work
// lock.
func (w *Work) Clone() *Work {
	var out Work
	copier.Copy(&out, w)
	out.XNonce2 = append([]byte(nil), w.XNonce2...)
	return &out
}

// HeaderPrefixEqual reports whether the pre-nonce header prefix (words
// 1..17, i.e. bytes 4..72 covering prevhash, merkle root and ntime) is identical
// between w and other. Used by the getwork stale-work heuristic for the
// algorithm family that keys staleness off header-prefix drift (spec
// §4.3).
func (w *Work) HeaderPrefixEqual(other *Work) bool {
	for i := 1; i < 18; i++ {
		if w.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}
