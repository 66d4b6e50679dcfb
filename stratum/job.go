package stratum

import (
	"encoding/binary"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/work"
)

// NotifyParams is the session state carried by a mining.notify message
// (spec §3 "Stratum session"). The subscribe state (xnonce1, xnonce2) is
// kept on Client, not here.
type NotifyParams struct {
	JobID        string
	PrevHash     []byte
	Coinbase1    []byte
	Coinbase2    []byte
	MerkleBranch [][]byte
	Version      []byte
	NBits        []byte
	NTime        []byte
	Clean        bool

	// NReward is the heavycoin-style trailing "nreward" notify param
	// (present only for algorithm families with HasVote), a 2-byte
	// big-endian value folded into header word 20's high 16 bits
	// alongside the miner's own vote setting.
	NReward []byte
}

// leWord decodes a 4-byte chunk already in the header's internal word
// order (used for prevhash, spec §4.4 step 4: "except prevhash, already
// little-endian").
func leWord(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// beWord decodes a 4-byte big-endian wire chunk into a host-order word,
// the "byte-swapped on placement" transform spec §4.4 step 4 applies to
// version, ntime, nbits, and the merkle root.
func beWord(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// IncrementXNonce2 bumps xnonce2 as a little-endian counter with byte-wise
// carry and no overflow guard (spec §9 open question). Full wraparound
// leaves xnonce2 all zero and is neither reported nor detected: the
// notify handler calls it on every mining.notify and builds the job from
// whatever value results.
func IncrementXNonce2(x []byte) {
	for i := range x {
		x[i]++
		if x[i] != 0 {
			return
		}
	}
}

// AssembleJob runs the job-assembly procedure of spec §4.4: fold the
// coinbase and merkle branches through the algorithm's merkle-hash
// function, lay out the 32 header words, apply the family's endianness
// re-orientation, and compute the target from session difficulty. vote is
// only meaningful for algorithm families with HasVote (spec §3); it is
// ignored otherwise.
func AssembleJob(fam *algo.Family, n NotifyParams, xnonce1, xnonce2 []byte, sessionDiff, userDivisor float64, poolID int, vote uint16) *work.Work {
	coinbase := make([]byte, 0, len(n.Coinbase1)+len(xnonce1)+len(xnonce2)+len(n.Coinbase2))
	coinbase = append(coinbase, n.Coinbase1...)
	coinbase = append(coinbase, xnonce1...)
	coinbase = append(coinbase, xnonce2...)
	coinbase = append(coinbase, n.Coinbase2...)

	merkleRoot := fam.MerkleHash(coinbase)
	for _, branch := range n.MerkleBranch {
		folded := make([]byte, 0, len(merkleRoot)+len(branch))
		folded = append(folded, merkleRoot...)
		folded = append(folded, branch...)
		merkleRoot = fam.MerkleHash(folded)
	}

	var w work.Work

	if len(n.Version) >= 4 {
		w.Data[0] = beWord(n.Version[:4])
	}
	for i := 0; i < 8 && (i+1)*4 <= len(n.PrevHash); i++ {
		w.Data[1+i] = leWord(n.PrevHash[i*4 : i*4+4])
	}
	for i := 0; i < 8 && (i+1)*4 <= len(merkleRoot); i++ {
		w.Data[9+i] = beWord(merkleRoot[i*4 : i*4+4])
	}
	if len(n.NTime) >= 4 {
		w.Data[17] = beWord(n.NTime[:4])
	}
	if len(n.NBits) >= 4 {
		w.Data[18] = beWord(n.NBits[:4])
	}
	w.Data[19] = 0

	fam.ApplyEndianness(&w.Data)

	var reward uint16
	if fam.HasVote && len(n.NReward) >= 2 {
		reward = binary.BigEndian.Uint16(n.NReward[:2])
	}
	fam.FinalizeHeader(&w.Data, vote, reward)

	divisor := fam.TargetDivisor * userDivisor
	w.Target = work.DiffToTarget(sessionDiff, divisor)

	w.XNonce2 = append([]byte(nil), xnonce2...)
	w.XNonce2Len = len(xnonce2)
	w.JobID = n.JobID
	w.Difficulty = sessionDiff
	w.PoolID = poolID
	if fam.HasVote {
		w.Vote = vote
		w.MaxVote = 2048
	}

	return &w
}
