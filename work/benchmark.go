package work

import "time"

// BenchmarkSource manufactures a fixed, low-difficulty synthetic job with
// no network I/O, matching ccminer's opt_benchmark mode (SPEC_FULL.md
// "SUPPLEMENTED FEATURES"). It lets the worker scheduler and hashrate
// stats be exercised without a live pool.
type BenchmarkSource struct {
	Algo string
}

// Job returns a static work item suitable for a benchmark run: an
// all-zero header prefix, the padding word and bit-length constant set,
// and a target loose enough that a reference scanner will find
// "solutions" quickly.
func (b *BenchmarkSource) Job() *Work {
	w := &Work{
		JobID:      "benchmark",
		Height:     0,
		Difficulty: 0.001,
		PoolID:     -1,
	}
	w.Data[20] = PaddingWord
	w.Data[31] = BitLen640
	w.Target = DiffToTarget(w.Difficulty, 1)
	return w
}

// Publish installs the benchmark job into slot for pool id -1, an id no
// registry entry has. Nothing special-cases -1: the work I/O actor's
// pool-id check compares a solution's id with the slot's, and both are -1.
func (b *BenchmarkSource) Publish(slot *CurrentWork, now time.Time) {
	slot.Publish(b.Job(), -1, now)
}
