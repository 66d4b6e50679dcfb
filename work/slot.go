package work

import (
	"sync"
	"time"
)

// CurrentWork is the process-wide "what is the current job" consensus
// point described in spec §3/§4.1. Producers (the Stratum thread, the
// long-poll thread, the work I/O actor on behalf of getwork/GBT) call
// Publish; consumers (worker goroutines) call Snapshot. Every mutation bumps the g_work_time timestamp under
// the same lock that guards the job and the owning pool id, satisfying
// invariant (3) of spec §4.1: "the slot is never read without also
// reading the pool id under the same critical section."
type CurrentWork struct {
	mu       sync.Mutex
	job      *Work
	poolID   int
	workTime time.Time

	restartMu sync.Mutex
	restart   []bool
}

// NewCurrentWork returns an empty slot sized for n worker goroutines.
func NewCurrentWork(n int) *CurrentWork {
	return &CurrentWork{restart: make([]bool, n)}
}

// Publish installs job as the current work for poolID, advances
// g_work_time to now, and never lets g_work_time move backwards (spec
// §4.1 invariant 2). now is passed in explicitly (rather than time.Now())
// so callers driving deterministic tests can control the clock.
func (cw *CurrentWork) Publish(job *Work, poolID int, now time.Time) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	job.PoolID = poolID
	cw.job = job
	cw.poolID = poolID
	if now.After(cw.workTime) {
		cw.workTime = now
	}
}

// Invalidate zeroes the work-time and clears data[0], the getwork-path
// mechanism ccminer uses to force the next worker iteration to re-fetch
// (spec §4.5: "additionally invalidate g_work_time = 0 to force
// re-fetch"), without discarding the job wholesale.
func (cw *CurrentWork) Invalidate() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.workTime = time.Time{}
	if cw.job != nil {
		cw.job.Data[0] = 0
	}
}

// Snapshot returns a deep copy of the current job, the owning pool id, and
// the last-publish timestamp, all read under one critical section.
func (cw *CurrentWork) Snapshot() (job *Work, poolID int, workTime time.Time, ok bool) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.job == nil {
		return nil, 0, time.Time{}, false
	}
	return cw.job.Clone(), cw.poolID, cw.workTime, true
}

// WorkTime returns the last publish timestamp without copying the job.
func (cw *CurrentWork) WorkTime() time.Time {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.workTime
}

// PoolID returns the owning pool id of the current job.
func (cw *CurrentWork) PoolID() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.poolID
}

// RestartAll sets every worker's restart flag, used on clean=true notify,
// pool switch, and time-limit rotation (spec §4.1, §4.7).
func (cw *CurrentWork) RestartAll() {
	cw.restartMu.Lock()
	defer cw.restartMu.Unlock()
	for i := range cw.restart {
		cw.restart[i] = true
	}
}

// ShouldRestart consumes worker id's restart flag: if set, it clears it
// and returns true. One flag write is consumed once per epoch per spec
// §4.1 ("one write-once-per-epoch boolean per worker").
func (cw *CurrentWork) ShouldRestart(workerID int) bool {
	cw.restartMu.Lock()
	defer cw.restartMu.Unlock()
	if workerID < 0 || workerID >= len(cw.restart) {
		return false
	}
	if cw.restart[workerID] {
		cw.restart[workerID] = false
		return true
	}
	return false
}
