// Package scheduler implements the per-worker scan loop of spec §4.5:
// nonce-range partitioning, scan-budget computation from recent hashrate,
// conditional-mining gates, and time-limit handling.
package scheduler

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/ioactor"
	"github.com/coreminer/gominer/stats"
	"github.com/coreminer/gominer/work"
	"github.com/coreminer/gominer/worklog"
)

// Clock isolates time.Now so tests can drive a scheduler deterministically.
type Clock func() time.Time

// Gates evaluates the three conditional-mining checks of spec §4.5. Any
// implementation is free to return zero values for a check it doesn't
// support; the corresponding gate then never trips.
type Gates struct {
	GPUTemp     func(workerID int) float64
	MaxTemp     float64
	NetDiff     func() float64
	MaxDiff     float64
	NetHashrate func() float64
	MaxRate     float64
}

// evaluate runs the three gates in order, returning the first that trips
// along with whether a pool rotation should be considered (spec §4.5:
// "If (2) or (3) trip and multiple pools exist with differing limits,
// flag conditional_pool_rotate").
func (g Gates) evaluate(workerID int) (tripped bool, wantsRotate bool) {
	if g.GPUTemp != nil && g.MaxTemp > 0 && g.GPUTemp(workerID) > g.MaxTemp {
		return true, false
	}
	if g.NetDiff != nil && g.MaxDiff > 0 && g.NetDiff() > g.MaxDiff {
		return true, true
	}
	if g.NetHashrate != nil && g.MaxRate > 0 && g.NetHashrate() > g.MaxRate {
		return true, true
	}
	return false, false
}

// Config parameterizes one worker's Loop.
type Config struct {
	WorkerID     int
	WorkerCount  int
	Algo         *algo.Family
	ScanTime     time.Duration
	TimeLimit    time.Duration
	HaveStratum  bool
	MultiplePool bool

	Gates Gates
	Clock Clock

	// GateSleep is how long a tripped gate pauses the worker (spec §4.5:
	// "sleep 5s and skip"). Defaults to 5s.
	GateSleep time.Duration
	// WakePoll is the Stratum-path wake-loop poll interval (spec §4.5:
	// "poll at 100ms"). Defaults to 100ms.
	WakePoll time.Duration
}

// PartitionRange computes worker t's disjoint nonce interval out of n
// workers, spec §4.5: "end = (UINT32_MAX/N)*(t+1) - (t+1)", "start =
// (UINT32_MAX/N)*t". Disjointness across all t in [0,n) is invariant 1 of
// spec §8.
func PartitionRange(t, n int) (start, end uint32) {
	if n <= 0 {
		n = 1
	}
	span := uint64(math.MaxUint32) / uint64(n)
	start = uint32(span * uint64(t))
	end = uint32(span*uint64(t+1) - uint64(t+1))
	return start, end
}

// ScanBudget computes max_nonce for one scan batch per spec §4.5's
// formula: max64 scaled by recent hashrate, clamped to
// [algoMinimum, UINT32_MAX], then bounded by [start, end].
func ScanBudget(start, end uint32, algoMinimum uint32, recentHashrate float64, haveStratum bool, scanTime time.Duration, workTime, now time.Time) uint64 {
	var max64 float64
	if haveStratum {
		max64 = 60
	} else {
		remaining := scanTime.Seconds() + workTime.Sub(now).Seconds()
		if remaining < 1 {
			remaining = 1
		}
		max64 = remaining
	}

	budget := max64 * recentHashrate
	if budget < float64(algoMinimum) {
		budget = float64(algoMinimum)
	}
	if budget > float64(math.MaxUint32) {
		budget = float64(math.MaxUint32)
	}

	maxNonce := uint64(start) + uint64(budget)
	if maxNonce > uint64(end) {
		maxNonce = uint64(end)
	}
	return maxNonce
}

// Submitter is the narrow slice of the work I/O actor's command interface
// the scheduler needs to hand off a solved nonce.
type Submitter interface {
	Commands() chan<- ioactor.Command
}

// PoolRotator is invoked when a gate trip requests a rotation (spec §4.5:
// "the next scheduler iteration performs a pool_switch_next()").
type PoolRotator func()

// ExitSignal is invoked once when the time limit expires and no rotation
// is available (spec §4.5: "otherwise set a graceful exit flag and abort
// all work").
type ExitSignal func()

// Worker runs one algorithm worker's scan loop.
type Worker struct {
	cfg      Config
	cw       *work.CurrentWork
	hashlog  *worklog.HashLog
	hashrate *stats.HashRate
	submit   Submitter
	rotate   PoolRotator
	exit     ExitSignal
	log      *zap.SugaredLogger

	firstWorkTime time.Time
	start, end    uint32
	nextNonce     uint32
	rangeSet      bool
}

// NewWorker constructs a Worker. cw is the shared current-work slot;
// hashlog records scanned ranges and dedups submissions; hashrate is this
// worker's own sample ring in the shared stats.Store.
func NewWorker(cfg Config, cw *work.CurrentWork, hashlog *worklog.HashLog, hashrate *stats.HashRate, submit Submitter, rotate PoolRotator, exit ExitSignal, log *zap.SugaredLogger) *Worker {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.GateSleep <= 0 {
		cfg.GateSleep = 5 * time.Second
	}
	if cfg.WakePoll <= 0 {
		cfg.WakePoll = 100 * time.Millisecond
	}
	return &Worker{cfg: cfg, cw: cw, hashlog: hashlog, hashrate: hashrate, submit: submit, rotate: rotate, exit: exit, log: log}
}

// Run drives the scan loop until ctx is cancelled. It is the caller's
// worker goroutine body.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !w.iterate(ctx) {
			return
		}
	}
}

// iterate runs one scan batch, returning false if the worker should stop
// (an exit signal fired, or ctx is done).
func (w *Worker) iterate(ctx context.Context) bool {
	now := w.cfg.Clock()

	if tripped, wantsRotate := w.cfg.Gates.evaluate(w.cfg.WorkerID); tripped {
		if wantsRotate && w.cfg.MultiplePool && w.rotate != nil {
			w.rotate()
		}
		return w.sleep(ctx, w.cfg.GateSleep)
	}

	if w.cfg.TimeLimit > 0 {
		if w.firstWorkTime.IsZero() {
			w.firstWorkTime = now
		} else if now.Sub(w.firstWorkTime) > w.cfg.TimeLimit {
			if w.cfg.MultiplePool && w.rotate != nil {
				w.rotate()
				w.firstWorkTime = now
				return true
			}
			if w.exit != nil {
				w.exit()
			}
			return false
		}
	}

	job, poolID, workTime, ok := w.cw.Snapshot()
	if !ok || w.cw.ShouldRestart(w.cfg.WorkerID) || !w.rangeSet {
		w.start, w.end = PartitionRange(w.cfg.WorkerID, w.cfg.WorkerCount)
		w.nextNonce = w.start
		w.rangeSet = true
	}
	if !ok {
		return w.sleep(ctx, w.cfg.WakePoll)
	}

	if w.cfg.HaveStratum {
		// A stale job means the pool hasn't pushed a notify in a while;
		// poll briefly in case one is in flight rather than grinding on
		// a job that's about to be superseded.
		for stalePolls := 0; now.Sub(workTime) >= w.cfg.ScanTime && stalePolls < 5; stalePolls++ {
			if !w.sleep(ctx, w.cfg.WakePoll) {
				return false
			}
			job, poolID, workTime, ok = w.cw.Snapshot()
			if !ok {
				return true
			}
			now = w.cfg.Clock()
		}
	} else {
		nearEnd := w.end-w.nextNonce < 0x100
		if now.Sub(workTime) >= w.cfg.ScanTime || nearEnd {
			w.requestFreshWork(ctx, poolID)
			if fresh, freshPool, freshTime, freshOK := w.cw.Snapshot(); freshOK {
				job, poolID, workTime = fresh, freshPool, freshTime
			}
			now = w.cfg.Clock()
		}
	}

	recentHashrate := w.hashrate.Average(10)
	maxNonce := ScanBudget(w.nextNonce, w.end, w.cfg.Algo.NonceMinimum, recentHashrate, w.cfg.HaveStratum, w.cfg.ScanTime, workTime, now)

	batchStart := now
	header := job.Data
	header[19] = w.nextNonce
	result := w.cfg.Algo.RunScan(w.cfg.WorkerID, header, job.Target, uint32(maxNonce))
	elapsed := w.cfg.Clock().Sub(batchStart).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}

	correction := w.cfg.Algo.HashrateCorrection
	if correction <= 0 {
		correction = 1
	}
	w.hashrate.Add(float64(result.HashesDone)*correction/elapsed, w.cfg.Clock())
	w.hashlog.MarkScanned(job.JobID, w.nextNonce, uint32(maxNonce))

	if result.RC >= 1 {
		solved := job.Clone()
		solved.PoolID = poolID
		solved.Data[19] = result.Nonce
		if result.RC == 2 {
			solved.Data[21] = result.Nonce2
			if w.cfg.Algo.HasPoK {
				solved.Data[22] = result.PoK
				solved.Data[0] = result.PoK
			}
		}
		w.submitSolution(solved)
		if !w.cfg.HaveStratum {
			w.cw.Invalidate()
		}
	}

	w.nextNonce = uint32(maxNonce) + 1
	if w.nextNonce > w.end || w.nextNonce < w.start {
		w.nextNonce = w.start
	}
	return true
}

func (w *Worker) submitSolution(solved *work.Work) {
	if _, dup := w.hashlog.Submitted(solved.JobID, solved.Nonce()); dup {
		w.log.Warnw("dropping duplicate submission", "job", solved.JobID, "nonce", solved.Nonce())
		return
	}
	w.hashlog.Record(solved.JobID, solved.Nonce(), w.cfg.Clock())
	if w.submit == nil {
		return
	}
	select {
	case w.submit.Commands() <- ioactor.Command{Kind: ioactor.CmdSubmitWork, Job: solved}:
	default:
		w.log.Errorw("submit queue full, dropping solution", "job", solved.JobID)
	}
}

func (w *Worker) requestFreshWork(ctx context.Context, poolID int) {
	if w.submit == nil {
		return
	}
	reply := make(chan ioactor.GetWorkResult, 1)
	select {
	case w.submit.Commands() <- ioactor.Command{Kind: ioactor.CmdGetWork, Reply: reply}:
	case <-ctx.Done():
		return
	default:
		return
	}
	select {
	case res := <-reply:
		if res.Err != nil {
			w.log.Warnw("getwork request failed", "err", res.Err)
			return
		}
		if res.Job != nil {
			w.cw.Publish(res.Job, poolID, w.cfg.Clock())
		}
	case <-ctx.Done():
	}
}

// sleep waits d or until ctx is cancelled, returning false on cancellation.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
