// Package ioactor implements the work I/O actor of spec §4.6: a
// single-threaded owner of the outbound HTTP client, serializing
// getwork/submit calls behind a bounded command queue.
package ioactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coreminer/gominer/work"
)

// Requester is the subset of rpcwork.Client the actor drives. Expressed as
// an interface so tests can substitute a fake without a live HTTP server.
type Requester interface {
	GetWork(ctx context.Context) (*work.Work, string, error)
	SubmitWork(ctx context.Context, w *work.Work) (bool, error)
}

// ErrPersistentFailure is returned by Run when a command has failed more
// than the configured retry budget, mirroring spec §4.6: "on persistent
// failure (failures > opt_retries && opt_retries >= 0), log and terminate
// (causes supervisor shutdown)."
var ErrPersistentFailure = errors.New("ioactor: retry budget exhausted")

// errNoRequester is the transient error getWorkWithRetry/submitWithRetry
// see while no Requester has been installed yet, e.g. before a reconnect
// loop's first successful dial; it counts against the retry budget like
// any other transient failure.
var errNoRequester = errors.New("ioactor: no requester installed")

// CommandKind tags the three variants of spec §4.6's command queue.
type CommandKind int

const (
	CmdGetWork CommandKind = iota
	CmdSubmitWork
	CmdAbort
)

// GetWorkResult is delivered on a GET_WORK command's reply channel.
type GetWorkResult struct {
	Job          *work.Work
	LongPollPath string
	Err          error
}

// Command is one bounded-queue entry. Reply is only read for CmdGetWork;
// Job is only read for CmdSubmitWork.
type Command struct {
	Kind  CommandKind
	Job   *work.Work
	Reply chan<- GetWorkResult
}

// Actor is the single-threaded work I/O actor. Its Run loop is the only
// goroutine allowed to call methods on Requester, matching spec §5:
// "Each HTTP call uses its owning thread's client."
type Actor struct {
	cmds      chan Command
	rpcMu     sync.Mutex
	rpc       Requester
	retries   int
	failPause time.Duration
	log       *zap.SugaredLogger

	// staleCurrent, when set via EnableStaleWorkCheck, reports the job
	// the current-work slot holds so a SUBMIT_WORK command can be
	// checked against it before spending network I/O on a stale
	// solution (spec §4.3's non-Stratum stale-work rule).
	staleCurrent      func() *work.Work
	staleHeaderPrefix bool
}

// NewActor constructs an Actor with a bounded command queue of the given
// capacity. retries < 0 means retry forever (opt_retries's "unlimited"
// sentinel); failPause is the sleep between failed attempts.
func NewActor(rpc Requester, queueCap, retries int, failPause time.Duration, log *zap.SugaredLogger) *Actor {
	return &Actor{
		cmds:      make(chan Command, queueCap),
		rpc:       rpc,
		retries:   retries,
		failPause: failPause,
		log:       log,
	}
}

// Commands returns the send side of the command queue.
func (a *Actor) Commands() chan<- Command {
	return a.cmds
}

// SetRequester hot-swaps the active Requester, letting a reconnect or
// pool-failover session driver install a freshly-dialed client without
// restarting the actor's Run loop or the workers depending on it.
func (a *Actor) SetRequester(rpc Requester) {
	a.rpcMu.Lock()
	a.rpc = rpc
	a.rpcMu.Unlock()
}

func (a *Actor) requester() Requester {
	a.rpcMu.Lock()
	defer a.rpcMu.Unlock()
	return a.rpc
}

// EnableStaleWorkCheck turns on the non-Stratum getwork stale-work rule
// of spec §4.3 for SUBMIT_WORK commands: a solution is dropped without
// touching the network if the current job's height is newer than the
// job the solution was found against, or (for algorithm families with
// StaleByHeaderPrefix, e.g. zr5) if the pre-nonce header prefix has
// drifted. current reports the job the current-work slot holds;
// checkHeaderPrefix should be the solved algorithm family's
// StaleByHeaderPrefix flag. Both checks are suppressed by a job's
// SubmitOld flag, matching ccminer.cpp's submit_upstream_work.
func (a *Actor) EnableStaleWorkCheck(current func() *work.Work, checkHeaderPrefix bool) {
	a.staleCurrent = current
	a.staleHeaderPrefix = checkHeaderPrefix
}

// isStale reports whether job should be dropped under the enabled
// stale-work check, per spec §4.3.
func (a *Actor) isStale(job *work.Work) bool {
	if a.staleCurrent == nil {
		return false
	}
	current := a.staleCurrent()
	if current == nil || job.SubmitOld {
		return false
	}
	if job.Height > 0 && current.Height > 0 && job.Height < current.Height {
		return true
	}
	if a.staleHeaderPrefix && !job.HeaderPrefixEqual(current) {
		return true
	}
	return false
}

// Run drives the actor loop until ctx is cancelled, an ABORT command is
// received, or a command exhausts its retry budget. currentPoolID reports
// the pool id currently active in the shared current-work slot; a
// SUBMIT_WORK command whose job targets a different pool is silently
// dropped per spec §4.6: "only while job.pool_id == current_pool_id."
func (a *Actor) Run(ctx context.Context, currentPoolID func() int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-a.cmds:
			switch cmd.Kind {
			case CmdAbort:
				return nil

			case CmdGetWork:
				job, lp, err := a.getWorkWithRetry(ctx)
				if cmd.Reply != nil {
					select {
					case cmd.Reply <- GetWorkResult{Job: job, LongPollPath: lp, Err: err}:
					default:
					}
				}
				if err != nil {
					a.log.Errorw("getwork retry budget exhausted", "err", err)
					return ErrPersistentFailure
				}

			case CmdSubmitWork:
				if cmd.Job == nil {
					continue
				}
				if cmd.Job.PoolID != currentPoolID() {
					a.log.Debugw("dropping submission for stale pool",
						"job_pool", cmd.Job.PoolID, "current_pool", currentPoolID())
					continue
				}
				if a.isStale(cmd.Job) {
					a.log.Debugw("dropping stale-work submission",
						"job", cmd.Job.JobID, "job_height", cmd.Job.Height, "err", work.ErrStaleWork)
					continue
				}
				if err := a.submitWithRetry(ctx, cmd.Job); err != nil {
					a.log.Errorw("submit retry budget exhausted", "err", err)
					return ErrPersistentFailure
				}
			}
		}
	}
}

func (a *Actor) getWorkWithRetry(ctx context.Context) (*work.Work, string, error) {
	var failures int
	for {
		rpc := a.requester()
		var job *work.Work
		var lp string
		var err error
		if rpc == nil {
			err = errNoRequester
		} else {
			job, lp, err = rpc.GetWork(ctx)
		}
		if err == nil {
			return job, lp, nil
		}
		failures++
		if a.retries >= 0 && failures > a.retries {
			return nil, "", err
		}
		a.log.Warnw("getwork failed, retrying", "attempt", failures, "err", err)
		if !a.sleepOrDone(ctx) {
			return nil, "", ctx.Err()
		}
	}
}

func (a *Actor) submitWithRetry(ctx context.Context, w *work.Work) error {
	var failures int
	for {
		rpc := a.requester()
		var accepted bool
		var err error
		if rpc == nil {
			err = errNoRequester
		} else {
			accepted, err = rpc.SubmitWork(ctx, w)
		}
		if err == nil {
			if !accepted {
				a.log.Warnw("submission rejected by pool", "job", w.JobID)
			}
			return nil
		}
		failures++
		if a.retries >= 0 && failures > a.retries {
			return err
		}
		a.log.Warnw("submit failed, retrying", "attempt", failures, "err", err)
		if !a.sleepOrDone(ctx) {
			return ctx.Err()
		}
	}
}

// sleepOrDone waits failPause, returning false if ctx is cancelled first.
func (a *Actor) sleepOrDone(ctx context.Context) bool {
	if a.failPause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(a.failPause)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
