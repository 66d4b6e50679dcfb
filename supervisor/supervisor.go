// Package supervisor owns process lifecycle: spawning the worker,
// work I/O actor and upstream-protocol goroutines named in spec §5's
// "fixed roster", wiring pool failover, and orderly shutdown per
// spec §5's "abort_flag ... proper_exit".
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coreminer/gominer/algo"
	"github.com/coreminer/gominer/ioactor"
	"github.com/coreminer/gominer/pool"
	"github.com/coreminer/gominer/rpcwork"
	"github.com/coreminer/gominer/scheduler"
	"github.com/coreminer/gominer/stats"
	"github.com/coreminer/gominer/stratum"
	"github.com/coreminer/gominer/work"
	"github.com/coreminer/gominer/worklog"
)

// quiesceDelay is spec §5's "waits 200ms for kernels to quiesce" before
// proper_exit returns.
const quiesceDelay = 200 * time.Millisecond

// Config parameterizes a Supervisor's fixed thread roster.
type Config struct {
	WorkerCount  int
	Algo         *algo.Family
	ScanTime     time.Duration
	TimeLimit    time.Duration
	HaveStratum  bool
	MultiplePool bool
	Gates        scheduler.Gates
	IOQueueCap   int
	Retries      int
	FailPause    time.Duration

	// ProxyURL/UserAgent/Vote configure any upstream client the session
	// driver dials on the caller's behalf when Registry/Switcher are
	// supplied to New (spec §4.2/§4.7).
	ProxyURL  string
	UserAgent string
	Vote      uint16
}

// Supervisor coordinates the shared state and the goroutines that consume
// it: N scheduler.Worker loops, one ioactor.Actor, and, when a Registry
// is supplied, the upstream session driver that dials the active pool's
// Stratum or getwork/long-poll client itself.
type Supervisor struct {
	cfg      Config
	log      *zap.SugaredLogger
	cw       *work.CurrentWork
	hashlog  *worklog.HashLog
	statsSt  *stats.Store
	registry *pool.Registry
	switcher *pool.Switcher
	ioActor  *ioactor.Actor

	// stratumRedial/longpollRedial are handed to switcher as its
	// StratumURLs/LongpollURLs queues; runUpstreamSession selects on
	// them to detect a pool_switch requested while it's mid-session with
	// the outgoing pool (spec §4.7 step 5).
	stratumRedial  chan string
	longpollRedial chan string

	// netMu guards the last getmininginfo sample runGetworkSession polls
	// for periodically; conditional-mining gates 2/3 (spec §4.5) read it
	// through the NetDiff/NetHashrate closures wired into scheduler.Gates.
	netMu   sync.Mutex
	netDiff float64
	netRate float64

	abortFlag int32

	mu       sync.Mutex
	workers  []*scheduler.Worker
	cancel   context.CancelFunc
	quiesced chan struct{}
}

// New constructs a Supervisor. requester drives the work I/O actor until
// the session driver installs its own, so a caller with an
// already-dialed client (or no registry at all) can hand it in directly;
// it may be nil when registry/switcher are non-nil, since
// runUpstreamSession then owns dialing and calls ioActor.SetRequester
// itself. cw/hashlog are accepted rather than built internally so callers
// can hand the identical instances to a Stratum client constructed
// before the Supervisor. registry/switcher may be nil if pool failover
// isn't wired in (single static pool the caller dials itself).
func New(cfg Config, requester ioactor.Requester, cw *work.CurrentWork, hashlog *worklog.HashLog, registry *pool.Registry, switcher *pool.Switcher, log *zap.SugaredLogger) *Supervisor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.IOQueueCap <= 0 {
		cfg.IOQueueCap = 16
	}
	if cw == nil {
		cw = work.NewCurrentWork(cfg.WorkerCount)
	}
	if hashlog == nil {
		hashlog = worklog.NewHashLog()
	}
	s := &Supervisor{
		cfg:            cfg,
		log:            log,
		cw:             cw,
		hashlog:        hashlog,
		statsSt:        stats.NewStore(),
		registry:       registry,
		switcher:       switcher,
		stratumRedial:  make(chan string, 1),
		longpollRedial: make(chan string, 1),
		quiesced:       make(chan struct{}),
	}
	if switcher != nil {
		switcher.StratumURLs = s.stratumRedial
		switcher.LongpollURLs = s.longpollRedial
	}
	s.ioActor = ioactor.NewActor(requester, cfg.IOQueueCap, cfg.Retries, cfg.FailPause, log)
	if !cfg.HaveStratum && cfg.Algo != nil {
		s.ioActor.EnableStaleWorkCheck(s.snapshotCurrent, cfg.Algo.StaleByHeaderPrefix)
	}

	gates := cfg.Gates
	if gates.NetDiff == nil {
		gates.NetDiff = s.currentNetDiff
	}
	if gates.NetHashrate == nil {
		gates.NetHashrate = s.currentNetHashrate
	}

	s.workers = make([]*scheduler.Worker, cfg.WorkerCount)
	for t := 0; t < cfg.WorkerCount; t++ {
		wc := scheduler.Config{
			WorkerID:     t,
			WorkerCount:  cfg.WorkerCount,
			Algo:         cfg.Algo,
			ScanTime:     cfg.ScanTime,
			TimeLimit:    cfg.TimeLimit,
			HaveStratum:  cfg.HaveStratum,
			MultiplePool: cfg.MultiplePool,
			Gates:        gates,
		}
		s.workers[t] = scheduler.NewWorker(wc, cw, s.hashlog, s.statsSt.Worker(t), s.ioActor, s.rotatePool, s.RequestShutdown, log)
	}
	return s
}

// CurrentWork exposes the shared current-work slot for the caller's
// upstream protocol goroutine (Stratum/long-poll) to Publish into.
func (s *Supervisor) CurrentWork() *work.CurrentWork { return s.cw }

// HashLog exposes the dedup table for the Stratum client to consult
// before flagging a submission as a repeat.
func (s *Supervisor) HashLog() *worklog.HashLog { return s.hashlog }

// Stats exposes the hashrate store for status reporting.
func (s *Supervisor) Stats() *stats.Store { return s.statsSt }

// currentPoolID reports the pool id the current-work slot is stamped
// with, satisfying ioactor.Actor.Run's SUBMIT_WORK gate.
func (s *Supervisor) currentPoolID() int { return s.cw.PoolID() }

// snapshotCurrent reports the job the current-work slot holds, or nil if
// none has been published yet, satisfying ioactor.Actor's stale-work
// check.
func (s *Supervisor) snapshotCurrent() *work.Work {
	job, _, _, ok := s.cw.Snapshot()
	if !ok {
		return nil
	}
	return job
}

// currentNetDiff/currentNetHashrate back scheduler.Gates.NetDiff/NetHashrate
// for a getwork-protocol pool, reporting the most recent sample
// runGetworkSession's getmininginfo poll took (spec §4.5 gates 2/3).
// They report 0 (never-trips) until the first successful poll.
func (s *Supervisor) currentNetDiff() float64 {
	s.netMu.Lock()
	defer s.netMu.Unlock()
	return s.netDiff
}

func (s *Supervisor) currentNetHashrate() float64 {
	s.netMu.Lock()
	defer s.netMu.Unlock()
	return s.netRate
}

func (s *Supervisor) setNetInfo(diff, rate float64) {
	s.netMu.Lock()
	s.netDiff = diff
	s.netRate = rate
	s.netMu.Unlock()
}

func (s *Supervisor) rotatePool() {
	if s.switcher == nil {
		return
	}
	if err := s.switcher.SwitchNext(); err != nil {
		s.log.Warnw("pool rotation failed", "err", err)
	}
}

// Aborted reports the process-wide abort_flag (spec §5).
func (s *Supervisor) Aborted() bool {
	return atomic.LoadInt32(&s.abortFlag) != 0
}

// RequestShutdown sets abort_flag and cancels every worker's context; it
// is safe to call multiple times and from any goroutine, matching spec
// §5's "cooperative... polled at all loop tops."
func (s *Supervisor) RequestShutdown() {
	if !atomic.CompareAndSwapInt32(&s.abortFlag, 0, 1) {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// entryRequester decorates an ioactor.Requester with the accept/reject
// bookkeeping of spec §3's pool entry counters, giving Entry.RecordAccept/
// RecordReject real call sites regardless of which upstream protocol is
// active.
type entryRequester struct {
	ioactor.Requester
	entry *pool.Entry
}

func (r *entryRequester) SubmitWork(ctx context.Context, w *work.Work) (bool, error) {
	accepted, err := r.Requester.SubmitWork(ctx, w)
	if err != nil {
		return accepted, err
	}
	if accepted {
		r.entry.RecordAccept()
	} else {
		r.entry.RecordReject()
	}
	return accepted, err
}

// familyFor resolves the algorithm family a pool entry mines, falling
// back to the Supervisor's configured default when the entry doesn't
// override it (most failover sets mine a single algorithm; a per-pool
// override is the exception spec §3's pool entry leaves room for).
func (s *Supervisor) familyFor(e *pool.Entry) *algo.Family {
	if e.Algo != "" {
		if f, ok := algo.Lookup(e.Algo); ok {
			return f
		}
	}
	return s.cfg.Algo
}

// runUpstreamSession is the session driver of spec §4.2/§4.7: for each
// active pool entry it dials/subscribes/authorizes (Stratum) or fetches
// initial work and starts long-polling (getwork), installs the resulting
// client as the work I/O actor's active Requester, and blocks until the
// session ends. On persistent connect failure it rotates to the next
// usable pool when failover is configured, otherwise requests shutdown,
// matching "failure to connect/subscribe/authorize within opt_retries
// attempts triggers pool failover if configured, otherwise terminates."
func (s *Supervisor) runUpstreamSession(ctx context.Context) {
	if s.registry == nil {
		return
	}
	failures := 0
	for ctx.Err() == nil {
		entry := s.registry.Get(s.registry.Current())
		if entry == nil {
			s.log.Errorw("no active pool entry, terminating")
			s.RequestShutdown()
			return
		}
		fam := s.familyFor(entry)

		switch entry.Type {
		case pool.Stratum:
			if !s.runStratumSession(ctx, entry, fam, &failures) {
				return
			}
		case pool.Getwork, pool.Longpoll:
			if !s.runGetworkSession(ctx, entry, fam, &failures) {
				return
			}
		default:
			s.log.Errorw("pool entry has no protocol type", "pool", entry.DisplayURL)
			s.RequestShutdown()
			return
		}
	}
}

// runStratumSession drives one Stratum pool's connection lifetime,
// resuming a session left suspended by a prior pool_switch (spec §4.7
// step 1) instead of a fresh handshake when one is still alive.
func (s *Supervisor) runStratumSession(ctx context.Context, entry *pool.Entry, fam *algo.Family, failures *int) bool {
	var client *stratum.Client
	if suspended, ok := entry.SuspendedSession().(*stratum.Client); ok && suspended != nil {
		select {
		case <-suspended.Done():
			entry.SetSuspendedSession(nil)
		default:
			client = suspended
			s.log.Infow("resuming suspended stratum session", "pool", entry.DisplayURL)
		}
	}

	if client == nil {
		client = stratum.NewClient(stratum.Config{
			URL:       entry.URL,
			User:      entry.User,
			Pass:      entry.Pass,
			ProxyURL:  s.cfg.ProxyURL,
			Algo:      fam,
			UserAgent: s.cfg.UserAgent,
			Vote:      s.cfg.Vote,
		}, s.cw, s.hashlog, s.statsSt, entry.ID, s.log)

		err := client.Dial()
		if err == nil {
			err = client.Subscribe()
		}
		if err == nil {
			err = client.Authorize()
		}
		if err != nil {
			s.log.Warnw("stratum connect failed", "pool", entry.DisplayURL, "err", err)
			return s.awaitRetry(ctx, failures)
		}
	}

	entry.SetConnectionState(pool.Alive)
	s.ioActor.SetRequester(&entryRequester{Requester: client, entry: entry})
	*failures = 0
	if s.switcher != nil {
		s.switcher.EndSwitch()
	}
	s.log.Infow("stratum session ready", "pool", entry.DisplayURL)

	select {
	case <-ctx.Done():
		client.Close()
		return false
	case <-client.Done():
		entry.SetConnectionState(pool.Dead)
		entry.SetSuspendedSession(nil)
	case <-s.stratumRedial:
		entry.SetSuspendedSession(client)
	case <-s.longpollRedial:
		entry.SetSuspendedSession(client)
	}
	return true
}

// runGetworkSession drives one getwork/long-poll pool's connection
// lifetime: an initial getwork fetch, then long-polling for fresh jobs
// until the pool errors out or a switch is requested.
func (s *Supervisor) runGetworkSession(ctx context.Context, entry *pool.Entry, fam *algo.Family, failures *int) bool {
	requester := rpcwork.NewClient(rpcwork.Config{
		URL:       entry.URL,
		User:      entry.User,
		Pass:      entry.Pass,
		UserAgent: s.cfg.UserAgent,
		Algo:      fam,
	})

	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()

	job, lp, err := requester.GetWork(sessionCtx)
	if err != nil {
		s.log.Warnw("getwork failed", "pool", entry.DisplayURL, "err", err)
		return s.awaitRetry(ctx, failures)
	}
	s.cw.Publish(job, entry.ID, time.Now())

	entry.SetConnectionState(pool.Alive)
	s.ioActor.SetRequester(&entryRequester{Requester: requester, entry: entry})
	*failures = 0
	if s.switcher != nil {
		s.switcher.EndSwitch()
	}
	s.log.Infow("getwork session ready", "pool", entry.DisplayURL)

	errCh := make(chan error, 1)
	if lp != "" {
		go requester.Loop(sessionCtx, lp, func(j *work.Work) {
			s.cw.Publish(j, entry.ID, time.Now())
		}, func(err error) {
			select {
			case errCh <- err:
			default:
			}
		})
	}

	go s.pollMiningInfo(sessionCtx, requester)

	select {
	case <-ctx.Done():
		return false
	case err := <-errCh:
		s.log.Warnw("long-poll session ended", "pool", entry.DisplayURL, "err", err)
		entry.SetConnectionState(pool.Dead)
	case <-s.stratumRedial:
	case <-s.longpollRedial:
	}
	return true
}

// pollMiningInfo periodically calls getmininginfo for the duration of a
// getwork session, feeding conditional-mining gates 2/3 (spec §4.5) the
// same way GetBlockTemplate's height is opportunistically folded into
// getwork decoding (rpcwork/decode.go). It exits once the pool tells us
// getmininginfo isn't supported (Client self-disables permanently) or the
// session ends.
func (s *Supervisor) pollMiningInfo(ctx context.Context, requester *rpcwork.Client) {
	interval := s.cfg.ScanTime
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			diff, rate, _, err := requester.GetMiningInfo(ctx)
			if err != nil {
				if err == rpcwork.ErrNotSupported {
					return
				}
				continue
			}
			s.setNetInfo(diff, rate)
		}
	}
}

// awaitRetry sleeps FailPause and reports whether the caller should try
// the same pool again. On retry-budget exhaustion it rotates to the next
// usable pool when failover is configured, otherwise requests shutdown;
// either way a false return means the caller must stop.
func (s *Supervisor) awaitRetry(ctx context.Context, failures *int) bool {
	*failures++
	if s.cfg.Retries >= 0 && *failures > s.cfg.Retries {
		if s.switcher != nil && s.cfg.MultiplePool && s.registry != nil && s.registry.FailoverEnabled() {
			s.log.Warnw("retry budget exhausted, rotating to next pool")
			s.rotatePool()
			*failures = 0
			return true
		}
		s.log.Errorw("retry budget exhausted, no failover configured, terminating")
		s.RequestShutdown()
		return false
	}

	delay := s.cfg.FailPause
	if delay <= 0 {
		delay = 30 * time.Second
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run starts the worker roster and the work I/O actor, and blocks until
// ctx is cancelled, RequestShutdown is called, or SIGINT/SIGTERM arrives.
// It performs the proper_exit quiesce wait before returning.
func (s *Supervisor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.ioActor.Run(runCtx, s.currentPoolID); err != nil {
			s.log.Errorw("work I/O actor stopped", "err", err)
			s.RequestShutdown()
		}
	}()

	for _, w := range s.workers {
		wg.Add(1)
		go func(w *scheduler.Worker) {
			defer wg.Done()
			w.Run(runCtx)
		}(w)
	}

	if s.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runUpstreamSession(runCtx)
		}()
	}

	select {
	case <-runCtx.Done():
	case sig := <-sigCh:
		s.log.Infow("received shutdown signal", "signal", sig)
		s.RequestShutdown()
	}

	wg.Wait()
	time.Sleep(quiesceDelay)
	close(s.quiesced)
}

// Done returns a channel closed once Run has completed its quiesce wait.
func (s *Supervisor) Done() <-chan struct{} { return s.quiesced }

// Commands exposes the work I/O actor's command queue to upstream
// protocol goroutines that need to push a SUBMIT_WORK on the scheduler's
// behalf (e.g. a Stratum share accepted out-of-band).
func (s *Supervisor) Commands() chan<- ioactor.Command { return s.ioActor.Commands() }
