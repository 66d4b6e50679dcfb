package pool

import (
	"sync"
	"sync/atomic"

	"github.com/coreminer/gominer/work"
)

// Switcher drives pool_switch/pool_switch_next of spec §4.7. It owns no
// network connections itself; it snapshots/restores the suspended-session
// slot on Entry, resets the current-work slot, and pushes the new pool's
// URL onto whichever upstream-protocol thread's input queue should pick
// it up, mirroring ccminer's tq_push(thr_info[...].q, url) calls at the
// end of pool_switch.
type Switcher struct {
	Registry *Registry
	Work     *work.CurrentWork

	// StratumURLs/LongpollURLs are the input queues of the Stratum and
	// long-poll threads (spec §9: "Work queues implemented as bounded
	// message channels"). Either may be nil if that protocol isn't in use.
	StratumURLs  chan<- string
	LongpollURLs chan<- string

	mu        sync.Mutex
	switching int32
}

// IsSwitching reports whether a pool switch is in flight (mirrors
// ccminer's pool_is_switching global).
func (s *Switcher) IsSwitching() bool {
	return atomic.LoadInt32(&s.switching) != 0
}

// EndSwitch clears the in-flight flag; called once the newly active
// pool's protocol thread confirms it has picked up work (spec §4.7's
// stratum_thread clears pool_is_switching once a fresh job for the new
// pool has been generated).
func (s *Switcher) EndSwitch() {
	atomic.StoreInt32(&s.switching, 0)
}

// Switch performs the five steps of spec §4.7's pool_switch(n).
func (s *Switcher) Switch(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.Registry.Get(s.Registry.Current())
	next := s.Registry.Get(n)
	if next == nil {
		return ErrFull
	}

	// Step 1: snapshot the outgoing pool's suspended Stratum session.
	if prev != nil && prev.Type == Stratum {
		// Nothing to do here: this package does not import stratum. The
		// supervisor's Stratum session moves its live *stratum.Client
		// into prev via SetSuspendedSession once this switch's redial
		// signal reaches it.
	}

	// Step 2 (credentials/options) lives on Entry already; nothing to
	// copy since pool ids are indices, not globals (Design Notes §9).

	atomic.StoreInt32(&s.switching, 1)
	s.Registry.SetCurrent(n)

	// Step 4: reset g_work_time, clear data[0], restart all workers.
	s.Work.Invalidate()
	s.Work.RestartAll()

	// Step 5: unblock whichever protocol thread owns the new pool.
	switch next.Type {
	case Stratum:
		if s.StratumURLs != nil {
			select {
			case s.StratumURLs <- next.URL:
			default:
			}
		}
	case Getwork, Longpoll:
		if s.LongpollURLs != nil {
			select {
			case s.LongpollURLs <- next.URL:
			default:
			}
		}
	}

	return nil
}

// SwitchNext rotates round-robin to the next usable pool after the
// current one, matching ccminer's pool_switch_next.
func (s *Switcher) SwitchNext() error {
	next := s.Registry.FirstValid(s.Registry.Current() + 1)
	return s.Switch(next)
}
