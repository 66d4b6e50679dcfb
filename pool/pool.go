// Package pool implements the fixed-capacity pool registry and failover
// state machine of spec §3 ("Pool entry") and §4.7 ("Pool failover").
package pool

import (
	"strings"
	"sync"
	"time"
)

// MaxPools is the hard cap on the pool table, matching ccminer's
// MAX_POOLS-sized array (spec §3: "A fixed-capacity vector (cap >= 8)").
const MaxPools = 8

// Type is the upstream protocol a pool entry speaks.
type Type int

const (
	Unused Type = iota
	Getwork
	Stratum
	Longpoll
)

// Status bits, matching spec §3's {VALID, DEFINED, DISABLED, REMOVED}.
type Status uint8

const (
	StatusValid Status = 1 << iota
	StatusDefined
	StatusDisabled
	StatusRemoved
)

// ConnectionState mirrors the teacher's types.PoolConnectionStates enum
// (types/pool.go), reused here as the per-pool liveness signal the
// supervisor and status reporting consume.
type ConnectionState int

const (
	NotReady ConnectionState = iota + 1
	Alive
	Sick
	Dead
)

// Entry is one pool's configuration plus runtime counters (spec §3).
type Entry struct {
	ID int

	URL        string
	DisplayURL string
	User       string
	Pass       string
	Algo       string
	Type       Type
	Status     Status

	// Per-pool overrides; zero means "use the global default."
	ScanTime  time.Duration
	MaxDiff   float64
	MaxRate   float64
	TimeLimit time.Duration

	mu               sync.Mutex
	accepted         int64
	rejected         int64
	waitTime         time.Duration
	connectionState  ConnectionState
	suspendedSession interface{} // *stratum.Client, kept untyped so this package does not depend on stratum
}

// ParseURL splits "user:pass@host:port" inline credentials from a pool
// URL and infers the pool Type from its scheme, exactly as ccminer's
// pool_set_creds infers POOL_STRATUM vs POOL_GETWORK from
// strncasecmp(rpc_url, "stratum", 7) (SPEC_FULL.md "SUPPLEMENTED
// FEATURES").
func ParseURL(raw string) (cleanURL, user, pass string, t Type) {
	rest := raw
	scheme := ""
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = strings.ToLower(rest[:idx])
		rest = rest[idx+3:]
	}

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		creds := rest[:at]
		rest = rest[at+1:]
		if colon := strings.Index(creds, ":"); colon >= 0 {
			user = creds[:colon]
			pass = creds[colon+1:]
		} else {
			user = creds
		}
	}

	switch {
	case strings.HasPrefix(scheme, "stratum"):
		t = Stratum
	case scheme == "http" || scheme == "https":
		t = Getwork
	default:
		t = Getwork
	}

	if scheme != "" {
		cleanURL = scheme + "://" + rest
	} else {
		cleanURL = rest
	}
	return
}

// IsUsable reports whether the entry can be rotated into (VALID set,
// neither DISABLED nor REMOVED).
func (e *Entry) IsUsable() bool {
	return e.Status&StatusValid != 0 &&
		e.Status&StatusDisabled == 0 &&
		e.Status&StatusRemoved == 0
}

// RecordAccept/RecordReject bump the cumulative counters under the
// entry's own lock; they are called from worker and I/O-actor goroutines
// concurrently, so the counters are entry-local rather than guarded by a
// registry-wide lock.
func (e *Entry) RecordAccept() {
	e.mu.Lock()
	e.accepted++
	e.mu.Unlock()
}

func (e *Entry) RecordReject() {
	e.mu.Lock()
	e.rejected++
	e.mu.Unlock()
}

func (e *Entry) AddWaitTime(d time.Duration) {
	e.mu.Lock()
	e.waitTime += d
	e.mu.Unlock()
}

func (e *Entry) Counters() (accepted, rejected int64, waitTime time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accepted, e.rejected, e.waitTime
}

func (e *Entry) SetConnectionState(s ConnectionState) {
	e.mu.Lock()
	e.connectionState = s
	e.mu.Unlock()
}

func (e *Entry) ConnectionState() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectionState
}

// SuspendedSession/SetSuspendedSession implement the "slot for a
// suspended Stratum connection handle" of spec §3, used by pool_switch to
// snapshot the outgoing pool's live session (spec §4.7 step 1) and later
// restore it on switch-back.
func (e *Entry) SuspendedSession() interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspendedSession
}

func (e *Entry) SetSuspendedSession(s interface{}) {
	e.mu.Lock()
	e.suspendedSession = s
	e.mu.Unlock()
}
