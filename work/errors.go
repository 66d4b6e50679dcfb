package work

import "errors"

// Sentinel errors for the error-kind taxonomy of spec §7. Callers compare
// with errors.Is; the retry/logging policy for each kind lives with the
// component that owns it (the work I/O actor for TRANSIENT_NET and
// STALE_WORK, the Stratum client for PROTOCOL, the scheduler and the
// Stratum client for DUPLICATE_NONCE).
var (
	// ErrStaleWork marks a solution discarded because the job it was found
	// against is no longer current (spec §4.3's stale-work rule). It is
	// recovered silently: the solution is dropped, no network I/O happens.
	ErrStaleWork = errors.New("work: stale, solution dropped")

	// ErrDuplicateNonce marks a submission suppressed by the hash-log
	// dedup check (spec §4.8).
	ErrDuplicateNonce = errors.New("work: duplicate nonce, submission suppressed")

	// ErrNoWork means a worker asked for a job before one was ever
	// published.
	ErrNoWork = errors.New("work: no job received yet")

	// ErrWrongPool means a solution's stamped pool id no longer matches
	// the pool currently active in the current-work slot (spec §4.1
	// invariant 1, §4.6).
	ErrWrongPool = errors.New("work: solution pool id mismatch, discarded")
)
