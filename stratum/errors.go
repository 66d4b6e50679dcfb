package stratum

import "errors"

// ErrProtocol covers malformed or unexpected JSON-RPC content: parse
// failures, missing fields, type mismatches (spec §7 PROTOCOL).
var ErrProtocol = errors.New("stratum: protocol error")

// ErrNotConnected is returned by call/Submit when no socket is open.
var ErrNotConnected = errors.New("stratum: not connected")

// ErrTimeout is returned when a request receives no matching response
// within callTimeout (30s), well before the 120s socket-idle threshold of
// spec §4.2.
var ErrTimeout = errors.New("stratum: response timeout")

// ErrShareRejected is returned by Submit when the pool's response carries
// result:false or a JSON-RPC error object.
var ErrShareRejected = errors.New("stratum: share rejected")
