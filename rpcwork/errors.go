package rpcwork

import "errors"

// ErrTransient covers connection, DNS, and timeout failures (spec §7
// TRANSIENT_NET), retried by the caller with opt_fail_pause backoff.
var ErrTransient = errors.New("rpcwork: transient network error")

// ErrProtocol covers JSON parse failures, missing fields, and server-side
// RPC error objects (spec §7 PROTOCOL).
var ErrProtocol = errors.New("rpcwork: protocol error")

// ErrNotSupported is returned once a pool has told us a method doesn't
// exist (HTTP 405/501, or a getblocktemplate error response); the caller
// should stop calling that method for this pool.
var ErrNotSupported = errors.New("rpcwork: method not supported by pool")
