// Package solanarpc is a reference outbox.LedgerClient implementation that
// submits memo transactions to a Solana-style JSON-RPC validator endpoint.
//
// It exists to prove the LedgerClient contract is implementable end to end
// and to give the outbox Dispatcher something real to exercise; the core
// outbox package never imports it. All signing, base58, and wire-format
// plumbing lives here, isolated from the core by design.
package solanarpc
